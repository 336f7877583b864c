package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/evolgroups/lead-outreach/internal/model"
)

// Config is the immutable application configuration, built once at startup
// and passed into constructors. Core logic never reads ambient state.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Campaign CampaignConfig `mapstructure:"campaign"`
	Senders  []model.Sender `mapstructure:"senders"`
	LeadAPI  LeadAPIConfig  `mapstructure:"lead_api"`
	WATI     WATIConfig     `mapstructure:"wati"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// CampaignConfig carries the knobs of the campaign orchestrator.
type CampaignConfig struct {
	WorkingHoursStart     string  `mapstructure:"working_hours_start"` // "09:00"
	WorkingHoursEnd       string  `mapstructure:"working_hours_end"`   // "21:00"
	GlobalDailyLimit      int     `mapstructure:"global_daily_limit"`
	MinDelaySeconds       float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds       float64 `mapstructure:"max_delay_seconds"`
	BatchCeiling          int     `mapstructure:"batch_ceiling"`
	Strategy              string  `mapstructure:"strategy"` // proportional | round_robin | balanced
	MaxConcurrentChannels int     `mapstructure:"max_concurrent_channels"`
	Channel               string  `mapstructure:"channel"` // wati | whatsapp
	TemplateName          string  `mapstructure:"template_name"`
	MessageTemplate       string  `mapstructure:"message_template"`
	UseTestNumber         bool    `mapstructure:"use_test_number"`
	TestNumber            string  `mapstructure:"test_number"`
	CronSpec              string  `mapstructure:"cron_spec"`
}

// MinDelay returns the lower jitter bound as a duration.
func (c CampaignConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySeconds * float64(time.Second))
}

// MaxDelay returns the upper jitter bound as a duration.
func (c CampaignConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds * float64(time.Second))
}

type LeadAPIConfig struct {
	URL     string `mapstructure:"url"`
	LogURL  string `mapstructure:"log_url"`
	Token   string `mapstructure:"token"`
	OwnerID int    `mapstructure:"owner_id"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

type WATIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

type WhatsAppConfig struct {
	SessionDir   string `mapstructure:"session_dir"`
	QROutputPath string `mapstructure:"qr_output_path"`
	LoginTimeout int    `mapstructure:"login_timeout"` // seconds
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // file | postgres
	Dir         string `mapstructure:"dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config.yaml (plus environment overrides) and returns a
// validated Config. A .env file is honored when present but never overrides
// variables already set in the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	v.SetEnvPrefix("outreach")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lead-outreach")
	v.SetDefault("app.environment", "development")
	v.SetDefault("campaign.working_hours_start", "09:00")
	v.SetDefault("campaign.working_hours_end", "21:00")
	v.SetDefault("campaign.global_daily_limit", 75)
	v.SetDefault("campaign.min_delay_seconds", 1.0)
	v.SetDefault("campaign.max_delay_seconds", 2.0)
	v.SetDefault("campaign.batch_ceiling", 200)
	v.SetDefault("campaign.strategy", "proportional")
	v.SetDefault("campaign.max_concurrent_channels", 3)
	v.SetDefault("campaign.channel", "wati")
	v.SetDefault("lead_api.timeout", 30)
	v.SetDefault("wati.timeout", 30)
	v.SetDefault("whatsapp.session_dir", "sessions")
	v.SetDefault("whatsapp.qr_output_path", "whatsapp-login-qr.png")
	v.SetDefault("whatsapp.login_timeout", 120)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", "state")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks the numeric ranges the campaign depends on. Working-hour
// strings are deliberately not validated here: an unparseable window fails
// open at run time instead of blocking startup.
func (c *Config) Validate() error {
	cc := c.Campaign

	if cc.MinDelaySeconds < 1 || cc.MinDelaySeconds > 300 {
		return fmt.Errorf("min_delay_seconds %.1f out of range [1,300]", cc.MinDelaySeconds)
	}
	if cc.MaxDelaySeconds < 1 || cc.MaxDelaySeconds > 300 {
		return fmt.Errorf("max_delay_seconds %.1f out of range [1,300]", cc.MaxDelaySeconds)
	}
	if cc.MinDelaySeconds >= cc.MaxDelaySeconds {
		return fmt.Errorf("min_delay_seconds %.1f must be below max_delay_seconds %.1f",
			cc.MinDelaySeconds, cc.MaxDelaySeconds)
	}
	if cc.GlobalDailyLimit < 10 || cc.GlobalDailyLimit > 500 {
		return fmt.Errorf("global_daily_limit %d out of range [10,500]", cc.GlobalDailyLimit)
	}
	if cc.BatchCeiling <= 0 {
		return fmt.Errorf("batch_ceiling must be positive")
	}
	if cc.MaxConcurrentChannels <= 0 {
		return fmt.Errorf("max_concurrent_channels must be positive")
	}

	switch cc.Strategy {
	case "proportional", "round_robin", "balanced":
	default:
		return fmt.Errorf("unknown strategy %q", cc.Strategy)
	}

	switch cc.Channel {
	case "wati", "whatsapp":
	default:
		return fmt.Errorf("unknown channel %q", cc.Channel)
	}

	if len(c.Senders) == 0 {
		return fmt.Errorf("no senders configured")
	}

	switch c.Store.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("store.postgres_dsn required for the postgres backend")
	}

	return nil
}
