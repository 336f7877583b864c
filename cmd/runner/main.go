package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/evolgroups/lead-outreach/internal/campaign"
	"github.com/evolgroups/lead-outreach/internal/config"
	"github.com/evolgroups/lead-outreach/internal/gateway"
	"github.com/evolgroups/lead-outreach/internal/gateway/whatsapp"
	"github.com/evolgroups/lead-outreach/internal/leadapi"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/metrics"
	"github.com/evolgroups/lead-outreach/internal/pool"
	"github.com/evolgroups/lead-outreach/internal/scheduler"
	"github.com/evolgroups/lead-outreach/internal/store"
)

// runner is the campaign process: one-shot by default, cron-driven when
// campaign.cron_spec is configured.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewStructured("error", "console").Error("configuration invalid",
			map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	quota, dedup, closeStores, err := buildStores(cfg)
	if err != nil {
		log.WithError(err).Error("store init failed", nil)
		os.Exit(1)
	}
	defer closeStores()

	p, err := pool.New(cfg.Senders, cfg.Campaign.GlobalDailyLimit)
	if err != nil {
		log.WithError(err).Error("sender roster invalid", nil)
		os.Exit(1)
	}

	leads := leadapi.New(
		cfg.LeadAPI.URL, cfg.LeadAPI.LogURL, cfg.LeadAPI.Token,
		cfg.LeadAPI.OwnerID, cfg.Campaign.TemplateName,
		time.Duration(cfg.LeadAPI.Timeout)*time.Second, log,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	runner := buildRunner(cfg, p, quota, dedup, leads, m, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Campaign.CronSpec != "" {
		sched := scheduler.New(runner, cfg.Campaign.CronSpec, log)
		if err := sched.Start(ctx); err != nil {
			log.WithError(err).Error("cron spec invalid", nil)
			os.Exit(1)
		}
		log.Info("scheduler started", map[string]interface{}{"spec": cfg.Campaign.CronSpec})
		<-ctx.Done()
		sched.Stop()
		return
	}

	report := runner.Run(ctx)
	out, _ := json.MarshalIndent(report, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}

func buildStores(cfg *config.Config) (store.QuotaStore, store.DedupStore, func(), error) {
	if cfg.Store.Backend == "postgres" {
		pg, err := store.NewPostgresStore(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg, func() { pg.Close() }, nil
	}

	quota := store.NewFileQuotaStore(filepath.Join(cfg.Store.Dir, "quota_usage.json"))
	dedup := store.NewFileDedupStore(filepath.Join(cfg.Store.Dir, "sent_messages.json"))
	return quota, dedup, func() {}, nil
}

// buildRunner picks the single-channel orchestrator or the multi-team
// variant depending on how many sender teams are configured.
func buildRunner(cfg *config.Config, p *pool.Pool, quota store.QuotaStore, dedup store.DedupStore,
	leads *leadapi.Client, m *metrics.Metrics, log logger.Logger) scheduler.Runner {

	if len(p.Teams()) > 1 {
		factory := func(team string) (gateway.Channel, error) {
			return buildChannel(cfg, team, log), nil
		}
		return campaign.NewMultiTeam(cfg.Campaign, p, quota, dedup, leads, factory, m, log)
	}

	channel := buildChannel(cfg, "", log)
	return campaign.New(cfg.Campaign, p, quota, dedup, leads, channel, m, log)
}

func buildChannel(cfg *config.Config, team string, log logger.Logger) gateway.Channel {
	if cfg.Campaign.Channel == "whatsapp" {
		sessionDir := cfg.WhatsApp.SessionDir
		qrPath := cfg.WhatsApp.QROutputPath
		if team != "" {
			sessionDir = filepath.Join(sessionDir, team)
			qrPath = filepath.Join(sessionDir, "login-qr.png")
		}
		return whatsapp.New(whatsapp.Options{
			SessionDir:   sessionDir,
			QROutputPath: qrPath,
			LoginTimeout: time.Duration(cfg.WhatsApp.LoginTimeout) * time.Second,
		}, log)
	}
	return gateway.NewWATIChannel(
		cfg.WATI.BaseURL, cfg.WATI.APIKey, cfg.Campaign.TemplateName,
		time.Duration(cfg.WATI.Timeout)*time.Second, log,
	)
}
