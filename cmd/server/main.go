package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evolgroups/lead-outreach/internal/campaign"
	"github.com/evolgroups/lead-outreach/internal/config"
	"github.com/evolgroups/lead-outreach/internal/gateway"
	"github.com/evolgroups/lead-outreach/internal/gateway/whatsapp"
	"github.com/evolgroups/lead-outreach/internal/leadapi"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/metrics"
	"github.com/evolgroups/lead-outreach/internal/pool"
	"github.com/evolgroups/lead-outreach/internal/server"
	"github.com/evolgroups/lead-outreach/internal/store"
)

// server exposes the operational HTTP surface: trigger runs, inspect
// quota, health and metrics.
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

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	runner := buildRunner(cfg, p, quota, dedup, leads, m, log)

	s := server.New(runner, p, quota,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		cfg.Campaign.MessageTemplate, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed", nil)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete", nil)
	}
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

func buildRunner(cfg *config.Config, p *pool.Pool, quota store.QuotaStore, dedup store.DedupStore,
	leads *leadapi.Client, m *metrics.Metrics, log logger.Logger) server.Runner {

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
