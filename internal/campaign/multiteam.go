package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evolgroups/lead-outreach/internal/config"
	"github.com/evolgroups/lead-outreach/internal/distribute"
	"github.com/evolgroups/lead-outreach/internal/gateway"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/metrics"
	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
	"github.com/evolgroups/lead-outreach/internal/pool"
	"github.com/evolgroups/lead-outreach/internal/store"
)

// ChannelFactory opens an independent delivery channel for one sender team.
// Each team owns its own session; channels are never shared across workers.
type ChannelFactory func(team string) (gateway.Channel, error)

// MultiTeam runs one campaign across several sender teams concurrently.
// Leads are split by the configured distribution strategy and each team
// processes its slice on its own channel, bounded by MaxConcurrentChannels.
// The quota and dedup stores are the only state shared across workers.
type MultiTeam struct {
	cfg      config.CampaignConfig
	pool     *pool.Pool
	quota    store.QuotaStore
	dedup    store.DedupStore
	leads    LeadSource
	channels ChannelFactory
	metrics  *metrics.Metrics
	log      logger.Logger

	now    func() time.Time
	sleep  func(time.Duration)
	jitter func(min, max time.Duration) time.Duration
}

// NewMultiTeam builds a multi-team runner. metrics may be nil.
func NewMultiTeam(cfg config.CampaignConfig, p *pool.Pool, quota store.QuotaStore, dedup store.DedupStore,
	leads LeadSource, channels ChannelFactory, m *metrics.Metrics, log logger.Logger) *MultiTeam {
	return &MultiTeam{
		cfg:      cfg,
		pool:     p,
		quota:    quota,
		dedup:    dedup,
		leads:    leads,
		channels: channels,
		metrics:  m,
		log:      log,
		now:      time.Now,
		sleep:    time.Sleep,
		jitter:   uniformJitter,
	}
}

// Run executes one multi-team campaign run.
func (r *MultiTeam) Run(ctx context.Context) RunReport {
	runID := uuid.NewString()
	startedAt := r.now()
	analytics := NewAnalytics(startedAt)
	log := r.log.WithFields(map[string]interface{}{"run_id": runID})

	finish := func(status outreach.RunStatus, processed int, msg string) RunReport {
		m := analytics.Metrics(r.now())
		r.metrics.RunFinished(string(status), m.Duration().Seconds())
		log.Info("run finished", map[string]interface{}{
			"status":    string(status),
			"processed": processed,
			"sent":      m.Sent,
			"failed":    m.Failed,
			"skipped":   m.Skipped,
		})
		return RunReport{RunID: runID, Status: status, Processed: processed, Message: msg, Metrics: m}
	}

	gate := &Orchestrator{cfg: r.cfg, log: r.log}
	if !gate.withinWorkingHours(startedAt) {
		return finish(outreach.RunOutsideWorkingHours, 0, "outside configured working hours")
	}

	day := store.Day(startedAt)

	global, err := r.quota.GlobalUsed(day)
	if err != nil {
		return finish(outreach.RunStoreFailed, 0, "quota store unreadable: "+err.Error())
	}
	if global >= r.cfg.GlobalDailyLimit {
		return finish(outreach.RunGlobalQuotaExhausted, 0, "global daily limit reached")
	}

	work, err := r.pool.RemainingWork(r.quota, day)
	if err != nil {
		return finish(outreach.RunStoreFailed, 0, "quota store unreadable: "+err.Error())
	}
	if work == 0 {
		return finish(outreach.RunQuotaExhausted, 0, "every sender is at capacity")
	}

	limit := work
	if r.cfg.BatchCeiling < limit {
		limit = r.cfg.BatchCeiling
	}
	batch, err := r.leads.FetchLeads(ctx, limit)
	if err != nil {
		log.WithError(err).Error("lead fetch failed", nil)
	}
	if len(batch) == 0 {
		return finish(outreach.RunNoLeads, 0, "lead source returned nothing")
	}

	capacities, err := r.pool.TeamCapacities(r.quota, day)
	if err != nil {
		return finish(outreach.RunStoreFailed, 0, "quota store unreadable: "+err.Error())
	}
	assignment := distribute.Distribute(batch, r.pool.Teams(), capacities, distribute.Strategy(r.cfg.Strategy))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
		opened    int
	)
	sem := make(chan struct{}, r.cfg.MaxConcurrentChannels)

	for _, team := range r.pool.Teams() {
		teamLeads := assignment[team]
		if len(teamLeads) == 0 {
			continue
		}

		wg.Add(1)
		go func(team string, leads []model.Lead) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			teamLog := log.WithFields(map[string]interface{}{"team": team})

			subPool, err := r.pool.ForTeam(team)
			if err != nil {
				teamLog.WithError(err).Error("team has no senders", nil)
				return
			}
			channel, err := r.channels(team)
			if err != nil {
				teamLog.WithError(err).Error("channel failed to open", nil)
				return
			}
			if err := channel.Open(ctx); err != nil {
				teamLog.WithError(err).Error("channel failed to open", nil)
				return
			}
			defer func() {
				if err := channel.Close(); err != nil {
					teamLog.WithError(err).Warn("channel close failed", nil)
				}
			}()

			mu.Lock()
			opened++
			mu.Unlock()

			worker := &Orchestrator{
				cfg:     r.cfg,
				pool:    subPool,
				quota:   r.quota,
				dedup:   r.dedup,
				leads:   r.leads,
				channel: channel,
				retry:   gateway.DefaultRetryPolicy(),
				metrics: r.metrics,
				log:     teamLog,
				now:     r.now,
				sleep:   r.sleep,
				jitter:  r.jitter,
			}
			status, n := worker.processBatch(ctx, day, leads, analytics, teamLog)
			teamLog.Info("team batch finished", map[string]interface{}{
				"status":    string(status),
				"processed": n,
			})

			mu.Lock()
			processed += n
			mu.Unlock()
		}(team, teamLeads)
	}
	wg.Wait()

	if opened == 0 {
		return finish(outreach.RunChannelFailed, processed, "no delivery channel could be established")
	}
	return finish(outreach.RunCompleted, processed, "")
}
