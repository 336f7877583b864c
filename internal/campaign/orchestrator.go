// Package campaign contains the control loop that turns a batch of leads
// into delivered messages without ever breaching a quota.
package campaign

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/evolgroups/lead-outreach/internal/config"
	"github.com/evolgroups/lead-outreach/internal/gateway"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/metrics"
	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
	"github.com/evolgroups/lead-outreach/internal/pool"
	"github.com/evolgroups/lead-outreach/internal/store"
)

// LeadSource provides leads to contact and accepts delivery log entries.
type LeadSource interface {
	FetchLeads(ctx context.Context, limit int) ([]model.Lead, error)
	LogDelivery(ctx context.Context, lead model.Lead, status, messageID, errDetail string) error
}

// RunReport is the structured summary emitted at the end of every run,
// regardless of how far processing got.
type RunReport struct {
	RunID     string                `json:"run_id"`
	Status    outreach.RunStatus    `json:"status"`
	Processed int                   `json:"processed"`
	Message   string                `json:"message,omitempty"`
	Metrics   model.CampaignMetrics `json:"metrics"`
}

// Orchestrator drives one campaign run end to end.
type Orchestrator struct {
	cfg     config.CampaignConfig
	pool    *pool.Pool
	quota   store.QuotaStore
	dedup   store.DedupStore
	leads   LeadSource
	channel gateway.Channel
	retry   gateway.RetryPolicy
	metrics *metrics.Metrics
	log     logger.Logger

	// Injectable clocks for tests.
	now    func() time.Time
	sleep  func(time.Duration)
	jitter func(min, max time.Duration) time.Duration
}

// New builds an orchestrator. metrics may be nil.
func New(cfg config.CampaignConfig, p *pool.Pool, quota store.QuotaStore, dedup store.DedupStore,
	leads LeadSource, channel gateway.Channel, m *metrics.Metrics, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		pool:    p,
		quota:   quota,
		dedup:   dedup,
		leads:   leads,
		channel: channel,
		retry:   gateway.DefaultRetryPolicy(),
		metrics: m,
		log:     log,
		now:     time.Now,
		sleep:   time.Sleep,
		jitter:  uniformJitter,
	}
}

func uniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Run executes one campaign run. It never returns an error: every exit
// path, including gate rejections and channel failures, is reported as a
// RunReport with a terminal status and whatever metrics accumulated.
func (o *Orchestrator) Run(ctx context.Context) RunReport {
	runID := uuid.NewString()
	startedAt := o.now()
	analytics := NewAnalytics(startedAt)
	log := o.log.WithFields(map[string]interface{}{"run_id": runID})

	finish := func(status outreach.RunStatus, processed int, msg string) RunReport {
		m := analytics.Metrics(o.now())
		o.metrics.RunFinished(string(status), m.Duration().Seconds())
		log.Info("run finished", map[string]interface{}{
			"status":    string(status),
			"processed": processed,
			"sent":      m.Sent,
			"failed":    m.Failed,
			"skipped":   m.Skipped,
		})
		return RunReport{RunID: runID, Status: status, Processed: processed, Message: msg, Metrics: m}
	}

	if !o.withinWorkingHours(startedAt) {
		return finish(outreach.RunOutsideWorkingHours, 0, "outside configured working hours")
	}

	day := store.Day(startedAt)

	global, err := o.quota.GlobalUsed(day)
	if err != nil {
		return finish(outreach.RunStoreFailed, 0, "quota store unreadable: "+err.Error())
	}
	if global >= o.cfg.GlobalDailyLimit {
		return finish(outreach.RunGlobalQuotaExhausted, 0, "global daily limit reached")
	}

	work, err := o.pool.RemainingWork(o.quota, day)
	if err != nil {
		return finish(outreach.RunStoreFailed, 0, "quota store unreadable: "+err.Error())
	}
	if work == 0 {
		return finish(outreach.RunQuotaExhausted, 0, "every sender is at capacity")
	}

	if err := o.channel.Open(ctx); err != nil {
		log.WithError(err).Error("delivery channel failed to open", nil)
		return finish(outreach.RunChannelFailed, 0, "channel open: "+err.Error())
	}
	defer func() {
		if err := o.channel.Close(); err != nil {
			log.WithError(err).Warn("delivery channel close failed", nil)
		}
	}()

	limit := work
	if o.cfg.BatchCeiling < limit {
		limit = o.cfg.BatchCeiling
	}
	batch, err := o.leads.FetchLeads(ctx, limit)
	if err != nil {
		log.WithError(err).Error("lead fetch failed", nil)
	}
	if len(batch) == 0 {
		return finish(outreach.RunNoLeads, 0, "lead source returned nothing")
	}

	status, processed := o.processBatch(ctx, day, batch, analytics, log)
	return finish(status, processed, "")
}

// processBatch runs the per-lead loop and returns the terminal status plus
// how many leads were handled (attempted or skipped).
func (o *Orchestrator) processBatch(ctx context.Context, day string, batch []model.Lead,
	analytics *Analytics, log logger.Logger) (outreach.RunStatus, int) {

	processed := 0
	for i, lead := range batch {
		if ctx.Err() != nil {
			log.Warn("run cancelled", map[string]interface{}{"remaining": len(batch) - i})
			return outreach.RunCompleted, processed
		}

		sender, err := o.pool.Pick(o.quota, day)
		if err != nil {
			log.WithError(err).Error("sender pick failed", nil)
			return outreach.RunStoreFailed, processed
		}
		if sender == nil {
			global, gerr := o.quota.GlobalUsed(day)
			if gerr == nil && global >= o.cfg.GlobalDailyLimit {
				return outreach.RunGlobalQuotaExhausted, processed
			}
			return outreach.RunQuotaExhausted, processed
		}

		sent, err := o.dedup.HasSent(lead.ID, day)
		if err != nil {
			log.WithError(err).Error("dedup check failed", map[string]interface{}{"lead": lead.ID})
			return outreach.RunStoreFailed, processed
		}
		if sent {
			analytics.TrackSkip()
			o.metrics.LeadSkipped()
			processed++
			log.Debug("lead already messaged today", map[string]interface{}{"lead": lead.ID})
			continue
		}

		outcome := o.deliver(ctx, lead, *sender, log)
		analytics.TrackOutcome(sender.Name, outcome)
		processed++

		if outcome.Success {
			if err := o.quota.Increment(sender.Name, day); err != nil {
				log.WithError(err).Error("quota increment failed", map[string]interface{}{"sender": sender.Name})
				return outreach.RunStoreFailed, processed
			}
			if err := o.dedup.MarkSent(lead.ID, day); err != nil {
				log.WithError(err).Error("dedup mark failed", map[string]interface{}{"lead": lead.ID})
				return outreach.RunStoreFailed, processed
			}
			o.metrics.MessageSent(sender.Name)
		} else {
			o.metrics.MessageFailed(string(outcome.Category))
			if !outcome.Continue {
				log.Error("systemic failure, halting batch", map[string]interface{}{
					"category":  string(outcome.Category),
					"detail":    outcome.Detail,
					"remaining": len(batch) - i - 1,
				})
				return outreach.RunChannelFailed, processed
			}
		}

		if i < len(batch)-1 {
			o.sleep(o.jitter(o.cfg.MinDelay(), o.cfg.MaxDelay()))
		}
	}
	return outreach.RunCompleted, processed
}

// deliver sends one message and records the attempt in the CRM delivery
// log. Log failures are reported and swallowed; telemetry never blocks the
// campaign.
func (o *Orchestrator) deliver(ctx context.Context, lead model.Lead, sender model.Sender, log logger.Logger) model.DeliveryOutcome {
	phone := lead.Phone
	if o.cfg.UseTestNumber && o.cfg.TestNumber != "" {
		phone = o.cfg.TestNumber
	}

	if checker, ok := o.channel.(gateway.ContactChecker); ok {
		reachable, err := checker.CheckContact(ctx, phone)
		if err != nil {
			log.WithError(err).Warn("contact check failed, attempting send anyway",
				map[string]interface{}{"lead": lead.ID})
		} else if !reachable {
			outcome := model.Failed(outreach.CategoryNotOnWhatsApp, "number is not registered")
			o.logDelivery(ctx, lead, outcome, log)
			return outcome
		}
	}

	values := map[string]string{
		"name":             lead.DisplayName(),
		"counsellor_name":  sender.Name,
		"counsellor_phone": sender.Number,
	}
	req := gateway.Request{
		Phone:   phone,
		Message: RenderTemplate(o.cfg.MessageTemplate, values),
		Params:  values,
	}

	outcome := gateway.SendWithRetry(ctx, o.channel, req, o.retry)

	if outcome.Success {
		if checker, ok := o.channel.(gateway.StatusChecker); ok {
			if status, err := checker.DeliveryStatus(ctx, outcome.MessageID); err == nil {
				if status == outreach.StatusDelivered || status == outreach.StatusRead {
					outcome.Status = status
				}
			}
		}
		log.Info("message sent", map[string]interface{}{
			"lead":   lead.ID,
			"sender": sender.Name,
			"status": string(outcome.Status),
		})
	} else {
		log.Warn("message failed", map[string]interface{}{
			"lead":     lead.ID,
			"sender":   sender.Name,
			"category": string(outcome.Category),
			"detail":   outcome.Detail,
		})
	}

	o.logDelivery(ctx, lead, outcome, log)
	return outcome
}

func (o *Orchestrator) logDelivery(ctx context.Context, lead model.Lead, outcome model.DeliveryOutcome, log logger.Logger) {
	status := "failed"
	if outcome.Success {
		status = "sent"
	}
	if err := o.leads.LogDelivery(ctx, lead, status, outcome.MessageID, outcome.Detail); err != nil {
		log.WithError(err).Warn("delivery log rejected", map[string]interface{}{"lead": lead.ID})
	}
}

// withinWorkingHours checks the [start, end) window against local time.
// An unparseable window fails open: a config typo must not silently block
// a business-hours campaign.
func (o *Orchestrator) withinWorkingHours(now time.Time) bool {
	start, err := time.Parse("15:04", o.cfg.WorkingHoursStart)
	if err != nil {
		o.log.Warn("working_hours_start unparseable, window disabled",
			map[string]interface{}{"value": o.cfg.WorkingHoursStart})
		return true
	}
	end, err := time.Parse("15:04", o.cfg.WorkingHoursEnd)
	if err != nil {
		o.log.Warn("working_hours_end unparseable, window disabled",
			map[string]interface{}{"value": o.cfg.WorkingHoursEnd})
		return true
	}

	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return minutes >= startMin && minutes < endMin
}
