// Package scheduler triggers campaign runs on a cron spec.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/evolgroups/lead-outreach/internal/campaign"
	"github.com/evolgroups/lead-outreach/internal/logger"
)

// Runner is anything that can execute one campaign run.
type Runner interface {
	Run(ctx context.Context) campaign.RunReport
}

// Scheduler fires the runner on a cron spec in the server's local time.
// Overlapping runs are prevented: a tick that lands while the previous run
// is still going is dropped, since the dedup store would skip every lead
// anyway.
type Scheduler struct {
	engine  *cron.Cron
	runner  Runner
	spec    string
	log     logger.Logger
	running chan struct{}
}

// New builds a scheduler for the given cron spec.
func New(runner Runner, spec string, log logger.Logger) *Scheduler {
	return &Scheduler{
		engine:  cron.New(cron.WithLocation(time.Local)),
		runner:  runner,
		spec:    spec,
		log:     log,
		running: make(chan struct{}, 1),
	}
}

// Start registers the job and starts the cron engine.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.engine.AddFunc(s.spec, func() {
		select {
		case s.running <- struct{}{}:
			defer func() { <-s.running }()
		default:
			s.log.Warn("previous run still in progress, skipping tick", nil)
			return
		}

		s.log.Info("scheduled run starting", map[string]interface{}{"spec": s.spec})
		report := s.runner.Run(ctx)
		s.log.Info("scheduled run done", map[string]interface{}{
			"status":    string(report.Status),
			"processed": report.Processed,
		})
	})
	if err != nil {
		return err
	}
	s.engine.Start()
	return nil
}

// Stop halts the engine and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.engine.Stop().Done()
}
