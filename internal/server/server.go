// Package server exposes the operational HTTP surface: run triggering,
// quota inspection, health and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evolgroups/lead-outreach/internal/campaign"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/pool"
	"github.com/evolgroups/lead-outreach/internal/store"
)

// Runner is anything that can execute one campaign run.
type Runner interface {
	Run(ctx context.Context) campaign.RunReport
}

// Server holds the dependencies for the HTTP handlers.
type Server struct {
	runner         Runner
	pool           *pool.Pool
	quota          store.QuotaStore
	metricsHandler http.Handler
	template       string
	log            logger.Logger

	mu         sync.Mutex
	running    bool
	lastReport *campaign.RunReport
}

// New builds a server. metricsHandler serves GET /metrics and is typically
// promhttp; pass nil to disable the endpoint.
func New(runner Runner, p *pool.Pool, quota store.QuotaStore, metricsHandler http.Handler, template string, log logger.Logger) *Server {
	return &Server{
		runner:         runner,
		pool:           p,
		quota:          quota,
		metricsHandler: metricsHandler,
		template:       template,
		log:            log,
	}
}

// Routes assembles the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Post("/runs", s.TriggerRunHandler)
	r.Get("/runs/latest", s.LatestRunHandler)
	r.Get("/quota", s.QuotaHandler)
	r.Post("/preview", s.PreviewHandler)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	return r
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TriggerRunHandler starts a campaign run in the background. Only one run
// may be in flight; a second trigger gets 409 rather than a queued run,
// because the dedup store would make the duplicate a no-op anyway.
func (s *Server) TriggerRunHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		report := s.runner.Run(context.Background())
		s.mu.Lock()
		s.running = false
		s.lastReport = &report
		s.mu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// LatestRunHandler returns the report of the most recent finished run.
func (s *Server) LatestRunHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	report := s.lastReport
	running := s.running
	s.mu.Unlock()

	if report == nil {
		http.Error(w, "no run has finished yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": running,
		"report":  report,
	})
}

type senderQuota struct {
	Name      string `json:"name"`
	Team      string `json:"team,omitempty"`
	Used      int    `json:"used"`
	Capacity  int    `json:"capacity"`
	Remaining int    `json:"remaining"`
}

// QuotaHandler reports today's usage per sender plus the global total.
func (s *Server) QuotaHandler(w http.ResponseWriter, r *http.Request) {
	day := store.Day(time.Now())

	senders := make([]senderQuota, 0, len(s.pool.Senders()))
	for _, sender := range s.pool.Senders() {
		used, err := s.quota.Used(sender.Name, day)
		if err != nil {
			http.Error(w, "failed to read quota: "+err.Error(), http.StatusInternalServerError)
			return
		}
		senders = append(senders, senderQuota{
			Name:      sender.Name,
			Team:      sender.Team,
			Used:      used,
			Capacity:  sender.DailyLimit,
			Remaining: sender.DailyLimit - used,
		})
	}

	global, err := s.quota.GlobalUsed(day)
	if err != nil {
		http.Error(w, "failed to read quota: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day":         day,
		"global_used": global,
		"senders":     senders,
	})
}

// PreviewHandler renders the configured template against a sample lead so
// an operator can eyeball the message before a run.
func (s *Server) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LeadName         string `json:"lead_name"`
		CounsellorName   string `json:"counsellor_name"`
		CounsellorPhone  string `json:"counsellor_phone"`
		OverrideTemplate string `json:"override_template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	template := s.template
	if body.OverrideTemplate != "" {
		template = body.OverrideTemplate
	}

	lead := model.Lead{FullName: body.LeadName}
	rendered := campaign.RenderTemplate(template, map[string]string{
		"name":             lead.DisplayName(),
		"counsellor_name":  body.CounsellorName,
		"counsellor_phone": body.CounsellorPhone,
	})

	writeJSON(w, http.StatusOK, map[string]string{"rendered_message": rendered})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
