package campaign

import (
	"sync"
	"time"

	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
)

// Analytics accumulates per-run delivery statistics. Safe for concurrent
// use: team workers report outcomes from their own goroutines.
type Analytics struct {
	mu        sync.Mutex
	startedAt time.Time
	sent      int
	delivered int
	read      int
	failed    int
	pending   int
	skipped   int
	senders   map[string]map[string]int
	errors    map[string]int
}

// NewAnalytics starts a fresh per-run accumulator.
func NewAnalytics(startedAt time.Time) *Analytics {
	return &Analytics{
		startedAt: startedAt,
		senders:   map[string]map[string]int{},
		errors:    map[string]int{},
	}
}

// TrackOutcome records one send attempt against the sender that carried it.
func (a *Analytics) TrackOutcome(sender string, outcome model.DeliveryOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch outcome.Status {
	case outreach.StatusSent:
		a.sent++
	case outreach.StatusDelivered:
		a.delivered++
	case outreach.StatusRead:
		a.read++
	case outreach.StatusPending:
		a.pending++
	default:
		a.failed++
	}

	if !outcome.Success && outcome.Category != "" {
		a.errors[string(outcome.Category)]++
	}

	stats, ok := a.senders[sender]
	if !ok {
		stats = map[string]int{}
		a.senders[sender] = stats
	}
	stats[string(outcome.Status)]++
}

// TrackSkip records a lead that was never attempted (already messaged).
func (a *Analytics) TrackSkip() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped++
}

// Metrics snapshots the accumulated counters. Success rate counts every
// status at or beyond sent, over the attempted total; skipped leads are
// excluded from the denominator.
func (a *Analytics) Metrics(endedAt time.Time) model.CampaignMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	succeeded := a.sent + a.delivered + a.read
	attempted := succeeded + a.failed + a.pending

	rate := 0.0
	if attempted > 0 {
		rate = float64(succeeded) / float64(attempted) * 100
	}

	senders := make(map[string]map[string]int, len(a.senders))
	for name, stats := range a.senders {
		copied := make(map[string]int, len(stats))
		for k, v := range stats {
			copied[k] = v
		}
		senders[name] = copied
	}
	errors := make(map[string]int, len(a.errors))
	for k, v := range a.errors {
		errors[k] = v
	}

	return model.CampaignMetrics{
		Sent:            a.sent,
		Delivered:       a.delivered,
		Read:            a.read,
		Failed:          a.failed,
		Pending:         a.pending,
		Skipped:         a.skipped,
		TotalProcessed:  attempted + a.skipped,
		SuccessRate:     rate,
		StartedAt:       a.startedAt,
		EndedAt:         endedAt,
		SenderStats:     senders,
		ErrorCategories: errors,
	}
}
