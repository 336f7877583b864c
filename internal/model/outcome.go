package model

import (
	"time"

	"github.com/evolgroups/lead-outreach/internal/outreach"
)

// DeliveryOutcome is the structured result of one send attempt.
//
// Success false implies Status failed or pending. Continue false is reserved
// for systemic failures: the caller must stop the batch rather than keep
// sending through a channel that cannot deliver anything.
type DeliveryOutcome struct {
	Success   bool
	Status    outreach.Status
	MessageID string
	Category  outreach.ErrorCategory
	Detail    string
	Continue  bool
}

// Succeeded returns a successful outcome for a message the channel accepted.
func Succeeded(messageID string) DeliveryOutcome {
	return DeliveryOutcome{
		Success:   true,
		Status:    outreach.StatusSent,
		MessageID: messageID,
		Continue:  true,
	}
}

// Failed returns a failed outcome; Continue is derived from whether the
// category is systemic.
func Failed(category outreach.ErrorCategory, detail string) DeliveryOutcome {
	return DeliveryOutcome{
		Success:  false,
		Status:   outreach.StatusFailed,
		Category: category,
		Detail:   detail,
		Continue: !category.Systemic(),
	}
}

// CampaignMetrics aggregates outcomes over one run. Rebuilt fresh each run,
// never persisted.
type CampaignMetrics struct {
	Sent            int                       `json:"sent"`
	Delivered       int                       `json:"delivered"`
	Read            int                       `json:"read"`
	Failed          int                       `json:"failed"`
	Pending         int                       `json:"pending"`
	Skipped         int                       `json:"skipped"`
	TotalProcessed  int                       `json:"total_processed"`
	SuccessRate     float64                   `json:"success_rate"`
	StartedAt       time.Time                 `json:"started_at"`
	EndedAt         time.Time                 `json:"ended_at"`
	SenderStats     map[string]map[string]int `json:"sender_stats"`
	ErrorCategories map[string]int            `json:"error_categories"`
}

// Duration is the wall-clock span of the run.
func (m CampaignMetrics) Duration() time.Duration {
	if m.StartedAt.IsZero() || m.EndedAt.IsZero() {
		return 0
	}
	return m.EndedAt.Sub(m.StartedAt)
}
