// Package outreach holds the closed enumerations shared across the campaign
// engine: message statuses, error categories and run-level terminal statuses.
package outreach

// Status tracks where a message is in its delivery lifecycle.
type Status string

const (
	StatusSent      Status = "sent"      // channel accepted the message
	StatusDelivered Status = "delivered" // delivered to the recipient's device
	StatusRead      Status = "read"      // read by the recipient
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending" // waiting for delivery confirmation
)

// RunStatus is the terminal status of one campaign run. Every run ends with
// exactly one of these, regardless of how far processing got.
type RunStatus string

const (
	RunCompleted            RunStatus = "completed"
	RunOutsideWorkingHours  RunStatus = "outside_working_hours"
	RunGlobalQuotaExhausted RunStatus = "global_quota_exhausted"
	RunQuotaExhausted       RunStatus = "quota_exhausted"
	RunChannelFailed        RunStatus = "channel_failed"
	RunStoreFailed          RunStatus = "store_failed"
	RunNoLeads              RunStatus = "no_leads"
)
