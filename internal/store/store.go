// Package store persists the per-day send counters and the per-day set of
// already-messaged leads. Both stores keep a trailing 7-day window; older
// days are pruned on every write.
package store

import "time"

// RetentionDays is the size of the trailing window kept on disk, today
// included.
const RetentionDays = 7

// QuotaStore tracks per-sender and global send counts per calendar day.
type QuotaStore interface {
	// Used returns the sender's count for the day, zero when absent.
	Used(senderID, day string) (int, error)
	// GlobalUsed returns the day's total across all senders.
	GlobalUsed(day string) (int, error)
	// Increment bumps both the sender's counter and the global counter and
	// persists the result as a single step.
	Increment(senderID, day string) error
}

// DedupStore remembers which leads were messaged on a given day, so that a
// lead never receives two outreach messages in one calendar day no matter
// how often the runner is invoked.
type DedupStore interface {
	HasSent(leadID, day string) (bool, error)
	MarkSent(leadID, day string) error
}

// Day formats t as the ISO calendar date used as the store key.
func Day(t time.Time) string {
	return t.Format("2006-01-02")
}

// cutoff returns the oldest day key retained when writing on day. Keys are
// ISO dates, so string comparison orders them chronologically.
func cutoff(day string) string {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return day
	}
	return Day(t.AddDate(0, 0, -(RetentionDays - 1)))
}
