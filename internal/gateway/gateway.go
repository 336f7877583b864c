// Package gateway defines the delivery channel abstraction and the retry
// policy wrapped around it. Concrete channels live in this package (WATI
// REST) and in the whatsapp subpackage (direct WhatsApp Web session).
package gateway

import (
	"context"

	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
)

// Request is one outbound message. Message carries the fully rendered text
// for channels that send plain text; Params carries the raw placeholder
// values for channels that render templates server-side.
type Request struct {
	Phone   string
	Message string
	Params  map[string]string
}

// Channel is a delivery transport. Open is called once before a batch and
// Close once after, regardless of how the batch ended. Send never returns a
// Go error: every failure mode is folded into the outcome so the caller can
// act on the category.
type Channel interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, req Request) model.DeliveryOutcome
	Close() error
}

// StatusChecker is implemented by channels that can report what happened to
// a message after the initial send was accepted.
type StatusChecker interface {
	DeliveryStatus(ctx context.Context, messageID string) (outreach.Status, error)
}

// ContactChecker is implemented by channels that can verify a phone number
// is reachable before any message is attempted.
type ContactChecker interface {
	CheckContact(ctx context.Context, phone string) (bool, error)
}
