package gateway

import (
	"context"
	"time"

	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
)

// RetryPolicy controls re-attempts of a failed send. Only transient
// categories are retried; systemic failures and permanent per-lead failures
// (bad number, opt-out) surface immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(outreach.ErrorCategory) bool
}

// DefaultRetryPolicy retries network hiccups and unclassified errors twice
// more with a linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		Retryable:   TransientCategory,
	}
}

// TransientCategory reports whether a failure of this category may succeed
// on a plain re-attempt.
func TransientCategory(c outreach.ErrorCategory) bool {
	return c == outreach.CategoryNetworkError || c == outreach.CategoryUnknown
}

// SendWithRetry sends through the channel, re-attempting per the policy.
// The backoff grows linearly with the attempt number. Context cancellation
// aborts between attempts with a network_error outcome.
func SendWithRetry(ctx context.Context, ch Channel, req Request, policy RetryPolicy) model.DeliveryOutcome {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = TransientCategory
	}

	var outcome model.DeliveryOutcome
	for attempt := 1; attempt <= attempts; attempt++ {
		outcome = ch.Send(ctx, req)
		if outcome.Success || !retryable(outcome.Category) {
			return outcome
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return model.Failed(outreach.CategoryNetworkError, "send aborted: "+ctx.Err().Error())
		case <-time.After(policy.Backoff * time.Duration(attempt)):
		}
	}
	return outcome
}
