package outreach

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies a delivery failure. The set is closed; anything
// the classifier cannot place lands in CategoryUnknown.
type ErrorCategory string

const (
	CategoryInvalidNumber    ErrorCategory = "invalid_number"
	CategoryNotOnWhatsApp    ErrorCategory = "not_on_whatsapp"
	CategoryOptOut           ErrorCategory = "opt_out"
	CategoryTemplateMismatch ErrorCategory = "template_mismatch"
	CategoryQuotaExceeded    ErrorCategory = "quota_exceeded"
	CategoryNetworkError     ErrorCategory = "network_error"
	CategoryAccountIssue     ErrorCategory = "account_issue"
	CategorySessionExpired   ErrorCategory = "session_expired"
	CategoryElementNotFound  ErrorCategory = "element_not_found"
	CategorySecurityMismatch ErrorCategory = "security_mismatch"
	CategoryUnknown          ErrorCategory = "unknown_error"
)

// Categories lists every category, in a stable order, for reporting.
var Categories = []ErrorCategory{
	CategoryInvalidNumber,
	CategoryNotOnWhatsApp,
	CategoryOptOut,
	CategoryTemplateMismatch,
	CategoryQuotaExceeded,
	CategoryNetworkError,
	CategoryAccountIssue,
	CategorySessionExpired,
	CategoryElementNotFound,
	CategorySecurityMismatch,
	CategoryUnknown,
}

// Systemic reports whether failures of this category invalidate every
// subsequent send on the same channel. A systemic failure halts the batch:
// continuing would burn the remaining leads against a channel that is
// guaranteed to keep failing.
func (c ErrorCategory) Systemic() bool {
	switch c {
	case CategoryQuotaExceeded, CategoryAccountIssue, CategoryTemplateMismatch,
		CategorySessionExpired, CategorySecurityMismatch:
		return true
	default:
		return false
	}
}

// Error is a categorized delivery error.
type Error struct {
	Category ErrorCategory
	Detail   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError builds a categorized delivery error.
func NewError(category ErrorCategory, detail string) *Error {
	return &Error{Category: category, Detail: detail}
}

// Classify maps the free-text info string returned by a delivery channel to
// an error category. Matching is keyword based with an explicit unknown
// fallback; the Meta quality-restriction phrasings come first because they
// must stop the campaign even though they also mention other keywords.
func Classify(info string) ErrorCategory {
	lower := strings.ToLower(info)

	contains := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("meta has restricted", "higher quality messaging", "retry again in a few days"):
		return CategoryAccountIssue
	case contains("untrusted identity", "identity mismatch", "security code"):
		return CategorySecurityMismatch
	case contains("logged out", "session expired", "scan the qr"):
		return CategorySessionExpired
	case contains("credits", "quota", "limit"):
		return CategoryQuotaExceeded
	case contains("template", "approved", "rejected"):
		return CategoryTemplateMismatch
	case contains("account", "suspended", "disabled"):
		return CategoryAccountIssue
	case contains("invalid", "number", "format"):
		return CategoryInvalidNumber
	case contains("whatsapp", "user not found"):
		return CategoryNotOnWhatsApp
	case contains("opt", "blocked", "unsubscribed"):
		return CategoryOptOut
	case contains("element", "selector", "not interactable"):
		return CategoryElementNotFound
	case contains("timeout", "connection", "network", "unreachable"):
		return CategoryNetworkError
	default:
		return CategoryUnknown
	}
}
