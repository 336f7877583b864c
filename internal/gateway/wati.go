package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
)

const watiBroadcastName = "lead_automation"

// WATIChannel delivers template messages through the WATI REST API. The
// template is rendered server-side from Params; Message is ignored.
type WATIChannel struct {
	baseURL      string
	apiKey       string
	templateName string
	client       *http.Client
	log          logger.Logger
}

// NewWATIChannel builds a WATI channel. baseURL is the tenant endpoint up to
// and including /api/v1.
func NewWATIChannel(baseURL, apiKey, templateName string, timeout time.Duration, log logger.Logger) *WATIChannel {
	return &WATIChannel{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		templateName: templateName,
		client:       &http.Client{Timeout: timeout},
		log:          log,
	}
}

// Open is a no-op: the REST API needs no session.
func (w *WATIChannel) Open(ctx context.Context) error { return nil }

// Close is a no-op.
func (w *WATIChannel) Close() error { return nil }

type watiParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type watiSendRequest struct {
	TemplateName  string          `json:"template_name"`
	BroadcastName string          `json:"broadcast_name"`
	Parameters    []watiParameter `json:"parameters,omitempty"`
}

type watiSendResponse struct {
	Result    bool   `json:"result"`
	Info      string `json:"info"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
}

// Send posts a sendTemplateMessage request. A non-200 answer is mapped from
// the status code alone, because WATI error pages are often plain text. The
// API also reports rejections with HTTP 200 and result=false; for those the
// info string is classified into an error category.
func (w *WATIChannel) Send(ctx context.Context, req Request) model.DeliveryOutcome {
	payload := watiSendRequest{
		TemplateName:  w.templateName,
		BroadcastName: watiBroadcastName,
	}
	for name, value := range req.Params {
		payload.Parameters = append(payload.Parameters, watiParameter{Name: name, Value: value})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.Failed(outreach.CategoryUnknown, fmt.Sprintf("encode request: %v", err))
	}

	endpoint := fmt.Sprintf("%s/sendTemplateMessage?whatsappNumber=%s",
		w.baseURL, url.QueryEscape(digitsOnly(req.Phone)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Failed(outreach.CategoryUnknown, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return model.Failed(outreach.CategoryNetworkError, fmt.Sprintf("wati request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("wati http %d: %s", resp.StatusCode, bodySnippet(resp.Body))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return model.Failed(outreach.CategoryAccountIssue, detail)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return model.Failed(outreach.CategoryQuotaExceeded, detail)
		}
		return model.Failed(outreach.CategoryNetworkError, detail)
	}

	var parsed watiSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Failed(outreach.CategoryUnknown, fmt.Sprintf("decode wati response: %v", err))
	}

	if !parsed.Result {
		w.log.Warn("wati rejected message", map[string]interface{}{
			"phone": req.Phone,
			"info":  parsed.Info,
		})
		return model.Failed(outreach.Classify(parsed.Info), parsed.Info)
	}

	messageID := parsed.MessageID
	if messageID == "" {
		messageID = parsed.ID
	}
	return model.Succeeded(messageID)
}

// DeliveryStatus polls the message resource. Any problem reading the status
// maps to pending rather than an error: delivery confirmation is best
// effort and must never fail a message the API already accepted.
func (w *WATIChannel) DeliveryStatus(ctx context.Context, messageID string) (outreach.Status, error) {
	if messageID == "" {
		return outreach.StatusPending, nil
	}

	endpoint := fmt.Sprintf("%s/messages/%s", w.baseURL, url.PathEscape(messageID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return outreach.StatusPending, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return outreach.StatusPending, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return outreach.StatusPending, nil
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return outreach.StatusPending, nil
	}

	switch strings.ToLower(parsed.Status) {
	case "sent":
		return outreach.StatusSent, nil
	case "delivered":
		return outreach.StatusDelivered, nil
	case "read":
		return outreach.StatusRead, nil
	case "failed":
		return outreach.StatusFailed, nil
	default:
		return outreach.StatusPending, nil
	}
}

// bodySnippet reads up to 200 bytes of an error body for the failure detail.
func bodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 200))
	return strings.TrimSpace(string(b))
}

// digitsOnly strips everything but digits; WATI wants bare numbers without
// the leading plus.
func digitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	_ Channel       = (*WATIChannel)(nil)
	_ StatusChecker = (*WATIChannel)(nil)
)
