// Package leadapi talks to the CRM backend: it fetches the leads to contact
// and writes a delivery log entry per attempt.
package leadapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/model"
)

// Client is the CRM API client. Both endpoints are best effort from the
// campaign's point of view: a fetch problem yields an empty batch and a log
// problem is reported but never blocks the next send.
type Client struct {
	fetchURL     string
	logURL       string
	token        string
	ownerID      int
	templateName string
	http         *http.Client
	log          logger.Logger
}

// New builds a CRM client.
func New(fetchURL, logURL, token string, ownerID int, templateName string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		fetchURL:     fetchURL,
		logURL:       logURL,
		token:        token,
		ownerID:      ownerID,
		templateName: templateName,
		http:         &http.Client{Timeout: timeout},
		log:          log,
	}
}

// rawLead tolerates numeric and string lead ids; the backend has emitted
// both over time.
type rawLead struct {
	ID       json.Number `json:"lead_id"`
	FullName string      `json:"full_name"`
	Phone    string      `json:"mobile_number_formatted"`
}

// FetchLeads asks for up to limit leads that have not been messaged with the
// configured template. Any failure returns an empty batch: a campaign run
// with nothing to do is preferable to one that dies on a flaky CRM.
func (c *Client) FetchLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	q := url.Values{}
	q.Set("owner_id", strconv.Itoa(c.ownerID))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("template_name", c.templateName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fetchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("lead fetch failed", map[string]interface{}{"error": err.Error()})
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("lead api returned non-200", map[string]interface{}{"status": resp.StatusCode})
		return nil, nil
	}

	var body struct {
		Data []rawLead `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Error("lead api response malformed", map[string]interface{}{"error": err.Error()})
		return nil, nil
	}

	leads := make([]model.Lead, 0, len(body.Data))
	for _, r := range body.Data {
		if r.ID.String() == "" || r.Phone == "" {
			continue
		}
		leads = append(leads, model.Lead{
			ID:       r.ID.String(),
			FullName: r.FullName,
			Phone:    r.Phone,
		})
	}

	c.log.Info("leads fetched", map[string]interface{}{"count": len(leads)})
	return leads, nil
}

// DeliveryLog is one delivery log entry for the CRM.
type DeliveryLog struct {
	LeadID         string  `json:"lead_id"`
	MessageContent string  `json:"message_content"`
	MsgType        string  `json:"msg_type"`
	MsgStatus      string  `json:"msg_status"`
	ToPhoneNumber  string  `json:"to_phone_number"`
	TemplateName   string  `json:"template_name"`
	WATIMessageID  string  `json:"wati_message_id,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	SentAt         *string `json:"sent_at,omitempty"`
}

// LogDelivery records one attempt against a lead. The CRM answers 200 or
// 201 on success; callers treat a returned error as advisory.
func (c *Client) LogDelivery(ctx context.Context, lead model.Lead, status, messageID, errDetail string) error {
	entry := DeliveryLog{
		LeadID:         lead.ID,
		MessageContent: "Template: " + c.templateName,
		MsgType:        "template",
		MsgStatus:      status,
		ToPhoneNumber:  lead.Phone,
		TemplateName:   c.templateName,
		WATIMessageID:  messageID,
		ErrorMessage:   errDetail,
	}
	if status == "sent" {
		now := time.Now().Format(time.RFC3339)
		entry.SentAt = &now
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode delivery log: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.logURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build log request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post delivery log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("delivery log rejected: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
