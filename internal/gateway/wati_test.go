package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/outreach"
)

func newTestChannel(t *testing.T, handler http.HandlerFunc) *WATIChannel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWATIChannel(srv.URL, "test-key", "lead_intro", 5*time.Second, logger.NewTestLogger(t))
}

func TestWATIChannel_SendSuccess(t *testing.T) {
	var got watiSendRequest
	var gotPhone, gotAuth string

	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sendTemplateMessage", r.URL.Path)
		gotPhone = r.URL.Query().Get("whatsappNumber")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":    true,
			"messageId": "msg-123",
		})
	})

	out := ch.Send(context.Background(), Request{
		Phone:  "+91 98765-43210",
		Params: map[string]string{"name": "Anandi"},
	})

	assert.True(t, out.Success)
	assert.Equal(t, outreach.StatusSent, out.Status)
	assert.Equal(t, "msg-123", out.MessageID)
	assert.True(t, out.Continue)

	assert.Equal(t, "919876543210", gotPhone, "number is sent as bare digits")
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "lead_intro", got.TemplateName)
	assert.Equal(t, "lead_automation", got.BroadcastName)
	require.Len(t, got.Parameters, 1)
	assert.Equal(t, watiParameter{Name: "name", Value: "Anandi"}, got.Parameters[0])
}

func TestWATIChannel_SendRejectedClassifiesInfo(t *testing.T) {
	tests := []struct {
		info         string
		category     outreach.ErrorCategory
		wantContinue bool
	}{
		{"Invalid phone number format", outreach.CategoryInvalidNumber, true},
		{"Meta has restricted this account. Retry again in a few days", outreach.CategoryAccountIssue, false},
		{"Template not approved yet", outreach.CategoryTemplateMismatch, false},
		{"insufficient credits remaining", outreach.CategoryQuotaExceeded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"result": false,
					"info":   tt.info,
				})
			})

			out := ch.Send(context.Background(), Request{Phone: "+911"})

			assert.False(t, out.Success)
			assert.Equal(t, tt.category, out.Category)
			assert.Equal(t, tt.wantContinue, out.Continue)
			assert.Equal(t, tt.info, out.Detail)
		})
	}
}

func TestWATIChannel_SendHTTPErrors(t *testing.T) {
	tests := []struct {
		status   int
		category outreach.ErrorCategory
	}{
		{http.StatusUnauthorized, outreach.CategoryAccountIssue},
		{http.StatusTooManyRequests, outreach.CategoryQuotaExceeded},
		{http.StatusInternalServerError, outreach.CategoryNetworkError},
	}

	for _, tt := range tests {
		ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]interface{}{"result": false, "info": "nope"})
		})

		out := ch.Send(context.Background(), Request{Phone: "+911"})
		assert.False(t, out.Success)
		assert.Equal(t, tt.category, out.Category, "http %d", tt.status)
	}
}

func TestWATIChannel_SendUnauthorizedPlainTextBody(t *testing.T) {
	// A revoked or expired key answers 401 with a plain-text page, not JSON.
	// That still has to classify as a systemic account problem.
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("You are not authorized to access this resource"))
	})

	out := ch.Send(context.Background(), Request{Phone: "+911"})

	assert.False(t, out.Success)
	assert.Equal(t, outreach.CategoryAccountIssue, out.Category)
	assert.False(t, out.Continue, "a dead key must halt the batch, not burn it")
	assert.Contains(t, out.Detail, "not authorized")
}

func TestWATIChannel_SendUnreachableHost(t *testing.T) {
	ch := NewWATIChannel("http://127.0.0.1:1", "key", "tmpl", time.Second, logger.NewTestLogger(t))

	out := ch.Send(context.Background(), Request{Phone: "+911"})

	assert.False(t, out.Success)
	assert.Equal(t, outreach.CategoryNetworkError, out.Category)
	assert.True(t, out.Continue, "a connection error is not systemic")
}

func TestWATIChannel_DeliveryStatus(t *testing.T) {
	tests := []struct {
		body string
		want outreach.Status
	}{
		{`{"status":"delivered"}`, outreach.StatusDelivered},
		{`{"status":"READ"}`, outreach.StatusRead},
		{`{"status":"failed"}`, outreach.StatusFailed},
		{`{"status":"queued"}`, outreach.StatusPending},
	}

	for _, tt := range tests {
		ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/messages/msg-1", r.URL.Path)
			w.Write([]byte(tt.body))
		})

		status, err := ch.DeliveryStatus(context.Background(), "msg-1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, status)
	}
}

func TestWATIChannel_DeliveryStatusDegradesToPending(t *testing.T) {
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	status, err := ch.DeliveryStatus(context.Background(), "msg-404")
	require.NoError(t, err)
	assert.Equal(t, outreach.StatusPending, status)

	status, err = ch.DeliveryStatus(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, outreach.StatusPending, status, "no message id means nothing to poll")
}
