package leadapi

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
	"github.com/evolgroups/lead-outreach/internal/model"
)

func newClient(t *testing.T, fetchURL, logURL string) *Client {
	t.Helper()
	return New(fetchURL, logURL, "token-1", 42, "lead_intro", 5*time.Second, logger.NewTestLogger(t))
}

func TestFetchLeads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("owner_id"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "lead_intro", r.URL.Query().Get("template_name"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		w.Write([]byte(`{"data":[
			{"lead_id": 101, "full_name": "Anandi Sharma", "mobile_number_formatted": "+919876543210"},
			{"lead_id": "102", "full_name": "", "mobile_number_formatted": "+919876543211"},
			{"lead_id": 103, "full_name": "No Phone", "mobile_number_formatted": ""}
		]}`))
	}))
	defer srv.Close()

	leads, err := newClient(t, srv.URL, srv.URL).FetchLeads(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, leads, 2, "the lead without a phone number is dropped")
	assert.Equal(t, model.Lead{ID: "101", FullName: "Anandi Sharma", Phone: "+919876543210"}, leads[0])
	assert.Equal(t, "102", leads[1].ID, "string and numeric ids both work")
	assert.Equal(t, "Customer", leads[1].DisplayName())
}

func TestFetchLeads_FailuresYieldEmptyBatch(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		leads, err := newClient(t, srv.URL, srv.URL).FetchLeads(context.Background(), 5)
		require.NoError(t, err)
		assert.Empty(t, leads)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>gateway timeout</html>"))
		}))
		defer srv.Close()

		leads, err := newClient(t, srv.URL, srv.URL).FetchLeads(context.Background(), 5)
		require.NoError(t, err)
		assert.Empty(t, leads)
	})

	t.Run("unreachable host", func(t *testing.T) {
		leads, err := newClient(t, "http://127.0.0.1:1", "http://127.0.0.1:1").FetchLeads(context.Background(), 5)
		require.NoError(t, err)
		assert.Empty(t, leads)
	})
}

func TestLogDelivery(t *testing.T) {
	var got DeliveryLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	lead := model.Lead{ID: "101", FullName: "Anandi", Phone: "+919876543210"}
	err := newClient(t, srv.URL, srv.URL).LogDelivery(context.Background(), lead, "sent", "msg-1", "")
	require.NoError(t, err)

	assert.Equal(t, "101", got.LeadID)
	assert.Equal(t, "sent", got.MsgStatus)
	assert.Equal(t, "template", got.MsgType)
	assert.Equal(t, "msg-1", got.WATIMessageID)
	assert.Equal(t, "lead_intro", got.TemplateName)
	require.NotNil(t, got.SentAt, "sent entries carry a timestamp")
}

func TestLogDelivery_FailureStatusOmitsSentAt(t *testing.T) {
	var got DeliveryLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	lead := model.Lead{ID: "101", Phone: "+911"}
	err := newClient(t, srv.URL, srv.URL).LogDelivery(context.Background(), lead, "failed", "", "invalid number")
	require.NoError(t, err)

	assert.Nil(t, got.SentAt)
	assert.Equal(t, "invalid number", got.ErrorMessage)
}

func TestLogDelivery_RejectionReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	lead := model.Lead{ID: "101", Phone: "+911"}
	err := newClient(t, srv.URL, srv.URL).LogDelivery(context.Background(), lead, "sent", "msg-1", "")
	assert.Error(t, err)
}
