package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolgroups/lead-outreach/internal/gateway"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/outreach"
)

func TestParseJID(t *testing.T) {
	jid, err := parseJID("+91 98765-43210")
	require.NoError(t, err)
	assert.Equal(t, "919876543210", jid.User)
	assert.Equal(t, "s.whatsapp.net", jid.Server)

	_, err = parseJID("12345")
	assert.Error(t, err, "too few digits for a phone number")
}

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		err  string
		want outreach.ErrorCategory
	}{
		{"untrusted identity: 919876543210", outreach.CategorySecurityMismatch},
		{"client is not logged in", outreach.CategorySessionExpired},
		{"websocket disconnected before response", outreach.CategoryNetworkError},
		{"server returned error 479", outreach.CategoryNetworkError},
		{"something odd happened", outreach.CategoryUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifySendError(errors.New(tt.err)), tt.err)
	}
}

func TestSendWithoutOpenFailsAsSessionExpired(t *testing.T) {
	c := New(Options{}, logger.NewNop())

	out := c.Send(context.Background(), gateway.Request{Phone: "+919876543210", Message: "hi"})

	assert.False(t, out.Success)
	assert.Equal(t, outreach.CategorySessionExpired, out.Category)
	assert.False(t, out.Continue, "a dead session halts the batch")
}
