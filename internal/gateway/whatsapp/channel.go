// Package whatsapp delivers messages over a direct WhatsApp Web session.
// It is the fallback transport for deployments without a WATI tenant: the
// session is paired once by scanning a QR code and persisted in a local
// sqlite database, so subsequent runs reconnect silently.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/evolgroups/lead-outreach/internal/gateway"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
)

// Options configures the WhatsApp Web channel.
type Options struct {
	SessionDir   string
	QROutputPath string
	LoginTimeout time.Duration
}

// Channel is a gateway.Channel backed by whatsmeow. Open establishes or
// restores the session; Send pushes plain text messages. Not safe for
// concurrent use: one channel per team, each with its own session database.
type Channel struct {
	opts   Options
	log    logger.Logger
	client *whatsmeow.Client
}

// New builds an unconnected channel.
func New(opts Options, log logger.Logger) *Channel {
	return &Channel{opts: opts, log: log}
}

// Open restores the stored session, or runs the QR pairing flow when no
// session exists. The QR code is written as a PNG so the operator can scan
// it from a phone; pairing waits up to LoginTimeout.
func (c *Channel) Open(ctx context.Context) error {
	if err := os.MkdirAll(c.opts.SessionDir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	dbPath := filepath.Join(c.opts.SessionDir, "whatsapp.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", dbPath)
	container, err := sqlstore.New("sqlite", dsn, waLog.Noop)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice()
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	c.client = whatsmeow.NewClient(device, waLog.Noop)

	if c.client.Store.ID != nil {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("reconnect session: %w", err)
		}
		c.log.Info("whatsapp session restored", map[string]interface{}{
			"device": c.client.Store.ID.String(),
		})
		return nil
	}

	return c.pair(ctx)
}

func (c *Channel) pair(ctx context.Context) error {
	loginCtx, cancel := context.WithTimeout(ctx, c.opts.LoginTimeout)
	defer cancel()

	qrChan, err := c.client.GetQRChannel(loginCtx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect for pairing: %w", err)
	}

	for {
		select {
		case <-loginCtx.Done():
			c.client.Disconnect()
			return fmt.Errorf("pairing timed out after %s", c.opts.LoginTimeout)
		case evt, ok := <-qrChan:
			if !ok {
				if c.client.IsLoggedIn() {
					return nil
				}
				return fmt.Errorf("pairing aborted before login")
			}
			switch evt.Event {
			case "code":
				if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, c.opts.QROutputPath); err != nil {
					return fmt.Errorf("write qr image: %w", err)
				}
				c.log.Info("scan the qr code to pair", map[string]interface{}{
					"path": c.opts.QROutputPath,
				})
			case "success":
				c.log.Info("whatsapp pairing complete", nil)
				return nil
			case "timeout":
				c.client.Disconnect()
				return fmt.Errorf("qr code expired before it was scanned")
			}
		}
	}
}

// Send delivers the rendered message text. Errors from the socket are
// classified by their message; "untrusted identity" means the recipient
// re-registered and their security code changed.
func (c *Channel) Send(ctx context.Context, req gateway.Request) model.DeliveryOutcome {
	if c.client == nil || !c.client.IsConnected() {
		return model.Failed(outreach.CategorySessionExpired, "channel is not connected")
	}
	if !c.client.IsLoggedIn() {
		return model.Failed(outreach.CategorySessionExpired, "logged out, scan the qr code again")
	}

	jid, err := parseJID(req.Phone)
	if err != nil {
		return model.Failed(outreach.CategoryInvalidNumber, err.Error())
	}

	resp, err := c.client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(req.Message),
	})
	if err != nil {
		return model.Failed(classifySendError(err), err.Error())
	}
	return model.Succeeded(resp.ID)
}

// CheckContact verifies the number is registered on WhatsApp before any
// message is attempted, so unregistered numbers fail cheap.
func (c *Channel) CheckContact(ctx context.Context, phone string) (bool, error) {
	if c.client == nil || !c.client.IsLoggedIn() {
		return false, fmt.Errorf("channel is not connected")
	}
	results, err := c.client.IsOnWhatsApp([]string{"+" + digits(phone)})
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if !r.IsIn {
			return false, nil
		}
	}
	return true, nil
}

// Close disconnects but keeps the session database for the next run.
func (c *Channel) Close() error {
	if c.client != nil {
		c.client.Disconnect()
	}
	return nil
}

func classifySendError(err error) outreach.ErrorCategory {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "untrusted identity"):
		return outreach.CategorySecurityMismatch
	case strings.Contains(msg, "logged out") || strings.Contains(msg, "not logged in"):
		return outreach.CategorySessionExpired
	case strings.Contains(msg, "websocket") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "server returned error 479"):
		return outreach.CategoryNetworkError
	default:
		return outreach.Classify(err.Error())
	}
}

func parseJID(phone string) (types.JID, error) {
	d := digits(phone)
	if len(d) < 8 {
		return types.JID{}, fmt.Errorf("phone %q is too short", phone)
	}
	return types.ParseJID(d + "@" + types.DefaultUserServer)
}

func digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	_ gateway.Channel        = (*Channel)(nil)
	_ gateway.ContactChecker = (*Channel)(nil)
)
