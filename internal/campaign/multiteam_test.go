package campaign

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolgroups/lead-outreach/internal/config"
	"github.com/evolgroups/lead-outreach/internal/gateway"
	"github.com/evolgroups/lead-outreach/internal/logger"
	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/outreach"
	"github.com/evolgroups/lead-outreach/internal/pool"
	"github.com/evolgroups/lead-outreach/internal/store"
)

// countingChannel is a concurrency-safe always-successful channel.
type countingChannel struct {
	mu    sync.Mutex
	sends int
	ids   int
}

func (c *countingChannel) Open(ctx context.Context) error { return nil }
func (c *countingChannel) Close() error                   { return nil }

func (c *countingChannel) Send(ctx context.Context, req gateway.Request) model.DeliveryOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	c.ids++
	return model.Succeeded(fmt.Sprintf("msg-%d", c.ids))
}

func newMultiTeamRig(t *testing.T, cfg config.CampaignConfig, senders []model.Sender,
	batch []model.Lead, channels ChannelFactory) (*MultiTeam, store.QuotaStore) {
	t.Helper()
	dir := t.TempDir()
	quota := store.NewFileQuotaStore(filepath.Join(dir, "quota.json"))
	dedup := store.NewFileDedupStore(filepath.Join(dir, "sent.json"))

	p, err := pool.New(senders, cfg.GlobalDailyLimit)
	require.NoError(t, err)

	r := NewMultiTeam(cfg, p, quota, dedup, &fakeLeads{batch: batch}, channels, nil, logger.NewTestLogger(t))
	r.sleep = func(time.Duration) {}
	r.jitter = func(min, max time.Duration) time.Duration { return 0 }
	return r, quota
}

func multiTeamConfig() config.CampaignConfig {
	cfg := testCampaignConfig()
	cfg.Strategy = "proportional"
	cfg.MaxConcurrentChannels = 2
	return cfg
}

func TestMultiTeam_SplitsAcrossTeams(t *testing.T) {
	senders := []model.Sender{
		{Name: "A", DailyLimit: 10, Team: "T1"},
		{Name: "B", DailyLimit: 10, Team: "T2"},
	}

	var mu sync.Mutex
	channels := map[string]*countingChannel{}
	factory := func(team string) (gateway.Channel, error) {
		mu.Lock()
		defer mu.Unlock()
		ch := &countingChannel{}
		channels[team] = ch
		return ch, nil
	}

	r, quota := newMultiTeamRig(t, multiTeamConfig(), senders, leads(6), factory)
	report := r.Run(context.Background())

	assert.Equal(t, outreach.RunCompleted, report.Status)
	assert.Equal(t, 6, report.Metrics.Sent)
	assert.Equal(t, 3, channels["T1"].sends, "equal capacity means an even split")
	assert.Equal(t, 3, channels["T2"].sends)

	day := store.Day(time.Now())
	usedA, _ := quota.Used("A", day)
	usedB, _ := quota.Used("B", day)
	assert.Equal(t, 3, usedA)
	assert.Equal(t, 3, usedB)
}

func TestMultiTeam_OneChannelFailureDoesNotStopOthers(t *testing.T) {
	senders := []model.Sender{
		{Name: "A", DailyLimit: 10, Team: "T1"},
		{Name: "B", DailyLimit: 10, Team: "T2"},
	}

	good := &countingChannel{}
	factory := func(team string) (gateway.Channel, error) {
		if team == "T2" {
			return nil, fmt.Errorf("pairing failed")
		}
		return good, nil
	}

	r, _ := newMultiTeamRig(t, multiTeamConfig(), senders, leads(6), factory)
	report := r.Run(context.Background())

	assert.Equal(t, outreach.RunCompleted, report.Status)
	assert.Equal(t, 3, good.sends, "T1 still processes its own slice")
}

// failingOpenChannel refuses to open and records whether Close was called.
type failingOpenChannel struct {
	mu     sync.Mutex
	closes int
}

func (c *failingOpenChannel) Open(ctx context.Context) error { return fmt.Errorf("pairing timed out") }

func (c *failingOpenChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *failingOpenChannel) Send(ctx context.Context, req gateway.Request) model.DeliveryOutcome {
	return model.Succeeded("msg")
}

func TestMultiTeam_UnopenedChannelIsNeverClosed(t *testing.T) {
	senders := []model.Sender{
		{Name: "A", DailyLimit: 10, Team: "T1"},
		{Name: "B", DailyLimit: 10, Team: "T2"},
	}

	good := &countingChannel{}
	bad := &failingOpenChannel{}
	factory := func(team string) (gateway.Channel, error) {
		if team == "T2" {
			return bad, nil
		}
		return good, nil
	}

	r, _ := newMultiTeamRig(t, multiTeamConfig(), senders, leads(6), factory)
	report := r.Run(context.Background())

	assert.Equal(t, outreach.RunCompleted, report.Status)
	assert.Equal(t, 3, good.sends, "T1 still processes its own slice")
	assert.Zero(t, bad.closes, "close is only owed after a successful open")
}

func TestMultiTeam_AllChannelsFailing(t *testing.T) {
	senders := []model.Sender{
		{Name: "A", DailyLimit: 10, Team: "T1"},
		{Name: "B", DailyLimit: 10, Team: "T2"},
	}
	factory := func(team string) (gateway.Channel, error) {
		return nil, fmt.Errorf("pairing failed")
	}

	r, _ := newMultiTeamRig(t, multiTeamConfig(), senders, leads(4), factory)
	report := r.Run(context.Background())

	assert.Equal(t, outreach.RunChannelFailed, report.Status)
	assert.Zero(t, report.Metrics.Sent)
}

func TestMultiTeam_SharedGlobalLimit(t *testing.T) {
	// Both teams have individual headroom but the shared global cap allows
	// only 10 sends in total across them.
	cfg := multiTeamConfig()
	cfg.GlobalDailyLimit = 10

	senders := []model.Sender{
		{Name: "A", DailyLimit: 20, Team: "T1"},
		{Name: "B", DailyLimit: 20, Team: "T2"},
	}
	factory := func(team string) (gateway.Channel, error) {
		return &countingChannel{}, nil
	}

	r, quota := newMultiTeamRig(t, cfg, senders, leads(30), factory)
	report := r.Run(context.Background())

	// Two workers race the check-then-increment cycle, so the cap may be
	// overshot by at most one in-flight send, never more.
	day := store.Day(time.Now())
	global, _ := quota.GlobalUsed(day)
	assert.LessOrEqual(t, global, 11)
	assert.LessOrEqual(t, report.Metrics.Sent, 11)
	assert.GreaterOrEqual(t, report.Metrics.Sent, 10)
}

func TestMultiTeam_ZeroCapacityTeamGetsNoChannel(t *testing.T) {
	senders := []model.Sender{
		{Name: "A", DailyLimit: 10, Team: "T1"},
		{Name: "B", DailyLimit: 1, Team: "T2"},
	}

	var mu sync.Mutex
	openedFor := map[string]bool{}
	factory := func(team string) (gateway.Channel, error) {
		mu.Lock()
		openedFor[team] = true
		mu.Unlock()
		return &countingChannel{}, nil
	}

	r, quota := newMultiTeamRig(t, multiTeamConfig(), senders, leads(5), factory)

	// Exhaust T2 before the run so its capacity is zero.
	require.NoError(t, quota.Increment("B", store.Day(time.Now())))

	report := r.Run(context.Background())

	assert.Equal(t, outreach.RunCompleted, report.Status)
	assert.True(t, openedFor["T1"])
	assert.False(t, openedFor["T2"], "no session is paired for a team with nothing to do")
}
