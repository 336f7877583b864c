package pool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/store"
)

const day = "2025-08-20"

func newQuota(t *testing.T) store.QuotaStore {
	t.Helper()
	return store.NewFileQuotaStore(filepath.Join(t.TempDir(), "quota.json"))
}

func roster() []model.Sender {
	return []model.Sender{
		{Name: "A", Number: "+911", DailyLimit: 2},
		{Name: "B", Number: "+912", DailyLimit: 1},
	}
}

func TestNew_RejectsBadRoster(t *testing.T) {
	_, err := New(nil, 10)
	assert.Error(t, err)

	_, err = New([]model.Sender{{Name: "A", DailyLimit: 0}}, 10)
	assert.Error(t, err, "zero capacity is invalid")

	_, err = New([]model.Sender{
		{Name: "A", DailyLimit: 1},
		{Name: "A", DailyLimit: 1},
	}, 10)
	assert.Error(t, err, "duplicate names are invalid")
}

func TestAvailable_ExcludesFullSenders(t *testing.T) {
	p, err := New(roster(), 10)
	require.NoError(t, err)
	q := newQuota(t)

	require.NoError(t, q.Increment("B", day))

	available, err := p.Available(q, day)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "A", available[0].Name)
}

func TestPick_RespectsIndividualCaps(t *testing.T) {
	p, err := New(roster(), 10)
	require.NoError(t, err)
	q := newQuota(t)

	// Drain the pool: capacities sum to 3.
	for i := 0; i < 3; i++ {
		s, err := p.Pick(q, day)
		require.NoError(t, err)
		require.NotNil(t, s, "pick %d should find a sender", i)
		require.NoError(t, q.Increment(s.Name, day))
	}

	usedA, _ := q.Used("A", day)
	usedB, _ := q.Used("B", day)
	assert.LessOrEqual(t, usedA, 2)
	assert.LessOrEqual(t, usedB, 1)

	s, err := p.Pick(q, day)
	require.NoError(t, err)
	assert.Nil(t, s, "exhausted pool offers nobody")
}

func TestPick_GlobalCapGatesThePool(t *testing.T) {
	p, err := New(roster(), 1)
	require.NoError(t, err)
	q := newQuota(t)

	require.NoError(t, q.Increment("A", day))

	s, err := p.Pick(q, day)
	require.NoError(t, err)
	assert.Nil(t, s, "global cap reached: no sender offered despite B's headroom")
}

func TestRemainingWork_ClampedToGlobal(t *testing.T) {
	p, err := New(roster(), 2)
	require.NoError(t, err)
	q := newQuota(t)

	work, err := p.RemainingWork(q, day)
	require.NoError(t, err)
	assert.Equal(t, 2, work, "sum of headroom is 3 but the global cap is 2")

	require.NoError(t, q.Increment("A", day))
	work, err = p.RemainingWork(q, day)
	require.NoError(t, err)
	assert.Equal(t, 1, work)
}

func TestForTeamAndCapacities(t *testing.T) {
	senders := []model.Sender{
		{Name: "A", DailyLimit: 5, Team: "T1"},
		{Name: "B", DailyLimit: 3, Team: "T1"},
		{Name: "C", DailyLimit: 4, Team: "T2"},
	}
	p, err := New(senders, 100)
	require.NoError(t, err)

	assert.Equal(t, []string{"T1", "T2"}, p.Teams())

	q := newQuota(t)
	require.NoError(t, q.Increment("B", day))

	caps, err := p.TeamCapacities(q, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"T1": 7, "T2": 4}, caps)

	t1, err := p.ForTeam("T1")
	require.NoError(t, err)
	assert.Len(t, t1.Senders(), 2)

	_, err = p.ForTeam("missing")
	assert.Error(t, err)
}
