// Package pool holds the fixed sender roster and decides which sender, if
// any, may carry the next message under the per-sender and global caps.
package pool

import (
	"fmt"
	"math/rand"

	"github.com/evolgroups/lead-outreach/internal/model"
	"github.com/evolgroups/lead-outreach/internal/store"
)

// Pool is the admission controller over the sender roster. Selection among
// available senders is uniform-random rather than round-robin: it spreads
// load unpredictably across sender identities, and each sender's hard cap
// is enforced regardless of selection order.
type Pool struct {
	senders     []model.Sender
	globalLimit int
	pick        func(n int) int
}

// New validates the roster and builds a pool. Every sender needs a positive
// capacity and a unique name.
func New(senders []model.Sender, globalLimit int) (*Pool, error) {
	if len(senders) == 0 {
		return nil, fmt.Errorf("sender roster is empty")
	}
	seen := make(map[string]struct{}, len(senders))
	for _, s := range senders {
		if s.Name == "" {
			return nil, fmt.Errorf("sender with empty name")
		}
		if s.DailyLimit <= 0 {
			return nil, fmt.Errorf("sender %s: daily limit must be positive", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate sender %s", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return &Pool{
		senders:     senders,
		globalLimit: globalLimit,
		pick:        rand.Intn,
	}, nil
}

// Senders returns the full roster in configuration order.
func (p *Pool) Senders() []model.Sender {
	return p.senders
}

// ForTeam returns a sub-pool restricted to one sender group, sharing the
// global limit with the parent.
func (p *Pool) ForTeam(team string) (*Pool, error) {
	var members []model.Sender
	for _, s := range p.senders {
		if s.Team == team {
			members = append(members, s)
		}
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no senders in team %s", team)
	}
	return &Pool{senders: members, globalLimit: p.globalLimit, pick: p.pick}, nil
}

// Teams returns the distinct team names in configuration order.
func (p *Pool) Teams() []string {
	var teams []string
	seen := map[string]struct{}{}
	for _, s := range p.senders {
		if _, ok := seen[s.Team]; !ok {
			seen[s.Team] = struct{}{}
			teams = append(teams, s.Team)
		}
	}
	return teams
}

// Available returns the senders whose used count is strictly below their
// capacity for the day.
func (p *Pool) Available(q store.QuotaStore, day string) ([]model.Sender, error) {
	var out []model.Sender
	for _, s := range p.senders {
		used, err := q.Used(s.Name, day)
		if err != nil {
			return nil, err
		}
		if used < s.DailyLimit {
			out = append(out, s)
		}
	}
	return out, nil
}

// Pick selects an available sender uniformly at random, or nil when either
// the global cap or every individual cap is exhausted. The global cap gates
// the whole pool: once reached, no sender is offered no matter how much
// individual headroom remains.
func (p *Pool) Pick(q store.QuotaStore, day string) (*model.Sender, error) {
	global, err := q.GlobalUsed(day)
	if err != nil {
		return nil, err
	}
	if global >= p.globalLimit {
		return nil, nil
	}

	available, err := p.Available(q, day)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, nil
	}

	chosen := available[p.pick(len(available))]
	return &chosen, nil
}

// RemainingWork is the total number of sends the pool can still carry
// today: the sum of per-sender headroom, clamped to the remaining global
// quota.
func (p *Pool) RemainingWork(q store.QuotaStore, day string) (int, error) {
	global, err := q.GlobalUsed(day)
	if err != nil {
		return 0, err
	}
	globalRemaining := p.globalLimit - global
	if globalRemaining <= 0 {
		return 0, nil
	}

	total := 0
	for _, s := range p.senders {
		used, err := q.Used(s.Name, day)
		if err != nil {
			return 0, err
		}
		if headroom := s.DailyLimit - used; headroom > 0 {
			total += headroom
		}
	}
	if total > globalRemaining {
		total = globalRemaining
	}
	return total, nil
}

// TeamCapacities returns each team's remaining headroom for the day,
// ignoring the global clamp (the distributor's input; the global cap is
// re-checked per send).
func (p *Pool) TeamCapacities(q store.QuotaStore, day string) (map[string]int, error) {
	caps := map[string]int{}
	for _, s := range p.senders {
		used, err := q.Used(s.Name, day)
		if err != nil {
			return nil, err
		}
		if headroom := s.DailyLimit - used; headroom > 0 {
			caps[s.Team] += headroom
		} else if _, ok := caps[s.Team]; !ok {
			caps[s.Team] = 0
		}
	}
	return caps, nil
}
