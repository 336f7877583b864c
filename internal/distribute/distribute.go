// Package distribute partitions a batch of leads across sender teams
// according to each team's remaining daily capacity.
package distribute

import (
	"fmt"

	"github.com/evolgroups/lead-outreach/internal/model"
)

// Strategy selects how leads are split across teams.
type Strategy string

const (
	// Proportional gives each team a share proportional to its remaining
	// capacity.
	Proportional Strategy = "proportional"
	// RoundRobin deals leads one at a time, cycling over teams that still
	// have room.
	RoundRobin Strategy = "round_robin"
	// Balanced splits leads as evenly as possible, capped by capacity.
	Balanced Strategy = "balanced"
)

// ParseStrategy maps the configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Proportional, RoundRobin, Balanced:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown distribution strategy %q", s)
	}
}

// Distribute partitions leads across teams. Teams are iterated in the order
// given; capacities are per-team remaining headroom. The input is truncated
// to the total capacity: excess leads are dropped for this run, not
// queued. Within each team, leads keep their input order.
func Distribute(leads []model.Lead, teams []string, capacities map[string]int, strategy Strategy) map[string][]model.Lead {
	out := make(map[string][]model.Lead, len(teams))
	for _, t := range teams {
		out[t] = []model.Lead{}
	}

	total := 0
	for _, t := range teams {
		total += capacities[t]
	}
	if total == 0 {
		return out
	}
	if len(leads) > total {
		leads = leads[:total]
	}

	var counts map[string]int
	switch strategy {
	case RoundRobin:
		return dealRoundRobin(leads, teams, capacities, out)
	case Balanced:
		counts = balancedCounts(len(leads), teams, capacities)
	default:
		counts = proportionalCounts(len(leads), total, teams, capacities)
	}

	idx := 0
	for _, t := range teams {
		out[t] = leads[idx : idx+counts[t]]
		idx += counts[t]
	}
	return out
}

// proportionalCounts assigns floor(n*cap/total) per team, then hands the
// flooring remainder one-by-one to teams with unused capacity in pool
// order.
func proportionalCounts(n, total int, teams []string, capacities map[string]int) map[string]int {
	counts := make(map[string]int, len(teams))
	assigned := 0
	for _, t := range teams {
		counts[t] = n * capacities[t] / total
		assigned += counts[t]
	}
	distributeRemainder(n-assigned, teams, capacities, counts)
	return counts
}

// balancedCounts splits n as evenly as possible (the first n%len(teams)
// teams take one extra), capped at each team's capacity; whatever the caps
// squeeze out goes to teams that still have room.
func balancedCounts(n int, teams []string, capacities map[string]int) map[string]int {
	counts := make(map[string]int, len(teams))
	share := n / len(teams)
	extra := n % len(teams)

	assigned := 0
	for i, t := range teams {
		want := share
		if i < extra {
			want++
		}
		if want > capacities[t] {
			want = capacities[t]
		}
		counts[t] = want
		assigned += want
	}
	distributeRemainder(n-assigned, teams, capacities, counts)
	return counts
}

func distributeRemainder(remainder int, teams []string, capacities map[string]int, counts map[string]int) {
	for remainder > 0 {
		progressed := false
		for _, t := range teams {
			if remainder == 0 {
				break
			}
			if counts[t] < capacities[t] {
				counts[t]++
				remainder--
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func dealRoundRobin(leads []model.Lead, teams []string, capacities map[string]int, out map[string][]model.Lead) map[string][]model.Lead {
	i := 0
	for len(leads) > 0 {
		anyRoom := false
		for _, t := range teams {
			if len(out[t]) < capacities[t] {
				anyRoom = true
				break
			}
		}
		if !anyRoom {
			break
		}

		t := teams[i%len(teams)]
		i++
		if len(out[t]) >= capacities[t] {
			continue
		}
		out[t] = append(out[t], leads[0])
		leads = leads[1:]
	}
	return out
}
