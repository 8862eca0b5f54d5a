// Population accounting: per-round statistics and bottom-percentile elimination.
package engine

import (
	"maps"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/config"
)

// RoundStats summarises one round.
type RoundStats struct {
	Round   int `json:"round"`
	Active  int `json:"active"`
	Shown   int `json:"shown"`
	Likes   int `json:"likes"`
	Matches int `json:"matches"`

	// MatchRate is matches per shown pair.
	MatchRate float64 `json:"match_rate"`

	AvgDeltaByGroup      map[string]float64 `json:"avg_delta_by_group"`
	AvgUtilityByGroup    map[string]float64 `json:"avg_utility_by_group"`
	AvgDeltaByStrategy   map[string]float64 `json:"avg_delta_by_strategy"`
	AvgUtilityByStrategy map[string]float64 `json:"avg_utility_by_strategy"`

	Eliminated []agents.AgentID `json:"eliminated,omitempty"`
}

func (s *Simulation) roundStats(round int, active []*agents.Agent, matches []Match, deltas map[agents.AgentID]float64) RoundStats {
	st := RoundStats{Round: round, Active: len(active), Shown: len(matches)}
	for _, m := range matches {
		if m.LikedByA {
			st.Likes++
		}
		if m.LikedByB {
			st.Likes++
		}
		if m.Matched {
			st.Matches++
		}
	}
	if st.Shown > 0 {
		st.MatchRate = float64(st.Matches) / float64(st.Shown)
	}

	groupDelta := make(map[string][]float64)
	groupUtil := make(map[string][]float64)
	stratDelta := make(map[string][]float64)
	stratUtil := make(map[string][]float64)
	for _, a := range active {
		g, l := s.Schema.GroupName(a.Group), a.StrategyLabel()
		groupDelta[g] = append(groupDelta[g], deltas[a.ID])
		groupUtil[g] = append(groupUtil[g], a.Utility())
		stratDelta[l] = append(stratDelta[l], deltas[a.ID])
		stratUtil[l] = append(stratUtil[l], a.Utility())
	}
	st.AvgDeltaByGroup = means(groupDelta)
	st.AvgUtilityByGroup = means(groupUtil)
	st.AvgDeltaByStrategy = means(stratDelta)
	st.AvgUtilityByStrategy = means(stratUtil)
	return st
}

func means(samples map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(samples))
	for _, k := range slices.Sorted(maps.Keys(samples)) {
		out[k] = stat.Mean(samples[k], nil)
	}
	return out
}

// eliminate removes the active agents at or below the configured percentile of
// utility or rating mean. Ties at the cut-off all go, so a flat market can
// empty out entirely.
func (s *Simulation) eliminate(round int) []agents.AgentID {
	e := s.cfg.Elimination
	if e.Every == 0 || round%e.Every != 0 {
		return nil
	}
	active := s.Active()
	if len(active) == 0 {
		return nil
	}

	metric := func(a *agents.Agent) float64 {
		if e.By == config.EliminateByRating {
			return s.Ratings.Get(a.ID).Mu
		}
		return a.Utility()
	}
	vals := make([]float64, len(active))
	for i, a := range active {
		vals[i] = metric(a)
	}
	slices.Sort(vals)
	cut := stat.Quantile(e.Percentile/100, stat.Empirical, vals, nil)

	var out []agents.AgentID
	for _, a := range active {
		if metric(a) <= cut {
			a.Eliminate(round)
			out = append(out, a.ID)
		}
	}
	return out
}
