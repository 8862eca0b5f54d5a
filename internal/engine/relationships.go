// Match formation: who is shown to whom, who likes whom, and what each shown
// pair resolves to.
package engine

import (
	"cmp"
	"math"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/entropy"
	"github.com/talgya/matchsim/internal/matchmaking"
	"github.com/talgya/matchsim/internal/rating"
	"github.com/talgya/matchsim/internal/simerr"
)

// Choice is one side's decision on a shown pair.
type Choice uint8

const (
	// ChoiceNone: the like allowance ran out before the profile was judged.
	ChoiceNone Choice = iota
	ChoicePass
	ChoiceLike
)

// Outcome maps the choices of a pair's low-id side a and high-id side b to the
// rated outcome. Swapping the sides mirrors the outcome.
func Outcome(a, b Choice) rating.Outcome {
	switch {
	case a == ChoiceLike && b == ChoiceLike:
		return rating.OutcomeMutualLike
	case a == ChoiceLike:
		return rating.OutcomeSecondLiked
	case b == ChoiceLike:
		return rating.OutcomeFirstLiked
	case a == ChoicePass && b == ChoicePass:
		return rating.OutcomeMutualPass
	case a == ChoicePass:
		return rating.OutcomeFirstPassed
	case b == ChoicePass:
		return rating.OutcomeSecondPassed
	}
	return rating.OutcomeNone
}

// Match is the record of one shown pair. A < B always. Matched pairs carry
// the true compatibility and the utility each side drew.
type Match struct {
	A             agents.AgentID `json:"a"`
	B             agents.AgentID `json:"b"`
	Round         int            `json:"round"`
	Outcome       rating.Outcome `json:"outcome"`
	Matched       bool           `json:"matched"`
	LikedByA      bool           `json:"liked_by_a"`
	LikedByB      bool           `json:"liked_by_b"`
	Compatibility float64        `json:"compatibility,omitempty"`
	UtilityA      float64        `json:"utility_a,omitempty"`
	UtilityB      float64        `json:"utility_b,omitempty"`
}

type pairKey struct {
	a, b agents.AgentID
}

func keyOf(x, y agents.AgentID) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

func comparePairs(p, q pairKey) int {
	if c := cmp.Compare(p.a, q.a); c != 0 {
		return c
	}
	return cmp.Compare(p.b, q.b)
}

// collectCandidates asks the matchmaker for every active agent in parallel.
// Each agent draws from its own stream, so the result does not depend on the
// worker count.
func (s *Simulation) collectCandidates(pool *matchmaking.Pool, active []*agents.Agent) ([][]agents.AgentID, error) {
	out := make([][]agents.AgentID, len(active))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, a := range active {
		g.Go(func() error {
			rng := s.streams.Agent(entropy.PurposeCandidates, pool.Round, uint64(a.ID))
			out[i] = s.Matchmaker.Candidates(pool, a, s.cfg.CandidatesPerRound, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// showPairs unions the candidate lists into shown pairs, sorted, and lists for
// each agent who was shown it without it being shown them, sorted by id.
func showPairs(active []*agents.Agent, candidates [][]agents.AgentID) ([]pairKey, map[agents.AgentID][]agents.AgentID) {
	seen := make(map[pairKey]bool)
	incoming := make(map[agents.AgentID][]agents.AgentID)
	var pairs []pairKey
	for i, a := range active {
		for _, c := range candidates[i] {
			k := keyOf(a.ID, c)
			if seen[k] {
				continue
			}
			seen[k] = true
			pairs = append(pairs, k)
			incoming[c] = append(incoming[c], a.ID)
		}
	}
	slices.SortFunc(pairs, comparePairs)
	for _, in := range incoming {
		slices.Sort(in)
	}
	return pairs, incoming
}

// decisionQueue is the order an agent judges profiles in: its own candidates
// in matchmaker order, then everyone it was shown to.
func decisionQueue(own, incoming []agents.AgentID) []agents.AgentID {
	q := make([]agents.AgentID, 0, len(own)+len(incoming))
	seen := make(map[agents.AgentID]bool, cap(q))
	for _, id := range slices.Concat(own, incoming) {
		if !seen[id] {
			seen[id] = true
			q = append(q, id)
		}
	}
	return q
}

// collectDecisions runs every active agent's liking strategy over its queue
// in parallel. Strategies only touch their own agent's state.
func (s *Simulation) collectDecisions(pool *matchmaking.Pool, active []*agents.Agent, candidates [][]agents.AgentID, incoming map[agents.AgentID][]agents.AgentID) (map[agents.AgentID]map[agents.AgentID]Choice, error) {
	per := make([]map[agents.AgentID]Choice, len(active))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, a := range active {
		g.Go(func() error {
			per[i] = s.decide(pool, a, decisionQueue(candidates[i], incoming[a.ID]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[agents.AgentID]map[agents.AgentID]Choice, len(active))
	for i, a := range active {
		out[a.ID] = per[i]
	}
	return out, nil
}

func (s *Simulation) decide(pool *matchmaking.Pool, self *agents.Agent, queue []agents.AgentID) map[agents.AgentID]Choice {
	choices := make(map[agents.AgentID]Choice, len(queue))
	rng := s.streams.Agent(entropy.PurposeLike, pool.Round, uint64(self.ID))
	mine := pool.Ratings.Get(self.ID)
	left := self.LikeAllowance

	for _, id := range queue {
		if left <= 0 || self.Liking == nil {
			choices[id] = ChoiceNone
			continue
		}
		d := agents.Decision{
			Self:       self,
			SelfRating: mine,
			Candidate:  s.AgentIndex[id].View(s.Schema, pool.Ratings.Get(id)),
			Schema:     s.Schema,
			Rand:       rng,

			PremiumMultiplier: s.cfg.Population.PremiumMultiplier,
		}
		if self.Liking.DecideLike(d) {
			choices[id] = ChoiceLike
			left--
		} else {
			choices[id] = ChoicePass
		}
	}
	return choices
}

// resolveRound turns the decisions on every shown pair into match records, in
// pair order. A pair is matched iff both sides liked each other this round.
func resolveRound(round int, pairs []pairKey, decisions map[agents.AgentID]map[agents.AgentID]Choice) []Match {
	out := make([]Match, 0, len(pairs))
	for _, p := range pairs {
		ca, cb := decisions[p.a][p.b], decisions[p.b][p.a]
		out = append(out, Match{
			A:        p.a,
			B:        p.b,
			Round:    round,
			Outcome:  Outcome(ca, cb),
			Matched:  ca == ChoiceLike && cb == ChoiceLike,
			LikedByA: ca == ChoiceLike,
			LikedByB: cb == ChoiceLike,
		})
	}
	return out
}

// apply writes a round's results in pair order: ratings first, then utility,
// history and strategy hooks. It returns each active agent's round delta.
func (s *Simulation) apply(active []*agents.Agent, matches []Match) (map[agents.AgentID]float64, error) {
	deltas := make(map[agents.AgentID]float64, len(active))
	unreciprocated := make(map[agents.AgentID]int)

	for i := range matches {
		m := &matches[i]
		if _, _, err := s.Ratings.Update(m.A, m.B, m.Outcome); err != nil {
			return nil, err
		}

		a, b := s.AgentIndex[m.A], s.AgentIndex[m.B]
		if m.Matched {
			ua, err := s.Utility.Delta(a, b, a.MatchCount())
			if err != nil {
				return nil, err
			}
			ub, err := s.Utility.Delta(b, a, b.MatchCount())
			if err != nil {
				return nil, err
			}
			m.Compatibility = s.Schema.Compatibility(a.Attributes, b.Attributes, false)
			m.UtilityA, m.UtilityB = ua, ub
			deltas[a.ID] += ua
			deltas[b.ID] += ub
		} else {
			if m.LikedByA {
				unreciprocated[a.ID]++
			}
			if m.LikedByB {
				unreciprocated[b.ID]++
			}
		}

		a.Record(agents.HistoryEntry{Round: m.Round, Partner: b.ID, Liked: m.LikedByA, LikedBy: m.LikedByB, Matched: m.Matched})
		b.Record(agents.HistoryEntry{Round: m.Round, Partner: a.ID, Liked: m.LikedByB, LikedBy: m.LikedByA, Matched: m.Matched})
		if m.Matched {
			if a.Liking != nil {
				a.Liking.Matched(a, b)
			}
			if b.Liking != nil {
				b.Liking.Matched(b, a)
			}
		}
	}

	for _, a := range active {
		d := deltas[a.ID] - s.Utility.RejectionCost(unreciprocated[a.ID])
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, simerr.Numeric("round utility is not finite",
				goerr.V("agent", a.ID), goerr.V("unreciprocated", unreciprocated[a.ID]))
		}
		deltas[a.ID] = d
	}
	for _, a := range active {
		a.Accrue(deltas[a.ID])
	}
	return deltas, nil
}
