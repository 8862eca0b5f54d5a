package matchmaking

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/calib"
)

// Random shows a uniform sample of the eligible candidates.
type Random struct{}

func (*Random) Name() string { return KindRandom }

func (*Random) Candidates(p *Pool, self *agents.Agent, k int, rng *rand.Rand) []agents.AgentID {
	out := ids(p.Eligible(self))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:min(k, len(out))]
}

// Rating ranks candidates by the mean of their current rating.
type Rating struct {
	Mode   string
	Strict bool
}

func (*Rating) Name() string { return KindRating }

func (m *Rating) Candidates(p *Pool, self *agents.Agent, k int, rng *rand.Rand) []agents.AgentID {
	mine := p.Ratings.Get(self.ID).Mu
	ranked := rank(p.Eligible(self), func(c *agents.Agent) float64 {
		mu := p.Ratings.Get(c.ID).Mu
		if m.Mode == ModeTop {
			return -mu
		}
		return math.Abs(mu - mine)
	})

	if m.Strict {
		return ranked[:min(k, len(ranked))]
	}
	return sampleWindow(ranked, k, rng)
}

// Compatibility ranks candidates by how well the two reported profiles suit
// each other: the mean of both preference scores times the observable
// attribute compatibility.
type Compatibility struct{}

func (*Compatibility) Name() string { return KindCompatibility }

func (*Compatibility) Candidates(p *Pool, self *agents.Agent, k int, _ *rand.Rand) []agents.AgentID {
	mine := self.ReportedPreferences()
	me := self.Reported()
	ranked := rank(p.Eligible(self), func(c *agents.Agent) float64 {
		theirs := c.ReportedPreferences()
		score := (mine.Score(p.Schema, c.Reported()) + theirs.Score(p.Schema, me)) / 2
		return -score * p.Schema.Compatibility(self.Attributes, c.Attributes, true)
	})
	return ranked[:min(k, len(ranked))]
}

// rank orders candidates by ascending key, ties by id.
func rank(cs []*agents.Agent, key func(*agents.Agent) float64) []agents.AgentID {
	type scored struct {
		id  agents.AgentID
		key float64
	}
	s := make([]scored, len(cs))
	for i, c := range cs {
		s[i] = scored{id: c.ID, key: key(c)}
	}
	slices.SortFunc(s, func(a, b scored) int {
		if c := cmp.Compare(a.key, b.key); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	out := make([]agents.AgentID, len(s))
	for i := range s {
		out[i] = s[i].id
	}
	return out
}

// sampleWindow draws k of the first k*LooseWindow ranked ids and keeps their rank order.
func sampleWindow(ranked []agents.AgentID, k int, rng *rand.Rand) []agents.AgentID {
	window := min(int(float64(k)*calib.LooseWindow), len(ranked))
	if window <= k {
		return ranked[:min(k, len(ranked))]
	}
	picks := rng.Perm(window)[:k]
	slices.Sort(picks)
	out := make([]agents.AgentID, k)
	for i, idx := range picks {
		out[i] = ranked[idx]
	}
	return out
}
