// Package matchmaking provides the recommenders that decide which profiles an
// agent is shown each round.
package matchmaking

import (
	"math/rand/v2"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/rating"
	"github.com/talgya/matchsim/internal/simerr"
)

// Matchmaker kinds.
const (
	KindRandom        = "random"
	KindRating        = "rating"
	KindCompatibility = "compatibility"
)

// Rating modes.
const (
	// ModeProximity shows the candidates whose rating means sit closest to the agent's.
	ModeProximity = "proximity"
	// ModeTop shows the highest rated candidates.
	ModeTop = "top"
)

// Config selects and tunes the matchmaker.
type Config struct {
	Kind string `yaml:"kind"`
	Mode string `yaml:"mode"`

	// Strict takes the top k of the ranking; otherwise k are sampled from a
	// window of k*LooseWindow and shown in rank order.
	Strict bool `yaml:"strict"`

	// ReshowAfter is the number of rounds a shown pair stays hidden. Zero
	// means a pair is never shown twice.
	ReshowAfter int `yaml:"reshow_after"`
}

// DefaultConfig is the random recommender with no reshowing.
func DefaultConfig() Config {
	return Config{Kind: KindRandom, Mode: ModeProximity}
}

// Validate checks kind, mode and reshow window.
func (c Config) Validate() error {
	switch c.Kind {
	case KindRandom, KindRating, KindCompatibility:
	default:
		return simerr.Config("unknown matchmaker", goerr.V("kind", c.Kind))
	}
	if c.Kind == KindRating && c.Mode != ModeProximity && c.Mode != ModeTop {
		return simerr.Config("unknown rating mode", goerr.V("mode", c.Mode))
	}
	if c.ReshowAfter < 0 {
		return simerr.Config("reshow_after must not be negative", goerr.V("reshow_after", c.ReshowAfter))
	}
	return nil
}

// New builds the matchmaker cfg names.
func New(cfg Config) (Matchmaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindRating:
		return &Rating{Mode: cfg.Mode, Strict: cfg.Strict}, nil
	case KindCompatibility:
		return &Compatibility{}, nil
	default:
		return &Random{}, nil
	}
}

// Matchmaker chooses up to k candidates for self out of the pool. It must only
// read shared state and draw randomness from rng, so that calls for different
// agents can run in parallel.
type Matchmaker interface {
	Name() string
	Candidates(p *Pool, self *agents.Agent, k int, rng *rand.Rand) []agents.AgentID
}

// Topology decides which pairs may be shown to each other at all.
type Topology interface {
	Compatible(a, b *agents.Agent) bool
}

// Heterosexual pairs agents of different groups only.
type Heterosexual struct{}

func (Heterosexual) Compatible(a, b *agents.Agent) bool {
	return a.Group != b.Group
}

// RatingSource reads ratings; rating.Snapshot satisfies it.
type RatingSource interface {
	Get(id agents.AgentID) rating.Rating
}

// Pool is the read-only view of the market a matchmaker works from in a round.
type Pool struct {
	// Agents is the whole population in ascending id order.
	Agents      []*agents.Agent
	Ratings     RatingSource
	Schema      *agents.Schema
	Round       int
	ReshowAfter int
	Topology    Topology
}

// Eligible returns, in id order, everyone self may be shown this round.
func (p *Pool) Eligible(self *agents.Agent) []*agents.Agent {
	topo := p.Topology
	if topo == nil {
		topo = Heterosexual{}
	}

	out := make([]*agents.Agent, 0, len(p.Agents))
	for _, c := range p.Agents {
		if c.ID == self.ID || c.Eliminated || !topo.Compatible(self, c) {
			continue
		}
		if self.HasMatched(c.ID) {
			continue
		}
		if last, ok := self.LastShown(c.ID); ok {
			if p.ReshowAfter == 0 || p.Round-last <= p.ReshowAfter {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func ids(as []*agents.Agent) []agents.AgentID {
	out := make([]agents.AgentID, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
