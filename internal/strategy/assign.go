package strategy

import (
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/simerr"
)

// Assignment modes.
const (
	// ModeProbabilistic draws each agent's entry independently by weight.
	ModeProbabilistic = "probabilistic"
	// ModeFixed splits every group into contiguous blocks proportional to the weights.
	ModeFixed = "fixed"
)

// Entry pairs a liking and a misrepresentation strategy with a mix weight.
type Entry struct {
	Liking            Spec    `yaml:"liking" json:"liking"`
	Misrepresentation Spec    `yaml:"misrepresentation" json:"misrepresentation"`
	Weight            float64 `yaml:"weight" json:"weight"`
}

// Assignment describes how strategies are spread over the population. Groups
// replaces Mix for the named group; Overrides pins single agents by id.
type Assignment struct {
	Mode      string             `yaml:"mode"`
	Mix       []Entry            `yaml:"mix"`
	Groups    map[string][]Entry `yaml:"groups,omitempty"`
	Overrides map[uint64]Entry   `yaml:"overrides,omitempty"`
}

// DefaultAssignment runs threshold likers, one in ten of them inflating.
func DefaultAssignment() Assignment {
	return Assignment{
		Mode: ModeProbabilistic,
		Mix: []Entry{
			{Liking: Spec{Name: LikeThreshold}, Misrepresentation: Spec{Name: MisrepHonest}, Weight: 0.9},
			{Liking: Spec{Name: LikeThreshold}, Misrepresentation: Spec{Name: MisrepInflate}, Weight: 0.1},
		},
	}
}

// Assigner implements agents.Assigner over an Assignment.
type Assigner struct {
	mode      string
	schema    *agents.Schema
	mixes     [][]Entry
	cum       [][]float64
	overrides map[agents.AgentID]Entry
}

// NewAssigner validates every referenced strategy up front, so that a bad name
// or parameter fails before any agent is drawn.
func NewAssigner(a Assignment, s *agents.Schema) (*Assigner, error) {
	mode := a.Mode
	if mode == "" {
		mode = ModeProbabilistic
	}
	if mode != ModeProbabilistic && mode != ModeFixed {
		return nil, simerr.Config("unknown strategy assignment mode", goerr.V("mode", a.Mode))
	}

	for _, g := range slices.Sorted(maps.Keys(a.Groups)) {
		if _, ok := s.GroupIndex(g); !ok {
			return nil, simerr.Config("strategy mix names an unknown group", goerr.V("group", g))
		}
	}

	as := &Assigner{
		mode:      mode,
		schema:    s,
		mixes:     make([][]Entry, len(s.Groups)),
		cum:       make([][]float64, len(s.Groups)),
		overrides: make(map[agents.AgentID]Entry, len(a.Overrides)),
	}

	total := 0
	for gi, g := range s.Groups {
		total += g.Size
		mix := a.Mix
		if m, ok := a.Groups[g.Name]; ok {
			mix = m
		}
		if len(mix) == 0 {
			return nil, simerr.Config("group has no strategy mix", goerr.V("group", g.Name))
		}

		cum := make([]float64, len(mix))
		var sum float64
		for i, e := range mix {
			if !finite(e.Weight) || e.Weight < 0 {
				return nil, simerr.Config("strategy weight must be non-negative",
					goerr.V("group", g.Name), goerr.V("weight", e.Weight))
			}
			if err := probe(e, s); err != nil {
				return nil, goerr.Wrap(err, "invalid strategy mix", goerr.V("group", g.Name))
			}
			sum += e.Weight
			cum[i] = sum
		}
		if sum <= 0 {
			return nil, simerr.Config("strategy weights sum to zero", goerr.V("group", g.Name))
		}
		for i := range cum {
			cum[i] /= sum
		}
		as.mixes[gi] = mix
		as.cum[gi] = cum
	}

	for _, id := range slices.Sorted(maps.Keys(a.Overrides)) {
		if id == 0 || id > uint64(total) {
			return nil, simerr.Config("strategy override names an unknown agent", goerr.V("agent", id))
		}
		e := a.Overrides[id]
		if err := probe(e, s); err != nil {
			return nil, goerr.Wrap(err, "invalid strategy override", goerr.V("agent", id))
		}
		as.overrides[agents.AgentID(id)] = e
	}

	return as, nil
}

// probe builds both strategies of e once and discards them.
func probe(e Entry, s *agents.Schema) error {
	rng := rand.New(rand.NewPCG(0, 0))
	if _, err := NewLiking(e.Liking, s, rng); err != nil {
		return err
	}
	if _, err := NewMisrepresentation(e.Misrepresentation, s, rng); err != nil {
		return err
	}
	return nil
}

// Assign picks the agent's entry and builds fresh strategy instances for it.
func (as *Assigner) Assign(a *agents.Agent, index int, rng *rand.Rand) (agents.LikingStrategy, agents.MisrepresentationStrategy, error) {
	e, ok := as.overrides[a.ID]
	if !ok {
		e = as.pick(a.Group, index, rng)
	}

	liking, err := NewLiking(e.Liking, as.schema, rng)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to bind liking strategy", goerr.V("agent", a.ID))
	}
	misrep, err := NewMisrepresentation(e.Misrepresentation, as.schema, rng)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to bind misrepresentation strategy", goerr.V("agent", a.ID))
	}
	return liking, misrep, nil
}

func (as *Assigner) pick(g agents.Group, index int, rng *rand.Rand) Entry {
	cum := as.cum[g]
	var u float64
	if as.mode == ModeFixed {
		u = (float64(index) + 0.5) / float64(as.schema.Groups[g].Size)
	} else {
		u = rng.Float64()
	}
	for i, c := range cum {
		if u < c {
			return as.mixes[g][i]
		}
	}
	return as.mixes[g][len(cum)-1]
}
