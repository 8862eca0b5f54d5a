package strategy

import (
	"maps"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/simerr"
)

// Misrepresentation strategy names.
const (
	MisrepHonest    = "honest"
	MisrepInflate   = "inflate"
	MisrepSelective = "selective"
)

var misrepRegistry = map[string]misrepEntry{
	MisrepHonest: {
		build: func(_ *params, _ *agents.Schema, _ *rand.Rand) (agents.MisrepresentationStrategy, error) {
			return Honest{}, nil
		},
	},
	MisrepInflate: {
		defaults: map[string]float64{"amount": 1, "sigma": 0},
		build:    newInflate,
	},
	MisrepSelective: {
		build: newSelective,
	},
}

// Honest reports the truth.
type Honest struct{}

func (Honest) Name() string { return MisrepHonest }

func (Honest) Misrepresent(truth agents.Traits) agents.Traits {
	return truth
}

// Inflate reports attractiveness Amount above the truth. When sigma is set the
// amount is drawn once per agent from N(amount, sigma), floored at zero, so
// reporting stays a pure function of the true traits afterwards.
type Inflate struct {
	Dim    int
	Amount float64
}

func newInflate(p *params, s *agents.Schema, rng *rand.Rand) (agents.MisrepresentationStrategy, error) {
	amount := p.get("amount")
	sigma := p.get("sigma")
	if amount < 0 || sigma < 0 {
		return nil, simerr.Strategy("inflate needs a non-negative amount and sigma",
			goerr.V("amount", amount), goerr.V("sigma", sigma))
	}

	dim := s.AttractivenessIndex()
	if len(p.spec.Dimensions) > 0 {
		return nil, simerr.Strategy("inflate takes no dimensions; use selective")
	}
	if sigma > 0 {
		amount = math.Max(amount+sigma*rng.NormFloat64(), 0)
	}
	return &Inflate{Dim: dim, Amount: amount}, nil
}

func (s *Inflate) Name() string { return MisrepInflate }

func (s *Inflate) Misrepresent(truth agents.Traits) agents.Traits {
	truth[s.Dim] += s.Amount
	return truth
}

// Selective shifts only the named dimensions, each by its own offset.
type Selective struct {
	Offsets map[int]float64
}

func newSelective(p *params, s *agents.Schema, _ *rand.Rand) (agents.MisrepresentationStrategy, error) {
	if len(p.spec.Dimensions) == 0 {
		return nil, simerr.Strategy("selective needs at least one dimension")
	}
	offsets := make(map[int]float64, len(p.spec.Dimensions))
	for _, name := range slices.Sorted(maps.Keys(p.spec.Dimensions)) {
		i, ok := s.TraitIndex(name)
		if !ok {
			return nil, simerr.Strategy("selective names an unknown trait", goerr.V("trait", name))
		}
		off := p.spec.Dimensions[name]
		if !finite(off) {
			return nil, simerr.Strategy("selective offset must be finite", goerr.V("trait", name))
		}
		offsets[i] = off
	}
	return &Selective{Offsets: offsets}, nil
}

func (s *Selective) Name() string { return MisrepSelective }

func (s *Selective) Misrepresent(truth agents.Traits) agents.Traits {
	for i, off := range s.Offsets {
		truth[i] += off
	}
	return truth
}
