// Package strategy provides the closed set of liking and misrepresentation
// policies an agent can be bound to, and the assigner that distributes them
// across a population.
package strategy

import (
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/simerr"
)

// Spec references a strategy by name. Params holds numeric knobs; Dimensions
// holds per-trait offsets for the selective misrepresentation strategy.
type Spec struct {
	Name       string             `yaml:"name" json:"name"`
	Params     map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
	Dimensions map[string]float64 `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// params reads a Spec's knobs against a fixed set of defaults. Any key outside
// the defaults is a malformed reference.
type params struct {
	spec Spec
	vals map[string]float64
}

func newParams(s Spec, defaults map[string]float64) (*params, error) {
	vals := maps.Clone(defaults)
	if vals == nil {
		vals = map[string]float64{}
	}
	for _, k := range slices.Sorted(maps.Keys(s.Params)) {
		if _, ok := defaults[k]; !ok {
			return nil, simerr.Strategy("unknown strategy parameter",
				goerr.V("strategy", s.Name), goerr.V("param", k))
		}
		v := s.Params[k]
		if !finite(v) {
			return nil, simerr.Strategy("strategy parameter must be finite",
				goerr.V("strategy", s.Name), goerr.V("param", k))
		}
		vals[k] = v
	}
	return &params{spec: s, vals: vals}, nil
}

func (p *params) get(k string) float64 {
	return p.vals[k]
}

// positive returns the parameter or a StrategyError if it is not > 0.
func (p *params) positive(k string) (float64, error) {
	v := p.vals[k]
	if v <= 0 {
		return 0, simerr.Strategy("strategy parameter must be positive",
			goerr.V("strategy", p.spec.Name), goerr.V("param", k), goerr.V("value", v))
	}
	return v, nil
}

// unit returns the parameter or a StrategyError if it is outside [0, 1].
func (p *params) unit(k string) (float64, error) {
	v := p.vals[k]
	if v < 0 || v > 1 {
		return 0, simerr.Strategy("strategy parameter must be in [0, 1]",
			goerr.V("strategy", p.spec.Name), goerr.V("param", k), goerr.V("value", v))
	}
	return v, nil
}

// likingFactory builds a fresh, per-agent liking strategy.
type likingFactory func(p *params, schema *agents.Schema, rng *rand.Rand) (agents.LikingStrategy, error)

// misrepFactory builds a per-agent misrepresentation strategy.
type misrepFactory func(p *params, schema *agents.Schema, rng *rand.Rand) (agents.MisrepresentationStrategy, error)

type likingEntry struct {
	defaults map[string]float64
	build    likingFactory
}

type misrepEntry struct {
	defaults map[string]float64
	build    misrepFactory
}

// NewLiking builds the liking strategy spec names. Stateful strategies keep
// their state per instance, so every agent gets its own.
func NewLiking(spec Spec, schema *agents.Schema, rng *rand.Rand) (agents.LikingStrategy, error) {
	e, ok := likingRegistry[spec.Name]
	if !ok {
		return nil, simerr.Strategy("unknown liking strategy", goerr.V("strategy", spec.Name))
	}
	if len(spec.Dimensions) > 0 {
		return nil, simerr.Strategy("liking strategies take no dimensions", goerr.V("strategy", spec.Name))
	}
	p, err := newParams(spec, e.defaults)
	if err != nil {
		return nil, err
	}
	return e.build(p, schema, rng)
}

// NewMisrepresentation builds the misrepresentation strategy spec names.
// An empty name means honest.
func NewMisrepresentation(spec Spec, schema *agents.Schema, rng *rand.Rand) (agents.MisrepresentationStrategy, error) {
	if spec.Name == "" {
		spec.Name = MisrepHonest
	}
	e, ok := misrepRegistry[spec.Name]
	if !ok {
		return nil, simerr.Strategy("unknown misrepresentation strategy", goerr.V("strategy", spec.Name))
	}
	p, err := newParams(spec, e.defaults)
	if err != nil {
		return nil, err
	}
	return e.build(p, schema, rng)
}

// LikingNames lists the registered liking strategies in sorted order.
func LikingNames() []string {
	return slices.Sorted(maps.Keys(likingRegistry))
}

// MisrepresentationNames lists the registered misrepresentation strategies in sorted order.
func MisrepresentationNames() []string {
	return slices.Sorted(maps.Keys(misrepRegistry))
}

// base gives stateless strategies empty hooks.
type base struct {
	name string
}

func (b base) Name() string               { return b.name }
func (b base) NewRound(*agents.Agent)     {}
func (b base) Matched(_, _ *agents.Agent) {}
