// Agent spawning: draws the initial population with traits, preferences,
// attributes, membership flags and bound strategies.
package agents

import (
	"math"
	"math/rand/v2"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/entropy"
	"github.com/talgya/matchsim/internal/simerr"
)

// Assigner binds the strategies of a freshly drawn agent. index is the agent's
// position within its group.
type Assigner interface {
	Assign(a *Agent, index int, rng *rand.Rand) (LikingStrategy, MisrepresentationStrategy, error)
}

// Spawner creates agents for the simulation.
type Spawner struct {
	cfg     SpawnConfig
	schema  *Schema
	streams *entropy.Streams
	rng     *rand.Rand
	nextID  AgentID
}

// NewSpawner validates the population parameters the schema does not cover.
func NewSpawner(cfg SpawnConfig, schema *Schema, streams *entropy.Streams) (*Spawner, error) {
	switch {
	case cfg.LikeAllowance <= 0:
		return nil, simerr.Config("like allowance must be positive", goerr.V("like_allowance", cfg.LikeAllowance))
	case cfg.PremiumMultiplier < 1:
		return nil, simerr.Config("premium multiplier must be at least 1", goerr.V("premium_multiplier", cfg.PremiumMultiplier))
	case !finite(cfg.PremiumChance) || cfg.PremiumChance < 0 || cfg.PremiumChance > 1:
		return nil, simerr.Config("premium chance must be in [0, 1]", goerr.V("premium_chance", cfg.PremiumChance))
	case !finite(cfg.ImpostorChance) || cfg.ImpostorChance < 0 || cfg.ImpostorChance > 1:
		return nil, simerr.Config("impostor chance must be in [0, 1]", goerr.V("impostor_chance", cfg.ImpostorChance))
	}
	if err := cfg.Preferences.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid preference distribution")
	}

	return &Spawner{
		cfg:     cfg,
		schema:  schema,
		streams: streams,
		rng:     streams.Spawn(),
		nextID:  1,
	}, nil
}

// SpawnPopulation draws every group in configuration order. IDs are sequential
// from 1, so the same seed always yields the same population.
func (s *Spawner) SpawnPopulation(assign Assigner) ([]*Agent, error) {
	total := 0
	for _, g := range s.schema.Groups {
		total += g.Size
	}

	population := make([]*Agent, 0, total)
	for gi, g := range s.schema.Groups {
		for i := 0; i < g.Size; i++ {
			a, err := s.spawnOne(Group(gi), i, assign)
			if err != nil {
				return nil, err
			}
			population = append(population, a)
		}
	}
	return population, nil
}

func (s *Spawner) spawnOne(g Group, index int, assign Assigner) (*Agent, error) {
	id := s.nextID
	s.nextID++

	groupName := s.schema.GroupName(g)
	traits := make(Traits, len(s.schema.Traits))
	for i, spec := range s.schema.Traits {
		dist := spec.Dist
		if d, ok := spec.Groups[groupName]; ok {
			dist = d
		}
		v, err := dist.Sample(s.rng, spec.Min, spec.Max)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to draw trait", goerr.V("trait", spec.Name), goerr.V("agent", id))
		}
		traits[i] = v
	}

	weights := make([]float64, len(s.schema.Traits))
	for i := range weights {
		w, err := s.cfg.Preferences.Sample(s.rng, 0, 1)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to draw preference weight", goerr.V("agent", id))
		}
		weights[i] = math.Max(w, 0)
	}

	attrs := make([]int, len(s.schema.Attributes))
	for i, spec := range s.schema.Attributes {
		attrs[i] = s.rng.IntN(spec.Values)
	}

	a := NewAgent(id, g, traits, Preferences{Weights: weights}, attrs)
	a.EstimatedAttractiveness = s.estimateSelf(s.schema.Attractiveness(traits))
	a.Premium = s.rng.Float64() < s.cfg.PremiumChance
	a.Impostor = s.rng.Float64() < s.cfg.ImpostorChance
	a.LikeAllowance = s.cfg.LikeAllowance
	if a.Premium {
		a.LikeAllowance *= s.cfg.PremiumMultiplier
	}

	if assign != nil {
		liking, misrep, err := assign.Assign(a, index, s.streams.Agent(entropy.PurposeStrategy, 0, uint64(id)))
		if err != nil {
			return nil, err
		}
		a.Liking, a.Misrep = liking, misrep
	}
	a.Report(s.schema)

	return a, nil
}

// estimateSelf draws a noisy self-assessment. On the unit scale an agent at x
// believes itself to be somewhere in [0.75x, 0.375x + 0.625]: low agents
// overestimate, top agents underestimate slightly.
func (s *Spawner) estimateSelf(attr float64) float64 {
	spec := s.schema.Traits[s.schema.AttractivenessIndex()]
	span := spec.Max - spec.Min
	x := s.schema.Normalize(s.schema.AttractivenessIndex(), attr)

	lo, hi := 0.75*x, 0.375*x+0.625
	mu := (lo + hi) / 2
	sigma := (hi - lo) / 6
	est := truncNormal(s.rng, mu, sigma, lo, hi)
	return spec.Min + est*span
}
