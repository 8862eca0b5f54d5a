package agents

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/calib"
	"github.com/talgya/matchsim/internal/simerr"
)

// GroupSpec names one side of the market and its population.
type GroupSpec struct {
	Name string `yaml:"name" json:"name"`
	Size int    `yaml:"size" json:"size"`
}

// TraitSpec declares one numeric trait dimension. Groups overrides the draw per group name.
type TraitSpec struct {
	Name   string                  `yaml:"name" json:"name"`
	Min    float64                 `yaml:"min" json:"min"`
	Max    float64                 `yaml:"max" json:"max"`
	Dist   Distribution            `yaml:"dist" json:"dist"`
	Groups map[string]Distribution `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// AttributeSpec declares one categorical attribute and its compatibility reward.
// Hidden attributes never appear in a candidate view but still count toward utility.
type AttributeSpec struct {
	Name           string  `yaml:"name" json:"name"`
	Values         int     `yaml:"values" json:"values"`
	Observable     bool    `yaml:"observable" json:"observable"`
	Weight         float64 `yaml:"weight" json:"weight"`
	MatchReward    float64 `yaml:"match_reward" json:"match_reward"`
	MismatchReward float64 `yaml:"mismatch_reward" json:"mismatch_reward"`
}

// SpawnConfig controls initial population generation.
type SpawnConfig struct {
	Groups         []GroupSpec     `yaml:"groups"`
	Traits         []TraitSpec     `yaml:"traits"`
	Preferences    Distribution    `yaml:"preferences"`
	Attributes     []AttributeSpec `yaml:"attributes"`
	Attractiveness string          `yaml:"attractiveness"`

	LikeAllowance     int     `yaml:"like_allowance"`
	PremiumMultiplier int     `yaml:"premium_multiplier"`
	PremiumChance     float64 `yaml:"premium_chance"`
	ImpostorChance    float64 `yaml:"impostor_chance"`
}

// DefaultSpawnConfig is the reference market: a 72/28 two-group split,
// beta-distributed attractiveness on [1, 5] and two categorical attributes.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		Groups: []GroupSpec{{Name: "male", Size: 72}, {Name: "female", Size: 28}},
		Traits: []TraitSpec{{
			Name: "attractiveness",
			Min:  calib.AttractivenessMin,
			Max:  calib.AttractivenessMax,
			Dist: Distribution{Kind: DistBeta, Alpha: 4, Beta: 4},
			Groups: map[string]Distribution{
				"male": {Kind: DistBeta, Alpha: 2, Beta: 6},
			},
		}},
		Preferences: Distribution{Kind: DistConstant, Value: 1},
		Attributes: []AttributeSpec{
			{Name: "lifestyle", Values: 2, Observable: true, Weight: 0.5, MatchReward: 0.75, MismatchReward: 1.25},
			{Name: "values", Values: 2, Observable: false, Weight: 0.5, MatchReward: 1.25, MismatchReward: 0.75},
		},
		Attractiveness:    "attractiveness",
		LikeAllowance:     calib.LikeAllowance,
		PremiumMultiplier: calib.PremiumMultiplier,
		PremiumChance:     calib.PremiumChance,
		ImpostorChance:    calib.ImpostorChance,
	}
}

// Schema is the validated, indexed form of a SpawnConfig.
type Schema struct {
	Groups     []GroupSpec
	Traits     []TraitSpec
	Attributes []AttributeSpec

	attractiveness int
	traitIndex     map[string]int
	groupIndex     map[string]Group
}

// NewSchema validates cfg and indexes its traits and groups.
func NewSchema(cfg SpawnConfig) (*Schema, error) {
	if len(cfg.Groups) < 2 {
		return nil, simerr.Config("at least two groups are required", goerr.V("groups", len(cfg.Groups)))
	}
	if len(cfg.Traits) == 0 {
		return nil, simerr.Config("at least one trait is required")
	}

	s := &Schema{
		Groups:     cfg.Groups,
		Traits:     cfg.Traits,
		Attributes: cfg.Attributes,
		traitIndex: make(map[string]int, len(cfg.Traits)),
		groupIndex: make(map[string]Group, len(cfg.Groups)),
	}

	for i, g := range cfg.Groups {
		if g.Name == "" {
			return nil, simerr.Config("group name is empty", goerr.V("index", i))
		}
		if g.Size <= 0 {
			return nil, simerr.Config("group size must be positive", goerr.V("group", g.Name), goerr.V("size", g.Size))
		}
		if _, dup := s.groupIndex[g.Name]; dup {
			return nil, simerr.Config("duplicate group name", goerr.V("group", g.Name))
		}
		s.groupIndex[g.Name] = Group(i)
	}

	for i, t := range cfg.Traits {
		if t.Name == "" {
			return nil, simerr.Config("trait name is empty", goerr.V("index", i))
		}
		if _, dup := s.traitIndex[t.Name]; dup {
			return nil, simerr.Config("duplicate trait name", goerr.V("trait", t.Name))
		}
		if !finite(t.Min, t.Max) || t.Min >= t.Max {
			return nil, simerr.Config("trait bounds must satisfy min < max",
				goerr.V("trait", t.Name), goerr.V("min", t.Min), goerr.V("max", t.Max))
		}
		if err := t.Dist.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid trait distribution", goerr.V("trait", t.Name))
		}
		for g, d := range t.Groups {
			if _, ok := s.groupIndex[g]; !ok {
				return nil, simerr.Config("trait override names an unknown group",
					goerr.V("trait", t.Name), goerr.V("group", g))
			}
			if err := d.Validate(); err != nil {
				return nil, goerr.Wrap(err, "invalid trait distribution", goerr.V("trait", t.Name), goerr.V("group", g))
			}
		}
		s.traitIndex[t.Name] = i
	}

	if cfg.Attractiveness == "" {
		s.attractiveness = 0
	} else {
		idx, ok := s.traitIndex[cfg.Attractiveness]
		if !ok {
			return nil, simerr.Config("attractiveness names an unknown trait", goerr.V("trait", cfg.Attractiveness))
		}
		s.attractiveness = idx
	}

	for i, a := range cfg.Attributes {
		if a.Values < 1 {
			return nil, simerr.Config("attribute needs at least one value", goerr.V("attribute", a.Name), goerr.V("index", i))
		}
		if !finite(a.Weight, a.MatchReward, a.MismatchReward) || a.Weight < 0 {
			return nil, simerr.Config("attribute weights must be finite and non-negative", goerr.V("attribute", a.Name))
		}
	}

	return s, nil
}

// TraitIndex returns the dimension of a named trait.
func (s *Schema) TraitIndex(name string) (int, bool) {
	i, ok := s.traitIndex[name]
	return i, ok
}

// GroupIndex returns the group with the given name.
func (s *Schema) GroupIndex(name string) (Group, bool) {
	g, ok := s.groupIndex[name]
	return g, ok
}

// GroupName returns the configured name of g.
func (s *Schema) GroupName(g Group) string {
	if int(g) < len(s.Groups) {
		return s.Groups[g].Name
	}
	return "unknown"
}

// Attractiveness returns the attractiveness dimension of t.
func (s *Schema) Attractiveness(t Traits) float64 {
	return t[s.attractiveness]
}

// AttractivenessIndex returns the dimension used as attractiveness.
func (s *Schema) AttractivenessIndex() int {
	return s.attractiveness
}

// Normalize maps v on dimension i into [0, 1].
func (s *Schema) Normalize(i int, v float64) float64 {
	t := s.Traits[i]
	return clamp((v-t.Min)/(t.Max-t.Min), 0, 1)
}

// Clamp returns a copy of t with every dimension held inside its bounds.
func (s *Schema) Clamp(t Traits) Traits {
	out := t.Clone()
	for i := range out {
		out[i] = clamp(out[i], s.Traits[i].Min, s.Traits[i].Max)
	}
	return out
}

// Compatibility returns the attribute multiplier between a and b: the weighted
// mean of match and mismatch rewards. Unknown values (hidden attributes in a view)
// are skipped, as are hidden attributes when observableOnly is set. With nothing
// to compare the multiplier is 1.
func (s *Schema) Compatibility(a, b []int, observableOnly bool) float64 {
	var sum, weight float64
	for i, spec := range s.Attributes {
		if i >= len(a) || i >= len(b) {
			break
		}
		if observableOnly && !spec.Observable {
			continue
		}
		if a[i] == Unknown || b[i] == Unknown {
			continue
		}
		weight += spec.Weight
		if a[i] == b[i] {
			sum += spec.Weight * spec.MatchReward
		} else {
			sum += spec.Weight * spec.MismatchReward
		}
	}
	if weight == 0 {
		return 1
	}
	return sum / weight
}
