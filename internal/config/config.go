// Package config provides the run configuration of a simulation: YAML loading
// over built-in defaults, and validation of every section.
package config

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/calib"
	"github.com/talgya/matchsim/internal/entropy"
	"github.com/talgya/matchsim/internal/matchmaking"
	"github.com/talgya/matchsim/internal/rating"
	"github.com/talgya/matchsim/internal/simerr"
	"github.com/talgya/matchsim/internal/strategy"
)

// Reporting modes.
const (
	// ReportStatic computes reported traits once, at creation.
	ReportStatic = "static"
	// ReportPerRound recomputes them at the start of every round.
	ReportPerRound = "per_round"
)

// Quantity terms of the utility function.
const (
	QuantityDiminishing = "diminishing"
	QuantityAdditive    = "additive"
)

// Elimination criteria.
const (
	EliminateByUtility = "utility"
	EliminateByRating  = "rating"
)

// Config is the full set of knobs for one run.
type Config struct {
	Seed               int64  `yaml:"seed"`
	Rounds             int    `yaml:"rounds"`
	Workers            int    `yaml:"workers"`
	CandidatesPerRound int    `yaml:"candidates_per_round"`
	Reporting          string `yaml:"reporting"`

	Population  agents.SpawnConfig  `yaml:"population"`
	Strategies  strategy.Assignment `yaml:"strategies"`
	Matchmaking matchmaking.Config  `yaml:"matchmaking"`
	Rating      rating.Params       `yaml:"rating"`
	Utility     Utility             `yaml:"utility"`
	Elimination Elimination         `yaml:"elimination"`
}

// Utility parameterizes the happiness an agent draws from a match.
type Utility struct {
	Quantity       string  `yaml:"quantity"`
	QualityWeight  float64 `yaml:"quality_weight"`
	QuantityWeight float64 `yaml:"quantity_weight"`
	Offset         float64 `yaml:"offset"`
	Exponent       float64 `yaml:"exponent"`
	Decay          float64 `yaml:"decay"`

	// PreferenceWeighted scales quality by the agent's own preference score of the partner.
	PreferenceWeighted bool `yaml:"preference_weighted"`

	RejectionCost       bool    `yaml:"rejection_cost"`
	RejectionCostAmount float64 `yaml:"rejection_cost_amount"`
}

// Elimination removes the bottom Percentile of active agents every Every rounds.
// Every = 0 disables it.
type Elimination struct {
	Every      int     `yaml:"every"`
	Percentile float64 `yaml:"percentile"`
	By         string  `yaml:"by"`
}

// Default returns the reference market: 100 agents, random matchmaking, threshold
// likers with a tenth of them inflating.
func Default() Config {
	return Config{
		Seed:               1,
		Rounds:             50,
		Workers:            1,
		CandidatesPerRound: calib.CandidatesPerRound,
		Reporting:          ReportStatic,
		Population:         agents.DefaultSpawnConfig(),
		Strategies:         strategy.DefaultAssignment(),
		Matchmaking:        matchmaking.DefaultConfig(),
		Rating:             rating.DefaultParams(),
		Utility: Utility{
			Quantity:      QuantityDiminishing,
			QualityWeight: 1,
			Offset:        calib.UtilityOffset,
			Exponent:      calib.UtilityExponent,
			Decay:         calib.UtilityDecay,
		},
		Elimination: Elimination{Percentile: 10, By: EliminateByUtility},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, goerr.Wrap(simerr.ErrConfiguration, "failed to parse YAML config", goerr.V("cause", err.Error()))
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, goerr.Wrap(err, "invalid config file", goerr.V("path", path))
	}
	return cfg, nil
}

// Validate checks every section, including that the strategy mix resolves
// against the population schema. It returns the schema it built.
func (c Config) Validate() (*agents.Schema, error) {
	if c.Rounds <= 0 {
		return nil, simerr.Config("rounds must be positive", goerr.V("rounds", c.Rounds))
	}
	if c.Workers < 1 {
		return nil, simerr.Config("workers must be at least 1", goerr.V("workers", c.Workers))
	}
	if c.CandidatesPerRound < 1 {
		return nil, simerr.Config("candidates_per_round must be at least 1", goerr.V("candidates_per_round", c.CandidatesPerRound))
	}
	if c.Reporting != ReportStatic && c.Reporting != ReportPerRound {
		return nil, simerr.Config("unknown reporting mode", goerr.V("reporting", c.Reporting))
	}

	schema, err := agents.NewSchema(c.Population)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid population")
	}
	if _, err := agents.NewSpawner(c.Population, schema, entropy.New(c.Seed)); err != nil {
		return nil, goerr.Wrap(err, "invalid population")
	}
	if _, err := strategy.NewAssigner(c.Strategies, schema); err != nil {
		return nil, goerr.Wrap(err, "invalid strategies")
	}
	if err := c.Matchmaking.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid matchmaking")
	}
	if err := c.Rating.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid rating")
	}
	if err := c.Utility.validate(); err != nil {
		return nil, err
	}
	if err := c.Elimination.validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

func (u Utility) validate() error {
	if u.Quantity != QuantityDiminishing && u.Quantity != QuantityAdditive {
		return simerr.Config("unknown utility quantity term", goerr.V("quantity", u.Quantity))
	}
	for name, v := range map[string]float64{
		"quality_weight":        u.QualityWeight,
		"quantity_weight":       u.QuantityWeight,
		"offset":                u.Offset,
		"exponent":              u.Exponent,
		"decay":                 u.Decay,
		"rejection_cost_amount": u.RejectionCostAmount,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return simerr.Config("utility parameter must be finite", goerr.V(name, v))
		}
	}
	if u.Exponent <= 0 {
		return simerr.Config("utility exponent must be positive", goerr.V("exponent", u.Exponent))
	}
	if u.Decay <= 0 || u.Decay > 1 {
		return simerr.Config("utility decay must be in (0, 1]", goerr.V("decay", u.Decay))
	}
	if u.RejectionCostAmount < 0 {
		return simerr.Config("rejection cost must not be negative", goerr.V("rejection_cost_amount", u.RejectionCostAmount))
	}
	return nil
}

func (e Elimination) validate() error {
	if e.Every < 0 {
		return simerr.Config("elimination interval must not be negative", goerr.V("every", e.Every))
	}
	if e.Every == 0 {
		return nil
	}
	if math.IsNaN(e.Percentile) || e.Percentile <= 0 || e.Percentile >= 100 {
		return simerr.Config("elimination percentile must be in (0, 100)", goerr.V("percentile", e.Percentile))
	}
	if e.By != EliminateByUtility && e.By != EliminateByRating {
		return simerr.Config("unknown elimination criterion", goerr.V("by", e.By))
	}
	return nil
}
