package config_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/talgya/matchsim/internal/config"
	"github.com/talgya/matchsim/internal/matchmaking"
	"github.com/talgya/matchsim/internal/simerr"
	"github.com/talgya/matchsim/internal/strategy"
)

func TestDefaultIsValid(t *testing.T) {
	schema, err := config.Default().Validate()
	gt.NoError(t, err)
	gt.A(t, schema.Groups).Length(2)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
seed: 42
rounds: 5
workers: 4
reporting: per_round
population:
  groups:
    - {name: left, size: 10}
    - {name: right, size: 10}
  traits:
    - name: attractiveness
      min: 1
      max: 5
      dist: {kind: uniform}
  preferences: {kind: constant, value: 1}
  attractiveness: attractiveness
  like_allowance: 3
strategies:
  mode: fixed
  mix:
    - liking: {name: threshold, params: {threshold: 0.4}}
      misrepresentation: {name: inflate, params: {amount: 2}}
      weight: 1
  overrides:
    1:
      liking: {name: adventurous}
matchmaking:
  kind: rating
  mode: top
  strict: true
utility:
  rejection_cost: true
  rejection_cost_amount: 0.1
`))
	gt.NoError(t, err)

	gt.Equal(t, cfg.Seed, int64(42))
	gt.Equal(t, cfg.Rounds, 5)
	gt.Equal(t, cfg.Workers, 4)
	gt.Equal(t, cfg.Population.Groups[1].Name, "right")
	gt.Equal(t, cfg.Population.LikeAllowance, 3)
	gt.Equal(t, cfg.Strategies.Mix[0].Misrepresentation.Params["amount"], 2.0)
	gt.Equal(t, cfg.Strategies.Overrides[1].Liking.Name, strategy.LikeAdventurous)
	gt.Equal(t, cfg.Matchmaking.Kind, matchmaking.KindRating)
	gt.True(t, cfg.Utility.RejectionCost)

	// Untouched sections keep their defaults.
	gt.Equal(t, cfg.CandidatesPerRound, config.Default().CandidatesPerRound)
	gt.Equal(t, cfg.Utility.Decay, config.Default().Utility.Decay)
	gt.Equal(t, cfg.Rating, config.Default().Rating)

	_, err = cfg.Validate()
	gt.NoError(t, err)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := config.Parse([]byte("roundz: 3\n"))
	gt.True(t, errors.Is(err, simerr.ErrConfiguration))
}

func TestEmptyDocumentMeansDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	gt.NoError(t, err)
	gt.Equal(t, cfg.Rounds, config.Default().Rounds)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	gt.NoError(t, os.WriteFile(path, []byte("rounds: 7\n"), 0o600))

	cfg, err := config.Load(path)
	gt.NoError(t, err)
	gt.Equal(t, cfg.Rounds, 7)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	gt.Error(t, err)
}

func TestParseRejectsInfiniteRejectionCost(t *testing.T) {
	cfg, err := config.Parse([]byte("rounds: 2\nutility:\n  rejection_cost: true\n  rejection_cost_amount: .inf\n"))
	gt.NoError(t, err)
	_, err = cfg.Validate()
	gt.Error(t, err)
	gt.True(t, errors.Is(err, simerr.ErrConfiguration))
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*config.Config)
		kind   error
	}{
		{"zero rounds", func(c *config.Config) { c.Rounds = 0 }, simerr.ErrConfiguration},
		{"no workers", func(c *config.Config) { c.Workers = 0 }, simerr.ErrConfiguration},
		{"no candidates", func(c *config.Config) { c.CandidatesPerRound = 0 }, simerr.ErrConfiguration},
		{"reporting", func(c *config.Config) { c.Reporting = "weekly" }, simerr.ErrConfiguration},
		{"one group", func(c *config.Config) { c.Population.Groups = c.Population.Groups[:1] }, simerr.ErrConfiguration},
		{"unknown strategy", func(c *config.Config) {
			c.Strategies.Mix = []strategy.Entry{{Liking: strategy.Spec{Name: "swipe_all"}, Weight: 1}}
		}, simerr.ErrStrategy},
		{"matchmaker", func(c *config.Config) { c.Matchmaking.Kind = "oracle" }, simerr.ErrConfiguration},
		{"rating", func(c *config.Config) { c.Rating.Sigma = -1 }, simerr.ErrConfiguration},
		{"quantity", func(c *config.Config) { c.Utility.Quantity = "exponential" }, simerr.ErrConfiguration},
		{"decay", func(c *config.Config) { c.Utility.Decay = 1.5 }, simerr.ErrConfiguration},
		{"infinite rejection cost", func(c *config.Config) {
			c.Utility.RejectionCost = true
			c.Utility.RejectionCostAmount = math.Inf(1)
		}, simerr.ErrConfiguration},
		{"nan rejection cost", func(c *config.Config) { c.Utility.RejectionCostAmount = math.NaN() }, simerr.ErrConfiguration},
		{"infinite offset", func(c *config.Config) { c.Utility.Offset = math.Inf(-1) }, simerr.ErrConfiguration},
		{"nan quality weight", func(c *config.Config) { c.Utility.QualityWeight = math.NaN() }, simerr.ErrConfiguration},
		{"infinite quantity weight", func(c *config.Config) { c.Utility.QuantityWeight = math.Inf(1) }, simerr.ErrConfiguration},
		{"nan exponent", func(c *config.Config) { c.Utility.Exponent = math.NaN() }, simerr.ErrConfiguration},
		{"nan elimination percentile", func(c *config.Config) {
			c.Elimination = config.Elimination{Every: 5, Percentile: math.NaN(), By: config.EliminateByUtility}
		}, simerr.ErrConfiguration},
		{"elimination", func(c *config.Config) {
			c.Elimination = config.Elimination{Every: 5, Percentile: 10, By: "looks"}
		}, simerr.ErrConfiguration},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			_, err := cfg.Validate()
			gt.Error(t, err)
			gt.True(t, errors.Is(err, tc.kind))
		})
	}
}
