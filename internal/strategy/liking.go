package strategy

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/simerr"
)

// Liking strategy names.
const (
	LikeThreshold       = "threshold"
	LikeProbabilistic   = "probabilistic"
	LikeRatingAware     = "rating_aware"
	LikeAdventurous     = "adventurous"
	LikeHomophiliac     = "homophiliac"
	LikeSocialClimber   = "social_climber"
	LikePicky           = "picky"
	LikeObservant       = "observant"
	LikeSecretary       = "secretary"
	LikeWeightedMinimal = "weighted_minimal"
)

var likingRegistry = map[string]likingEntry{
	LikeThreshold: {
		defaults: map[string]float64{"threshold": 0.5},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			return &Threshold{base: base{LikeThreshold}, Threshold: p.get("threshold")}, nil
		},
	},
	LikeProbabilistic: {
		defaults: map[string]float64{"steepness": 10, "midpoint": 0.5},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			k, err := p.positive("steepness")
			if err != nil {
				return nil, err
			}
			return &Probabilistic{base: base{LikeProbabilistic}, Steepness: k, Midpoint: p.get("midpoint")}, nil
		},
	},
	LikeRatingAware: {
		defaults: map[string]float64{"threshold": 0.5, "weight": 0.5},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			w, err := p.unit("weight")
			if err != nil {
				return nil, err
			}
			return &RatingAware{base: base{LikeRatingAware}, Threshold: p.get("threshold"), Weight: w}, nil
		},
	},
	LikeAdventurous: {
		defaults: map[string]float64{"chance": 0.5},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			c, err := p.unit("chance")
			if err != nil {
				return nil, err
			}
			return &Adventurous{base: base{LikeAdventurous}, Chance: c}, nil
		},
	},
	LikeHomophiliac: {
		defaults: map[string]float64{"low": -1.5, "high": 2},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			lo, hi := p.get("low"), p.get("high")
			if lo > hi {
				return nil, simerr.Strategy("homophily window has low above high",
					goerr.V("low", lo), goerr.V("high", hi))
			}
			return &Homophiliac{base: base{LikeHomophiliac}, Low: lo, High: hi}, nil
		},
	},
	LikeSocialClimber: {
		build: func(_ *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			return &SocialClimber{base: base{LikeSocialClimber}}, nil
		},
	},
	LikePicky: {
		defaults: map[string]float64{"percentile": 80},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			pct := p.get("percentile")
			if pct < 0 || pct > 100 {
				return nil, simerr.Strategy("picky percentile must be in [0, 100]", goerr.V("percentile", pct))
			}
			return &Picky{base: base{LikePicky}, Percentile: pct}, nil
		},
	},
	LikeObservant: {
		build: func(_ *params, s *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			return newObservant(s), nil
		},
	},
	LikeSecretary: {
		defaults: map[string]float64{"candidates": 10, "reject_fraction": 0.37},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			n, err := p.positive("candidates")
			if err != nil {
				return nil, err
			}
			f, err := p.unit("reject_fraction")
			if err != nil {
				return nil, err
			}
			return &Secretary{base: base{LikeSecretary}, Candidates: n, RejectFraction: f}, nil
		},
	},
	LikeWeightedMinimal: {
		defaults: map[string]float64{"slack": 0.1},
		build: func(p *params, _ *agents.Schema, _ *rand.Rand) (agents.LikingStrategy, error) {
			return &WeightedMinimal{base: base{LikeWeightedMinimal}, Slack: p.get("slack")}, nil
		},
	},
}

// Threshold likes iff the agent's own preference score of the candidate's
// reported traits reaches Threshold.
type Threshold struct {
	base
	Threshold float64
}

func (s *Threshold) DecideLike(d agents.Decision) bool {
	return d.Self.Score(d.Schema, d.Candidate.Traits) >= s.Threshold
}

// Probabilistic likes with a logistic probability in the preference score.
type Probabilistic struct {
	base
	Steepness float64
	Midpoint  float64
}

func (s *Probabilistic) DecideLike(d agents.Decision) bool {
	score := d.Self.Score(d.Schema, d.Candidate.Traits)
	p := 1 / (1 + math.Exp(-s.Steepness*(score-s.Midpoint)))
	return d.Rand.Float64() < p
}

// RatingAware blends the preference score with the probability that the
// candidate outranks the agent under the current ratings.
type RatingAware struct {
	base
	Threshold float64
	Weight    float64
}

func (s *RatingAware) DecideLike(d agents.Decision) bool {
	score := d.Self.Score(d.Schema, d.Candidate.Traits)
	c, me := d.Candidate.Rating, d.SelfRating
	spread := math.Sqrt(c.Sigma*c.Sigma + me.Sigma*me.Sigma)
	outrank := 0.5
	if spread > 0 {
		outrank = distuv.UnitNormal.CDF((c.Mu - me.Mu) / spread)
	}
	return (1-s.Weight)*score+s.Weight*outrank >= s.Threshold
}

// Adventurous likes at random.
type Adventurous struct {
	base
	Chance float64
}

func (s *Adventurous) DecideLike(d agents.Decision) bool {
	return d.Rand.Float64() < s.Chance
}

// Homophiliac likes candidates whose reported attractiveness sits within
// [own estimate - High, own estimate - Low].
type Homophiliac struct {
	base
	Low, High float64
}

func (s *Homophiliac) DecideLike(d agents.Decision) bool {
	diff := d.Self.EstimatedAttractiveness - d.Schema.Attractiveness(d.Candidate.Traits)
	return s.Low <= diff && diff <= s.High
}

// SocialClimber likes only candidates who look more attractive than it believes itself to be.
type SocialClimber struct {
	base
}

func (s *SocialClimber) DecideLike(d agents.Decision) bool {
	return d.Schema.Attractiveness(d.Candidate.Traits) > d.Self.EstimatedAttractiveness
}

// Picky likes candidates at or above a percentile of everyone it has seen so far.
type Picky struct {
	base
	Percentile float64
	observed   []float64
}

func (s *Picky) DecideLike(d agents.Decision) bool {
	attr := d.Schema.Attractiveness(d.Candidate.Traits)
	s.observed = append(s.observed, attr)
	sorted := slices.Clone(s.observed)
	slices.Sort(sorted)
	return stat.Quantile(s.Percentile/100, stat.LinInterp, sorted, nil) <= attr
}

// Observant likes with a chance given by where the candidate ranks among the
// agents it has seen and the partners it has matched.
type Observant struct {
	base
	attr     int
	matched  []float64
	observed []float64
}

// newObservant seeds both samples with evenly spread values so the first
// decisions are unbiased.
func newObservant(s *agents.Schema) *Observant {
	spec := s.Traits[s.AttractivenessIndex()]
	seed := make([]float64, 5)
	for i := range seed {
		seed[i] = spec.Min + float64(i)*(spec.Max-spec.Min)/4
	}
	return &Observant{
		base:     base{LikeObservant},
		attr:     s.AttractivenessIndex(),
		matched:  slices.Clone(seed),
		observed: slices.Clone(seed),
	}
}

func (s *Observant) DecideLike(d agents.Decision) bool {
	attr := d.Schema.Attractiveness(d.Candidate.Traits)
	chance := (strictPercentile(s.matched, attr) + strictPercentile(s.observed, attr)) / 2
	s.observed = append(s.observed, attr)
	return d.Rand.Float64()*100 < chance
}

// Matched learns from the partner's true attractiveness, revealed by the match.
func (s *Observant) Matched(_, partner *agents.Agent) {
	s.matched = append(s.matched, partner.TrueTraits()[s.attr])
}

func strictPercentile(xs []float64, v float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	below := 0
	for _, x := range xs {
		if x < v {
			below++
		}
	}
	return 100 * float64(below) / float64(len(xs))
}

// Secretary passes on the first RejectFraction of the expected candidates of a
// round, then likes anyone better than all of those. Premium members expect
// more candidates by their allowance multiplier.
type Secretary struct {
	base
	Candidates     float64
	RejectFraction float64
	observed       []float64
}

func (s *Secretary) NewRound(*agents.Agent) {
	s.observed = s.observed[:0]
}

func (s *Secretary) DecideLike(d agents.Decision) bool {
	expected := s.Candidates
	if d.Self.Premium && d.PremiumMultiplier > 1 {
		expected *= float64(d.PremiumMultiplier)
	}
	attr := d.Schema.Attractiveness(d.Candidate.Traits)
	if len(s.observed) < int(s.RejectFraction*expected) || len(s.observed) == 0 {
		s.observed = append(s.observed, attr)
		return false
	}
	return attr > slices.Max(s.observed)
}

// WeightedMinimal likes anyone whose preference score is no more than Slack
// below the score the agent gives its own self-image.
type WeightedMinimal struct {
	base
	Slack float64
}

func (s *WeightedMinimal) DecideLike(d agents.Decision) bool {
	self := d.Self.TrueTraits()
	self[d.Schema.AttractivenessIndex()] = d.Self.EstimatedAttractiveness
	return d.Self.Score(d.Schema, d.Candidate.Traits) >= d.Self.Score(d.Schema, self)-s.Slack
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
