package strategy_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/entropy"
	"github.com/talgya/matchsim/internal/rating"
	"github.com/talgya/matchsim/internal/simerr"
	"github.com/talgya/matchsim/internal/strategy"
)

func schema(t *testing.T) *agents.Schema {
	t.Helper()
	s, err := agents.NewSchema(agents.DefaultSpawnConfig())
	gt.NoError(t, err)
	return s
}

func newAgent(id agents.AgentID, attr, estimate float64) *agents.Agent {
	a := agents.NewAgent(id, 0, agents.Traits{attr}, agents.Preferences{Weights: []float64{1}}, []int{0, 0})
	a.EstimatedAttractiveness = estimate
	return a
}

func decide(t *testing.T, l agents.LikingStrategy, s *agents.Schema, self *agents.Agent, candAttr float64) bool {
	t.Helper()
	cand := newAgent(99, candAttr, candAttr)
	return l.DecideLike(agents.Decision{
		Self:       self,
		SelfRating: rating.Rating{Mu: 25, Sigma: 8},
		Candidate:  cand.View(s, rating.Rating{Mu: 25, Sigma: 8}),
		Schema:     s,
		Rand:       rand.New(rand.NewPCG(1, 1)),
	})
}

func TestUnknownStrategiesFail(t *testing.T) {
	s := schema(t)
	rng := rand.New(rand.NewPCG(1, 1))

	_, err := strategy.NewLiking(strategy.Spec{Name: "reckless"}, s, rng)
	gt.True(t, errors.Is(err, simerr.ErrStrategy))

	_, err = strategy.NewMisrepresentation(strategy.Spec{Name: "catfish"}, s, rng)
	gt.True(t, errors.Is(err, simerr.ErrStrategy))

	_, err = strategy.NewLiking(strategy.Spec{Name: strategy.LikeThreshold, Params: map[string]float64{"treshold": 1}}, s, rng)
	gt.True(t, errors.Is(err, simerr.ErrStrategy))

	_, err = strategy.NewLiking(strategy.Spec{Name: strategy.LikeAdventurous, Params: map[string]float64{"chance": 2}}, s, rng)
	gt.True(t, errors.Is(err, simerr.ErrStrategy))

	_, err = strategy.NewMisrepresentation(strategy.Spec{Name: strategy.MisrepSelective, Dimensions: map[string]float64{"height": 1}}, s, rng)
	gt.True(t, errors.Is(err, simerr.ErrStrategy))

	_, err = strategy.NewMisrepresentation(strategy.Spec{Name: strategy.MisrepInflate, Params: map[string]float64{"amount": -1}}, s, rng)
	gt.True(t, errors.Is(err, simerr.ErrStrategy))
}

func TestEveryRegisteredStrategyBuilds(t *testing.T) {
	s := schema(t)
	rng := rand.New(rand.NewPCG(1, 1))

	for _, name := range strategy.LikingNames() {
		l, err := strategy.NewLiking(strategy.Spec{Name: name}, s, rng)
		gt.NoError(t, err)
		gt.Equal(t, l.Name(), name)
	}
	for _, name := range strategy.MisrepresentationNames() {
		spec := strategy.Spec{Name: name}
		if name == strategy.MisrepSelective {
			spec.Dimensions = map[string]float64{"attractiveness": 0.5}
		}
		m, err := strategy.NewMisrepresentation(spec, s, rng)
		gt.NoError(t, err)
		gt.Equal(t, m.Name(), name)
	}
}

func TestThreshold(t *testing.T) {
	s := schema(t)
	l, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeThreshold, Params: map[string]float64{"threshold": 0.5}}, s, nil)
	gt.NoError(t, err)

	self := newAgent(1, 3, 3)
	gt.True(t, decide(t, l, s, self, 3))   // score 0.5
	gt.True(t, decide(t, l, s, self, 4.5)) // score 0.875
	gt.False(t, decide(t, l, s, self, 2))  // score 0.25
}

func TestHomophiliacAndSocialClimber(t *testing.T) {
	s := schema(t)
	h, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeHomophiliac}, s, nil)
	gt.NoError(t, err)
	c, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeSocialClimber}, s, nil)
	gt.NoError(t, err)

	self := newAgent(1, 3, 3)
	gt.True(t, decide(t, h, s, self, 4.5))  // diff -1.5
	gt.False(t, decide(t, h, s, self, 4.6)) // diff -1.6
	gt.True(t, decide(t, h, s, self, 1))    // diff 2

	gt.True(t, decide(t, c, s, self, 3.1))
	gt.False(t, decide(t, c, s, self, 3))
}

func TestRatingAwareFollowsRatings(t *testing.T) {
	s := schema(t)
	l, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeRatingAware,
		Params: map[string]float64{"weight": 1, "threshold": 0.5}}, s, nil)
	gt.NoError(t, err)

	self := newAgent(1, 3, 3)
	cand := newAgent(2, 1, 1)
	d := agents.Decision{Self: self, SelfRating: rating.Rating{Mu: 25, Sigma: 2}, Schema: s}

	d.Candidate = cand.View(s, rating.Rating{Mu: 30, Sigma: 2})
	gt.True(t, l.DecideLike(d))
	d.Candidate = cand.View(s, rating.Rating{Mu: 20, Sigma: 2})
	gt.False(t, l.DecideLike(d))
}

func TestPickyRaisesTheBar(t *testing.T) {
	s := schema(t)
	l, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikePicky, Params: map[string]float64{"percentile": 50}}, s, nil)
	gt.NoError(t, err)

	self := newAgent(1, 3, 3)
	gt.True(t, decide(t, l, s, self, 3)) // only observation
	gt.True(t, decide(t, l, s, self, 4)) // lower median of {3,4} is 3
	gt.False(t, decide(t, l, s, self, 2))
	gt.True(t, decide(t, l, s, self, 5))
}

func TestSecretaryObservesThenPicks(t *testing.T) {
	s := schema(t)
	l, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeSecretary,
		Params: map[string]float64{"candidates": 12, "reject_fraction": 0.25}}, s, nil)
	gt.NoError(t, err)

	self := newAgent(1, 3, 3)
	l.NewRound(self)
	gt.False(t, decide(t, l, s, self, 4))
	gt.False(t, decide(t, l, s, self, 2))
	gt.False(t, decide(t, l, s, self, 3))
	gt.False(t, decide(t, l, s, self, 3.9))
	gt.True(t, decide(t, l, s, self, 4.2))

	l.NewRound(self)
	gt.False(t, decide(t, l, s, self, 5))
}

func TestSecretaryScalesWithPremiumMultiplier(t *testing.T) {
	s := schema(t)
	testCases := []struct {
		name       string
		premium    bool
		multiplier int
		observed   int
	}{
		{"regular member", false, 3, 2},
		{"premium doubled", true, 2, 4},
		{"premium tripled", true, 3, 6},
		{"multiplier unset", true, 0, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeSecretary,
				Params: map[string]float64{"candidates": 4, "reject_fraction": 0.5}}, s, nil)
			gt.NoError(t, err)

			self := newAgent(1, 3, 3)
			self.Premium = tc.premium
			l.NewRound(self)

			like := func(attr float64) bool {
				cand := newAgent(99, attr, attr)
				return l.DecideLike(agents.Decision{
					Self:              self,
					Candidate:         cand.View(s, rating.Rating{Mu: 25, Sigma: 8}),
					Schema:            s,
					Rand:              rand.New(rand.NewPCG(1, 1)),
					PremiumMultiplier: tc.multiplier,
				})
			}
			// The observation phase passes even on the best profile.
			for range tc.observed {
				gt.False(t, like(2))
			}
			gt.True(t, like(4))
		})
	}
}

func TestObservantLearnsFromMatches(t *testing.T) {
	s := schema(t)
	l, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeObservant}, s, nil)
	gt.NoError(t, err)

	self := newAgent(1, 3, 3)
	// Nothing seen is below the scale minimum: chance zero.
	gt.False(t, decide(t, l, s, self, 1))
	l.Matched(self, newAgent(2, 5, 5))
}

func TestAdventurousExtremes(t *testing.T) {
	s := schema(t)
	never, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeAdventurous, Params: map[string]float64{"chance": 0}}, s, nil)
	gt.NoError(t, err)
	always, err := strategy.NewLiking(strategy.Spec{Name: strategy.LikeAdventurous, Params: map[string]float64{"chance": 1}}, s, nil)
	gt.NoError(t, err)

	self := newAgent(1, 3, 3)
	for i := 0; i < 20; i++ {
		gt.False(t, decide(t, never, s, self, 5))
		gt.True(t, decide(t, always, s, self, 1))
	}
}

func TestMisrepresentationIsPure(t *testing.T) {
	s := schema(t)
	rng := rand.New(rand.NewPCG(3, 3))

	inflate, err := strategy.NewMisrepresentation(strategy.Spec{Name: strategy.MisrepInflate,
		Params: map[string]float64{"amount": 0.75}}, s, rng)
	gt.NoError(t, err)
	gt.Equal(t, inflate.Misrepresent(agents.Traits{2}), agents.Traits{2.75})
	gt.Equal(t, inflate.Misrepresent(agents.Traits{2}), agents.Traits{2.75})

	honest, err := strategy.NewMisrepresentation(strategy.Spec{}, s, rng)
	gt.NoError(t, err)
	gt.Equal(t, honest.Name(), strategy.MisrepHonest)
	gt.Equal(t, honest.Misrepresent(agents.Traits{2}), agents.Traits{2})

	sel, err := strategy.NewMisrepresentation(strategy.Spec{Name: strategy.MisrepSelective,
		Dimensions: map[string]float64{"attractiveness": -0.5}}, s, rng)
	gt.NoError(t, err)
	gt.Equal(t, sel.Misrepresent(agents.Traits{2}), agents.Traits{1.5})

	drawn, err := strategy.NewMisrepresentation(strategy.Spec{Name: strategy.MisrepInflate,
		Params: map[string]float64{"amount": 0.5, "sigma": 1}}, s, rng)
	gt.NoError(t, err)
	first := drawn.Misrepresent(agents.Traits{2})
	gt.True(t, first[0] >= 2)
	gt.Equal(t, drawn.Misrepresent(agents.Traits{2}), first)
}

func spawnWith(t *testing.T, asg strategy.Assignment) []*agents.Agent {
	t.Helper()
	cfg := agents.DefaultSpawnConfig()
	s, err := agents.NewSchema(cfg)
	gt.NoError(t, err)
	as, err := strategy.NewAssigner(asg, s)
	gt.NoError(t, err)
	sp, err := agents.NewSpawner(cfg, s, entropy.New(8))
	gt.NoError(t, err)
	pop, err := sp.SpawnPopulation(as)
	gt.NoError(t, err)
	return pop
}

func TestFixedAssignmentIsProportional(t *testing.T) {
	asg := strategy.DefaultAssignment()
	asg.Mode = strategy.ModeFixed
	pop := spawnWith(t, asg)

	counts := map[agents.Group]map[string]int{0: {}, 1: {}}
	for _, a := range pop {
		counts[a.Group][a.StrategyLabel()]++
	}
	gt.Equal(t, counts[0]["threshold/honest"], 65)
	gt.Equal(t, counts[0]["threshold/inflate"], 7)
	gt.Equal(t, counts[1]["threshold/honest"], 25)
	gt.Equal(t, counts[1]["threshold/inflate"], 3)
}

func TestOverridesAndGroupMixes(t *testing.T) {
	asg := strategy.DefaultAssignment()
	asg.Groups = map[string][]strategy.Entry{
		"female": {{Liking: strategy.Spec{Name: strategy.LikePicky}, Weight: 1}},
	}
	asg.Overrides = map[uint64]strategy.Entry{
		1: {Liking: strategy.Spec{Name: strategy.LikeAdventurous}, Misrepresentation: strategy.Spec{Name: strategy.MisrepInflate}},
	}
	pop := spawnWith(t, asg)

	gt.Equal(t, pop[0].StrategyLabel(), "adventurous/inflate")
	for _, a := range pop {
		if a.Group == 1 {
			gt.Equal(t, a.StrategyLabel(), "picky/honest")
		}
	}
}

func TestAssignerRejectsBadMixes(t *testing.T) {
	s := schema(t)
	testCases := []struct {
		name string
		asg  strategy.Assignment
		kind error
	}{
		{"unknown mode", strategy.Assignment{Mode: "round_robin", Mix: strategy.DefaultAssignment().Mix}, simerr.ErrConfiguration},
		{"empty mix", strategy.Assignment{}, simerr.ErrConfiguration},
		{"zero weights", strategy.Assignment{Mix: []strategy.Entry{{Liking: strategy.Spec{Name: strategy.LikeThreshold}}}}, simerr.ErrConfiguration},
		{"unknown group", strategy.Assignment{Mix: strategy.DefaultAssignment().Mix, Groups: map[string][]strategy.Entry{"robots": nil}}, simerr.ErrConfiguration},
		{"unknown liking", strategy.Assignment{Mix: []strategy.Entry{{Liking: strategy.Spec{Name: "lazy"}, Weight: 1}}}, simerr.ErrStrategy},
		{"override out of range", strategy.Assignment{Mix: strategy.DefaultAssignment().Mix,
			Overrides: map[uint64]strategy.Entry{1000: {Liking: strategy.Spec{Name: strategy.LikeThreshold}}}}, simerr.ErrConfiguration},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := strategy.NewAssigner(tc.asg, s)
			gt.Error(t, err)
			gt.True(t, errors.Is(err, tc.kind))
		})
	}
}
