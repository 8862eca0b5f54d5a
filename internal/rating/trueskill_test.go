package rating_test

import (
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/talgya/matchsim/internal/rating"
	"github.com/talgya/matchsim/internal/simerr"
)

func newModel(t *testing.T, mod func(*rating.Params)) *rating.Model {
	t.Helper()
	p := rating.DefaultParams()
	if mod != nil {
		mod(&p)
	}
	m, err := rating.NewModel(p)
	gt.NoError(t, err)
	return m
}

func TestWinnerMovesUpLoserDown(t *testing.T) {
	m := newModel(t, nil)
	a, b := m.Initial(), m.Initial()

	na, nb, err := m.Rate(a, b, rating.OutcomeFirstLiked)
	gt.NoError(t, err)
	gt.True(t, na.Mu > a.Mu)
	gt.True(t, nb.Mu < b.Mu)
	gt.True(t, na.Sigma < a.Sigma)
	gt.True(t, nb.Sigma < b.Sigma)

	// Known TrueSkill value for two fresh players: 29.396 / 20.604.
	gt.True(t, math.Abs(na.Mu-29.396) < 0.01)
	gt.True(t, math.Abs(nb.Mu-20.604) < 0.01)
}

func TestSecondLikedMirrorsFirstLiked(t *testing.T) {
	m := newModel(t, nil)
	a := rating.Rating{Mu: 30, Sigma: 5}
	b := rating.Rating{Mu: 20, Sigma: 6}

	na1, nb1, err := m.Rate(a, b, rating.OutcomeFirstLiked)
	gt.NoError(t, err)
	nb2, na2, err := m.Rate(b, a, rating.OutcomeSecondLiked)
	gt.NoError(t, err)

	gt.Equal(t, na1, na2)
	gt.Equal(t, nb1, nb2)
}

func TestSurprisingOutcomeMovesMore(t *testing.T) {
	m := newModel(t, nil)
	high := rating.Rating{Mu: 32, Sigma: 4}
	low := rating.Rating{Mu: 18, Sigma: 4}

	// Expected: the high-rated agent is the one liked.
	eh, _, err := m.Rate(high, low, rating.OutcomeFirstLiked)
	gt.NoError(t, err)
	// Surprising: the low-rated agent is the one liked.
	sl, _, err := m.Rate(low, high, rating.OutcomeFirstLiked)
	gt.NoError(t, err)

	expectedShift := eh.Mu - high.Mu
	surprisingShift := sl.Mu - low.Mu
	gt.True(t, surprisingShift > expectedShift)
}

func TestDrawPullsTogether(t *testing.T) {
	m := newModel(t, nil)
	high := rating.Rating{Mu: 30, Sigma: 5}
	low := rating.Rating{Mu: 20, Sigma: 5}

	nh, nl, err := m.Rate(high, low, rating.OutcomeMutualLike)
	gt.NoError(t, err)
	gt.True(t, nh.Mu < high.Mu)
	gt.True(t, nl.Mu > low.Mu)
	gt.True(t, nh.Sigma <= high.Sigma)
	gt.True(t, nl.Sigma <= low.Sigma)
}

func TestFloorsHold(t *testing.T) {
	m := newModel(t, func(p *rating.Params) {
		p.MuFloor = 24
		p.SigmaFloor = 8
	})

	a, b := m.Initial(), m.Initial()
	var err error
	for i := 0; i < 50; i++ {
		a, b, err = m.Rate(a, b, rating.OutcomeFirstLiked)
		gt.NoError(t, err)
		gt.True(t, b.Mu >= 24)
		gt.True(t, a.Sigma >= 8)
		gt.True(t, b.Sigma >= 8)
	}
	gt.Equal(t, b.Mu, 24.0)
	gt.Equal(t, a.Sigma, 8.0)
}

func TestSigmaNeverGrows(t *testing.T) {
	m := newModel(t, func(p *rating.Params) {
		p.Tau = 2
		p.SigmaFloor = 0.01
	})
	a := rating.Rating{Mu: 25, Sigma: 0.5}
	b := rating.Rating{Mu: 25, Sigma: 0.5}

	na, nb, err := m.Rate(a, b, rating.OutcomeMutualLike)
	gt.NoError(t, err)
	gt.True(t, na.Sigma <= a.Sigma)
	gt.True(t, nb.Sigma <= b.Sigma)
}

func TestIgnoredOutcomes(t *testing.T) {
	m := newModel(t, func(p *rating.Params) {
		p.RatePasses = false
		p.RateMutualPass = false
	})
	a, b := m.Initial(), m.Initial()

	for _, o := range []rating.Outcome{rating.OutcomeNone, rating.OutcomeMutualPass, rating.OutcomeFirstPassed, rating.OutcomeSecondPassed} {
		na, nb, err := m.Rate(a, b, o)
		gt.NoError(t, err)
		gt.Equal(t, na, a)
		gt.Equal(t, nb, b)
	}
}

func TestLikesAsDraws(t *testing.T) {
	m := newModel(t, func(p *rating.Params) { p.LikesAsDraws = true })
	high := rating.Rating{Mu: 30, Sigma: 5}
	low := rating.Rating{Mu: 20, Sigma: 5}

	drawH, drawL, err := m.Rate(high, low, rating.OutcomeMutualLike)
	gt.NoError(t, err)
	for _, o := range []rating.Outcome{rating.OutcomeFirstLiked, rating.OutcomeSecondLiked} {
		nh, nl, err := m.Rate(high, low, o)
		gt.NoError(t, err)
		gt.Equal(t, nh, drawH)
		gt.Equal(t, nl, drawL)
	}
}

func TestPassGatesByRating(t *testing.T) {
	low := rating.Rating{Mu: 20, Sigma: 5}
	high := rating.Rating{Mu: 30, Sigma: 5}
	even := rating.Rating{Mu: 20, Sigma: 5}

	testCases := []struct {
		name          string
		fromLower     bool
		fromHigher    bool
		passer        rating.Rating
		passed        rating.Rating
		expectUpdated bool
	}{
		{"lower passer, lower enabled", true, false, low, high, true},
		{"lower passer, lower disabled", false, true, low, high, false},
		{"higher passer, higher enabled", false, true, high, low, true},
		{"higher passer, higher disabled", true, false, high, low, false},
		{"equal means always rate", false, false, low, even, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newModel(t, func(p *rating.Params) {
				p.RatePassFromLower = tc.fromLower
				p.RatePassFromHigher = tc.fromHigher
			})

			// The passer sits on either side of the pair.
			na, nb, err := m.Rate(tc.passer, tc.passed, rating.OutcomeFirstPassed)
			gt.NoError(t, err)
			gt.Equal(t, na != tc.passer, tc.expectUpdated)
			gt.Equal(t, nb != tc.passed, tc.expectUpdated)

			nb, na, err = m.Rate(tc.passed, tc.passer, rating.OutcomeSecondPassed)
			gt.NoError(t, err)
			gt.Equal(t, na != tc.passer, tc.expectUpdated)
			gt.Equal(t, nb != tc.passed, tc.expectUpdated)
			if tc.expectUpdated {
				gt.True(t, na.Mu > tc.passer.Mu)
			}
		})
	}
}

func TestNonFiniteInputFails(t *testing.T) {
	m := newModel(t, nil)
	_, _, err := m.Rate(rating.Rating{Mu: math.NaN(), Sigma: 1}, m.Initial(), rating.OutcomeFirstLiked)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, simerr.ErrNumeric))
}

func TestParamsValidate(t *testing.T) {
	testCases := []struct {
		name string
		mod  func(*rating.Params)
	}{
		{"negative sigma", func(p *rating.Params) { p.Sigma = -1 }},
		{"zero beta", func(p *rating.Params) { p.Beta = 0 }},
		{"negative tau", func(p *rating.Params) { p.Tau = -0.1 }},
		{"draw probability one", func(p *rating.Params) { p.DrawProbability = 1 }},
		{"sigma floor above sigma", func(p *rating.Params) { p.SigmaFloor = p.Sigma + 1 }},
		{"nan mu", func(p *rating.Params) { p.Mu = math.NaN() }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := rating.DefaultParams()
			tc.mod(&p)
			_, err := rating.NewModel(p)
			gt.Error(t, err)
			gt.True(t, errors.Is(err, simerr.ErrConfiguration))
		})
	}
}

func TestTableUpdateAndSnapshot(t *testing.T) {
	m := newModel(t, nil)
	tbl := rating.NewTable[uint64](m)
	tbl.Register(1)
	tbl.Register(2)

	snap := tbl.Snapshot()
	_, _, err := tbl.Update(1, 2, rating.OutcomeSecondLiked)
	gt.NoError(t, err)

	gt.Equal(t, snap.Get(1), m.Initial())
	gt.True(t, tbl.Get(2).Mu > m.Initial().Mu)
	gt.True(t, tbl.Get(1).Mu < m.Initial().Mu)
	gt.Equal(t, tbl.Updates(), 1)
	gt.Equal(t, snap.Len(), 2)
}
