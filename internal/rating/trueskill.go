// Package rating maintains the latent desirability of every agent as a TrueSkill-style
// Gaussian belief and updates it from pairwise like/pass outcomes.
package rating

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/talgya/matchsim/internal/calib"
	"github.com/talgya/matchsim/internal/simerr"
)

// Rating is a Gaussian belief over an agent's desirability.
type Rating struct {
	Mu    float64 `json:"mu" db:"mu"`
	Sigma float64 `json:"sigma" db:"sigma"`
}

// Conservative returns mu - 3 sigma, the usual leaderboard estimate.
func (r Rating) Conservative() float64 {
	return r.Mu - 3*r.Sigma
}

// Outcome is the result of one shown pair, seen from the first agent of the pair.
type Outcome uint8

const (
	// OutcomeNone means neither side saw the other; no update happens.
	OutcomeNone Outcome = iota
	// OutcomeMutualLike: both liked. Rated as a draw.
	OutcomeMutualLike
	// OutcomeFirstLiked: only the first agent was liked. The first agent wins.
	OutcomeFirstLiked
	// OutcomeSecondLiked: only the second agent was liked. The second agent wins.
	OutcomeSecondLiked
	// OutcomeMutualPass: both saw and passed. Rated as a draw when enabled.
	OutcomeMutualPass
	// OutcomeFirstPassed: only the first agent saw the other and passed. The passer wins when enabled.
	OutcomeFirstPassed
	// OutcomeSecondPassed: only the second agent saw the other and passed.
	OutcomeSecondPassed
)

var outcomeNames = map[Outcome]string{
	OutcomeNone:         "none",
	OutcomeMutualLike:   "mutual_like",
	OutcomeFirstLiked:   "first_liked",
	OutcomeSecondLiked:  "second_liked",
	OutcomeMutualPass:   "mutual_pass",
	OutcomeFirstPassed:  "first_passed",
	OutcomeSecondPassed: "second_passed",
}

func (o Outcome) String() string {
	if n, ok := outcomeNames[o]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	for k, n := range outcomeNames {
		if n == string(b) {
			*o = k
			return nil
		}
	}
	return simerr.Config("unknown outcome", goerr.V("outcome", string(b)))
}

// Params holds the tunables of the update rule.
type Params struct {
	Mu              float64 `yaml:"mu"`
	Sigma           float64 `yaml:"sigma"`
	Beta            float64 `yaml:"beta"`
	Tau             float64 `yaml:"tau"`
	DrawProbability float64 `yaml:"draw_probability"`
	MuFloor         float64 `yaml:"mu_floor"`
	SigmaFloor      float64 `yaml:"sigma_floor"`

	// RateMutualPass rates a mutual pass as a draw.
	RateMutualPass bool `yaml:"rate_mutual_pass"`
	// RatePasses rates a one-directional pass as a win for the passer.
	RatePasses bool `yaml:"rate_passes"`
	// RatePassFromLower and RatePassFromHigher gate pass updates by whether the
	// passer's mean is below or above the passed agent's. Equal means always rate.
	RatePassFromLower  bool `yaml:"rate_pass_from_lower"`
	RatePassFromHigher bool `yaml:"rate_pass_from_higher"`

	// LikesAsDraws rates a one-sided like as a draw instead of a win for the liked agent.
	LikesAsDraws bool `yaml:"likes_as_draws"`
}

// DefaultParams returns the conventional TrueSkill environment.
func DefaultParams() Params {
	return Params{
		Mu:              calib.RatingMu,
		Sigma:           calib.RatingSigma,
		Beta:            calib.RatingBeta,
		Tau:             calib.RatingTau,
		DrawProbability: calib.DrawProbability,
		MuFloor:         calib.RatingMuFloor,
		SigmaFloor:      calib.RatingSigmaFloor,
		RateMutualPass:  true,
		RatePasses:      true,

		RatePassFromLower:  true,
		RatePassFromHigher: true,
	}
}

// Validate checks that the parameters describe a usable environment.
func (p Params) Validate() error {
	switch {
	case !finite(p.Mu, p.Sigma, p.Beta, p.Tau, p.DrawProbability, p.MuFloor, p.SigmaFloor):
		return simerr.Config("rating parameters must be finite")
	case p.Sigma <= 0:
		return simerr.Config("rating sigma must be positive", goerr.V("sigma", p.Sigma))
	case p.Beta <= 0:
		return simerr.Config("rating beta must be positive", goerr.V("beta", p.Beta))
	case p.Tau < 0:
		return simerr.Config("rating tau must not be negative", goerr.V("tau", p.Tau))
	case p.DrawProbability <= 0 || p.DrawProbability >= 1:
		return simerr.Config("draw probability must be in (0, 1)", goerr.V("draw_probability", p.DrawProbability))
	case p.SigmaFloor <= 0 || p.SigmaFloor > p.Sigma:
		return simerr.Config("sigma floor must be in (0, sigma]", goerr.V("sigma_floor", p.SigmaFloor))
	case p.MuFloor > p.Mu:
		return simerr.Config("mu floor must not exceed the prior mean", goerr.V("mu_floor", p.MuFloor))
	}
	return nil
}

// Model applies the update rule.
type Model struct {
	p      Params
	margin float64
}

// NewModel validates params and precomputes the draw margin.
func NewModel(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	margin := distuv.UnitNormal.Quantile((p.DrawProbability+1)/2) * math.Sqrt2 * p.Beta
	return &Model{p: p, margin: margin}, nil
}

// Params returns the parameters the model was built with.
func (m *Model) Params() Params {
	return m.p
}

// Initial returns the prior every agent starts from.
func (m *Model) Initial() Rating {
	return Rating{Mu: m.p.Mu, Sigma: m.p.Sigma}
}

// Rate returns the posterior ratings of a and b after outcome.
// Outcomes the params say to ignore return the inputs unchanged.
func (m *Model) Rate(a, b Rating, outcome Outcome) (Rating, Rating, error) {
	var na, nb Rating
	switch outcome {
	case OutcomeMutualLike:
		na, nb = m.draw(a, b)
	case OutcomeMutualPass:
		if !m.p.RateMutualPass {
			return a, b, nil
		}
		na, nb = m.draw(a, b)
	case OutcomeFirstLiked:
		if m.p.LikesAsDraws {
			na, nb = m.draw(a, b)
		} else {
			na, nb = m.win(a, b)
		}
	case OutcomeSecondLiked:
		if m.p.LikesAsDraws {
			na, nb = m.draw(a, b)
		} else {
			nb, na = m.win(b, a)
		}
	case OutcomeFirstPassed:
		if !m.ratesPass(a, b) {
			return a, b, nil
		}
		na, nb = m.win(a, b)
	case OutcomeSecondPassed:
		if !m.ratesPass(b, a) {
			return a, b, nil
		}
		nb, na = m.win(b, a)
	default:
		return a, b, nil
	}

	if !finite(na.Mu, na.Sigma, nb.Mu, nb.Sigma) {
		return a, b, simerr.Numeric("rating update produced a non-finite value",
			goerr.V("outcome", outcome.String()), goerr.V("a", a), goerr.V("b", b))
	}
	return m.floor(na, a), m.floor(nb, b), nil
}

// ratesPass reports whether passer passing on passed moves the ratings.
func (m *Model) ratesPass(passer, passed Rating) bool {
	switch {
	case !m.p.RatePasses:
		return false
	case passer.Mu < passed.Mu:
		return m.p.RatePassFromLower
	case passer.Mu > passed.Mu:
		return m.p.RatePassFromHigher
	}
	return true
}

func (m *Model) win(w, l Rating) (Rating, Rating) {
	w2 := w.Sigma*w.Sigma + m.p.Tau*m.p.Tau
	l2 := l.Sigma*l.Sigma + m.p.Tau*m.p.Tau
	c := math.Sqrt(2*m.p.Beta*m.p.Beta + w2 + l2)
	t := (w.Mu - l.Mu) / c
	e := m.margin / c

	v := vWin(t, e)
	wf := v * (v + t - e)

	return Rating{Mu: w.Mu + w2/c*v, Sigma: math.Sqrt(w2 * math.Max(1-w2/(c*c)*wf, 0))},
		Rating{Mu: l.Mu - l2/c*v, Sigma: math.Sqrt(l2 * math.Max(1-l2/(c*c)*wf, 0))}
}

func (m *Model) draw(a, b Rating) (Rating, Rating) {
	a2 := a.Sigma*a.Sigma + m.p.Tau*m.p.Tau
	b2 := b.Sigma*b.Sigma + m.p.Tau*m.p.Tau
	c := math.Sqrt(2*m.p.Beta*m.p.Beta + a2 + b2)
	t := (a.Mu - b.Mu) / c
	e := m.margin / c

	v := vDraw(t, e)
	wf := wDraw(t, e, v)

	return Rating{Mu: a.Mu + a2/c*v, Sigma: math.Sqrt(a2 * math.Max(1-a2/(c*c)*wf, 0))},
		Rating{Mu: b.Mu - b2/c*v, Sigma: math.Sqrt(b2 * math.Max(1-b2/(c*c)*wf, 0))}
}

// floor clamps to the configured floors. Sigma never grows through an update:
// tau can push it above the prior value when it is already tiny.
func (m *Model) floor(r, prev Rating) Rating {
	if r.Sigma > prev.Sigma {
		r.Sigma = prev.Sigma
	}
	if r.Sigma < m.p.SigmaFloor {
		r.Sigma = m.p.SigmaFloor
	}
	if r.Mu < m.p.MuFloor {
		r.Mu = m.p.MuFloor
	}
	return r
}

// vWin is phi(x)/Phi(x) for x = t - e, with the asymptote -x where Phi underflows.
func vWin(t, e float64) float64 {
	x := t - e
	denom := distuv.UnitNormal.CDF(x)
	if denom < 2.222758749e-162 {
		return -x
	}
	return distuv.UnitNormal.Prob(x) / denom
}

func vDraw(t, e float64) float64 {
	at := math.Abs(t)
	a, b := e-at, -e-at
	denom := distuv.UnitNormal.CDF(a) - distuv.UnitNormal.CDF(b)
	var v float64
	if denom < 2.222758749e-162 {
		v = a
	} else {
		v = (distuv.UnitNormal.Prob(b) - distuv.UnitNormal.Prob(a)) / denom
	}
	if t < 0 {
		return -v
	}
	return v
}

func wDraw(t, e, v float64) float64 {
	at := math.Abs(t)
	a, b := e-at, -e-at
	denom := distuv.UnitNormal.CDF(a) - distuv.UnitNormal.CDF(b)
	if denom < 2.222758749e-162 {
		return 1
	}
	return v*v + (a*distuv.UnitNormal.Prob(a)-b*distuv.UnitNormal.Prob(b))/denom
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
