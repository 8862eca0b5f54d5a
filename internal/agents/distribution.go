package agents

import (
	"math"
	"math/rand/v2"

	"github.com/m-mizutani/goerr/v2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/talgya/matchsim/internal/simerr"
)

// Distribution kinds accepted in configuration.
const (
	DistNormal      = "normal"
	DistTruncNormal = "truncnormal"
	DistBeta        = "beta"
	DistUniform     = "uniform"
	DistConstant    = "constant"
)

// Distribution describes how one value is drawn. Only the fields of the chosen
// kind are read; beta draws are scaled into the bounds passed to Sample. A
// uniform bound left unset falls back to the bound passed to Sample.
type Distribution struct {
	Kind  string  `yaml:"kind" json:"kind"`
	Mu    float64 `yaml:"mu,omitempty" json:"mu,omitempty"`
	Sigma float64 `yaml:"sigma,omitempty" json:"sigma,omitempty"`
	Alpha float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Beta  float64 `yaml:"beta,omitempty" json:"beta,omitempty"`
	Low   *float64 `yaml:"low,omitempty" json:"low,omitempty"`
	High  *float64 `yaml:"high,omitempty" json:"high,omitempty"`
	Value float64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// Validate rejects parameters no draw could succeed with.
func (d Distribution) Validate() error {
	if !finite(d.Mu, d.Sigma, d.Alpha, d.Beta, d.Value) || !finiteBound(d.Low) || !finiteBound(d.High) {
		return simerr.Config("distribution parameters must be finite", goerr.V("kind", d.Kind))
	}
	switch d.Kind {
	case DistNormal, DistTruncNormal:
		if d.Sigma < 0 {
			return simerr.Config("distribution sigma must not be negative",
				goerr.V("kind", d.Kind), goerr.V("sigma", d.Sigma))
		}
	case DistBeta:
		if d.Alpha <= 0 || d.Beta <= 0 {
			return simerr.Config("beta distribution needs positive alpha and beta",
				goerr.V("alpha", d.Alpha), goerr.V("beta", d.Beta))
		}
	case DistUniform:
		if d.Low != nil && d.High != nil && *d.Low > *d.High {
			return simerr.Config("uniform distribution has low above high",
				goerr.V("low", *d.Low), goerr.V("high", *d.High))
		}
	case DistConstant:
	default:
		return simerr.Config("unknown distribution kind", goerr.V("kind", d.Kind))
	}
	return nil
}

// Sample draws one value within [lo, hi]. Truncated normal draws are conditioned
// on the bounds; every other kind is clamped to them.
func (d Distribution) Sample(rng *rand.Rand, lo, hi float64) (float64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	var v float64
	switch d.Kind {
	case DistNormal:
		v = distuv.Normal{Mu: d.Mu, Sigma: d.Sigma, Src: rng}.Rand()
	case DistTruncNormal:
		v = truncNormal(rng, d.Mu, d.Sigma, lo, hi)
	case DistBeta:
		v = lo + (hi-lo)*distuv.Beta{Alpha: d.Alpha, Beta: d.Beta, Src: rng}.Rand()
	case DistUniform:
		low, high := lo, hi
		if d.Low != nil {
			low = *d.Low
		}
		if d.High != nil {
			high = *d.High
		}
		if low > high {
			return 0, simerr.Config("uniform distribution has low above high",
				goerr.V("low", low), goerr.V("high", high))
		}
		if low == high {
			v = low
		} else {
			v = distuv.Uniform{Min: low, Max: high, Src: rng}.Rand()
		}
	case DistConstant:
		v = d.Value
	}

	if !finite(v) {
		return 0, simerr.Numeric("distribution produced a non-finite value",
			goerr.V("kind", d.Kind), goerr.V("value", v))
	}
	return clamp(v, lo, hi), nil
}

// truncNormal draws by inverting the normal CDF over [Phi(lo), Phi(hi)].
func truncNormal(rng *rand.Rand, mu, sigma, lo, hi float64) float64 {
	if sigma == 0 {
		return clamp(mu, lo, hi)
	}
	n := distuv.Normal{Mu: mu, Sigma: sigma}
	a, b := n.CDF(lo), n.CDF(hi)
	if b-a < 1e-12 {
		// All mass sits outside the bounds; fall back to the nearer edge.
		if mu < lo {
			return lo
		}
		return hi
	}
	return clamp(n.Quantile(a+rng.Float64()*(b-a)), lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finiteBound(b *float64) bool {
	return b == nil || finite(*b)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
