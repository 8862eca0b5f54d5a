package engine

import (
	"math"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/matchsim/internal/agents"
	"github.com/talgya/matchsim/internal/config"
	"github.com/talgya/matchsim/internal/simerr"
)

// UtilityModel computes the happiness a match is worth. It only ever reads
// the partner's true traits and attributes.
type UtilityModel struct {
	p      config.Utility
	schema *agents.Schema
}

// NewUtilityModel binds utility parameters to a schema.
func NewUtilityModel(p config.Utility, s *agents.Schema) *UtilityModel {
	return &UtilityModel{p: p, schema: s}
}

// Delta is what self gains from matching partner when self already had prior
// matches. An impostor is worth nothing to a non-impostor.
func (m *UtilityModel) Delta(self, partner *agents.Agent, prior int) (float64, error) {
	if partner.Impostor && !self.Impostor {
		return 0, nil
	}

	truth := partner.TrueTraits()
	attr := m.schema.Attractiveness(truth)
	compat := m.schema.Compatibility(self.Attributes, partner.Attributes, false)

	quality := (math.Pow(attr*compat+m.p.Offset, m.p.Exponent) - 1) * m.p.QualityWeight
	if m.p.PreferenceWeighted {
		quality *= self.Score(m.schema, truth)
	}

	var d float64
	switch m.p.Quantity {
	case config.QuantityAdditive:
		d = quality + m.p.QuantityWeight
	default:
		d = quality * math.Pow(m.p.Decay, float64(prior+1))
	}

	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, simerr.Numeric("utility is not finite",
			goerr.V("agent", self.ID), goerr.V("partner", partner.ID),
			goerr.V("attractiveness", attr), goerr.V("compatibility", compat))
	}
	return d, nil
}

// RejectionCost is the penalty for n likes that were not returned. It is zero
// unless rejection costs are enabled.
func (m *UtilityModel) RejectionCost(n int) float64 {
	if !m.p.RejectionCost {
		return 0
	}
	return float64(n) * m.p.RejectionCostAmount
}
