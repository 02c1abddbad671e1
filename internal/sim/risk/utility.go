package risk

import (
	"fmt"
	"math"
)

// Utility families. CARA and Exponential share one closed form, as do CRRA
// and Power with different exponents conventions; they are kept as distinct
// modes because tenants select them by name.
const (
	UtilityCARA        = "CARA"
	UtilityCRRA        = "CRRA"
	UtilityExponential = "Exponential"
	UtilityQuadratic   = "Quadratic"
	UtilityPower       = "Power"
)

// UtilityParams selects a utility family with risk aversion a over outcomes
// rescaled by Scale.
type UtilityParams struct {
	Mode string `json:"mode" yaml:"mode"`
	// A is the risk-aversion coefficient. Must be > 0.
	A float64 `json:"a" yaml:"a"`
	// Scale normalizes outcomes before applying utility. Must be > 0.
	Scale float64 `json:"scale" yaml:"scale"`
	// UseForRecommendation switches the selector's ranking basis to
	// certainty equivalent when every option has one.
	UseForRecommendation bool `json:"useForRecommendation" yaml:"use_for_recommendation"`
}

// Validate rejects parameter combinations that have no usable closed form.
func (p UtilityParams) Validate() error {
	switch p.Mode {
	case UtilityCARA, UtilityCRRA, UtilityExponential, UtilityQuadratic, UtilityPower:
	default:
		return fmt.Errorf("unknown utility mode %q", p.Mode)
	}
	if p.A <= 0 {
		return fmt.Errorf("utility risk aversion must be > 0, got %g", p.A)
	}
	if p.Scale <= 0 {
		return fmt.Errorf("utility scale must be > 0, got %g", p.Scale)
	}
	return nil
}

const (
	crraFloor = 1e-9  // CRRA/Power domain guard for non-positive outcomes
	caraCap   = 1e-12 // keeps the CARA inverse log argument positive
)

// Utility evaluates U(x) for the configured family.
func (p UtilityParams) Utility(x float64) float64 {
	w := x / p.Scale
	switch p.Mode {
	case UtilityCARA, UtilityExponential:
		return 1 - math.Exp(-p.A*w)
	case UtilityCRRA:
		if w < crraFloor {
			w = crraFloor
		}
		if p.A == 1 {
			return math.Log(w)
		}
		return (math.Pow(w, 1-p.A) - 1) / (1 - p.A)
	case UtilityPower:
		if w < crraFloor {
			w = crraFloor
		}
		a := p.A
		if a > 1 {
			a = 1 // power exponent capped at linear
		}
		return math.Pow(w, a)
	case UtilityQuadratic:
		bliss := 1 / p.A
		if w > bliss {
			w = bliss
		}
		return w - p.A*w*w/2
	default:
		return w
	}
}

// Inverse recovers the outcome whose utility equals u, in outcome units.
func (p UtilityParams) Inverse(u float64) float64 {
	switch p.Mode {
	case UtilityCARA, UtilityExponential:
		arg := 1 - u
		if arg < caraCap {
			arg = caraCap
		}
		return -math.Log(arg) / p.A * p.Scale
	case UtilityCRRA:
		if p.A == 1 {
			return math.Exp(u) * p.Scale
		}
		base := 1 + (1-p.A)*u
		if base < crraFloor {
			base = crraFloor
		}
		return math.Pow(base, 1/(1-p.A)) * p.Scale
	case UtilityPower:
		a := p.A
		if a > 1 {
			a = 1
		}
		if u < 0 {
			u = 0
		}
		return math.Pow(u, 1/a) * p.Scale
	case UtilityQuadratic:
		disc := 1 - 2*p.A*u
		if disc < 0 {
			disc = 0
		}
		return (1 - math.Sqrt(disc)) / p.A * p.Scale
	default:
		return u * p.Scale
	}
}

// ExpectedUtility averages U over the distribution and inverts the mean to
// the certainty equivalent. The CE of a riskless distribution is the
// outcome itself (within floating point), which tests pin down.
func (p UtilityParams) ExpectedUtility(returns []float64) (eu, ce float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range returns {
		sum += p.Utility(x)
	}
	eu = sum / float64(len(returns))
	ce = p.Inverse(eu)
	return eu, ce
}
