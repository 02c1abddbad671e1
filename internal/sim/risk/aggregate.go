// Package risk reduces empirical return distributions into the published
// decision metrics: EV, VaR95, CVaR95, economic capital, RAROC, utility
// based certainty equivalents and total cost of risk.
package risk

import (
	"math"
)

// CapitalPolicy configures how economic capital is derived from tail risk.
// EconomicCapital must stay strictly positive so RAROC never divides by
// zero; degenerate (zero-variance) distributions get the floor instead.
type CapitalPolicy struct {
	// Multiplier scales CVaR95 into capital. Default 1.0.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	// MinCapital is the floor substituted when tail risk is zero. Default 1.0.
	MinCapital float64 `json:"minCapital" yaml:"min_capital"`
}

// DefaultCapitalPolicy returns the standard capital derivation.
func DefaultCapitalPolicy() CapitalPolicy {
	return CapitalPolicy{Multiplier: 1.0, MinCapital: 1.0}
}

// TCORParams are the linear add-ons for total cost of risk.
type TCORParams struct {
	InsuranceRate    float64 `json:"insuranceRate" yaml:"insurance_rate"`
	ContingencyOnCap float64 `json:"contingencyOnCap" yaml:"contingency_on_cap"`
}

// Metrics is the reduction of one option's return distribution.
type Metrics struct {
	EV              float64
	VaR95           float64
	CVaR95          float64
	EconomicCapital float64
	RAROC           float64
}

// Aggregate reduces a return distribution. VaR95 and CVaR95 are reported as
// non-negative loss magnitudes with CVaR95 >= VaR95 by construction.
func Aggregate(returns []float64, policy CapitalPolicy) Metrics {
	var m Metrics
	if len(returns) == 0 {
		m.EconomicCapital = capitalFloor(policy, 0)
		return m
	}

	sum := 0.0
	for _, v := range returns {
		sum += v
	}
	m.EV = sum / float64(len(returns))

	sorted := sortedCopy(returns)
	cutoff := percentileSorted(sorted, 5)
	m.VaR95 = math.Max(0, -cutoff)

	// Expected shortfall: mean of returns at or below the cutoff.
	tailSum, tailN := 0.0, 0
	for _, v := range sorted {
		if v > cutoff {
			break
		}
		tailSum += v
		tailN++
	}
	if tailN > 0 {
		m.CVaR95 = math.Max(0, -tailSum/float64(tailN))
	}
	if m.CVaR95 < m.VaR95 {
		m.CVaR95 = m.VaR95
	}

	mult := policy.Multiplier
	if mult <= 0 {
		mult = 1
	}
	m.EconomicCapital = m.CVaR95 * mult
	if m.EconomicCapital <= 0 {
		m.EconomicCapital = capitalFloor(policy, m.EV)
	}
	m.RAROC = m.EV / m.EconomicCapital
	return m
}

// capitalFloor keeps RAROC finite when the distribution carries no tail
// risk at all. The floor scales with |EV| so huge riskless outcomes do not
// produce absurd RAROC magnitudes.
func capitalFloor(policy CapitalPolicy, ev float64) float64 {
	floor := policy.MinCapital
	if floor <= 0 {
		floor = 1.0
	}
	return math.Max(floor, 1e-6*math.Abs(ev))
}

// TCOR computes the total cost of risk proxy for an option.
func TCOR(cost, economicCapital float64, p TCORParams) float64 {
	return cost*p.InsuranceRate + economicCapital*p.ContingencyOnCap
}
