package guardrail

import "math"

// Severity buckets for a guardrail breach.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityCritical = "critical"
)

// Bucket boundaries as percent deviation past the threshold. Breaches
// under the minor boundary still classify as minor. These are
// product-tuned defaults, not derived values.
const (
	minorBreachPct    = 5.0
	moderateBreachPct = 15.0
	severeBreachPct   = 30.0
)

// Default tightening percent per severity when severity-based adjustment
// is enabled and the tenant has not overridden the map.
var defaultSeverityTightening = map[string]float64{
	SeverityMinor:    5,
	SeverityModerate: 10,
	SeveritySevere:   15,
	SeverityCritical: 20,
}

// thresholdFloor guards the relative-deviation denominator when a
// threshold sits at or near zero.
const thresholdFloor = 1e-9

// breachPercent computes how far past the threshold the actual value
// landed, as a percentage relative to the threshold magnitude.
func breachPercent(actual, threshold float64) float64 {
	denom := math.Abs(threshold)
	if denom < thresholdFloor {
		denom = thresholdFloor
	}
	return math.Abs(actual-threshold) / denom * 100
}

// severityFor maps a breach percentage into a severity bucket. Critical
// is reserved for repeated severe breaches: a severe-band breach
// escalates when the rolling window already holds priorSevere earlier
// severe breaches.
func severityFor(breachPct float64, priorSevere int) string {
	switch {
	case breachPct >= severeBreachPct:
		if priorSevere >= 2 {
			return SeverityCritical
		}
		return SeveritySevere
	case breachPct >= moderateBreachPct:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

// tighteningFor resolves the adjustment percent for a breach severity.
func tighteningFor(severity string, severityBased bool, overrides map[string]float64, flat float64) float64 {
	if !severityBased {
		return flat
	}
	if pct, ok := overrides[severity]; ok && pct > 0 {
		return pct
	}
	if pct, ok := defaultSeverityTightening[severity]; ok {
		return pct
	}
	return flat
}
