package sampler

import "math"

// PriorOverride replaces one variable's distribution parameters with the
// posterior of a normal-normal conjugate update: a prior belief about the
// variable's mean combined with observed outcome data. Applied before any
// draws so the override is part of the run fingerprint's input surface.
type PriorOverride struct {
	Variable     string    `json:"variable" yaml:"variable"`
	PriorMean    float64   `json:"priorMean" yaml:"prior_mean"`
	PriorSD      float64   `json:"priorSD" yaml:"prior_sd"`
	Observations []float64 `json:"observations" yaml:"observations"`
	// ObservationSD is the assumed sampling noise of each observation.
	ObservationSD float64 `json:"observationSD" yaml:"observation_sd"`
}

// Posterior returns the posterior mean and standard deviation. With no
// observations (or degenerate SDs) the prior is returned unchanged.
func (o PriorOverride) Posterior() (mean, sd float64) {
	n := len(o.Observations)
	if n == 0 || o.PriorSD <= 0 || o.ObservationSD <= 0 {
		return o.PriorMean, o.PriorSD
	}
	sum := 0.0
	for _, x := range o.Observations {
		sum += x
	}
	priorPrec := 1 / (o.PriorSD * o.PriorSD)
	obsPrec := 1 / (o.ObservationSD * o.ObservationSD)
	postPrec := priorPrec + float64(n)*obsPrec
	mean = (o.PriorMean*priorPrec + sum*obsPrec) / postPrec
	sd = math.Sqrt(1 / postPrec)
	return mean, sd
}

// apply rewrites the targeted variable's parameters in a copied slice. An
// override naming no known variable is a no-op: scenario definitions evolve
// ahead of saved overrides and a stale name must not sink the run.
func applyOverride(vars []ScenarioVariable, o *PriorOverride) []ScenarioVariable {
	if o == nil {
		return vars
	}
	out := make([]ScenarioVariable, len(vars))
	copy(out, vars)
	for i := range out {
		if out[i].Name != o.Variable {
			continue
		}
		mean, sd := o.Posterior()
		params := make(map[string]float64, len(out[i].Params)+2)
		for k, v := range out[i].Params {
			params[k] = v
		}
		switch out[i].Dist {
		case DistLognormal:
			params["mu"] = mean
			params["sigma"] = sd
		default:
			params["mean"] = mean
			params["sd"] = sd
		}
		out[i].Params = params
	}
	return out
}
