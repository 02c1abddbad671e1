package sampler

import (
	"fmt"
	"math"
)

// Supported distribution families for scenario variables.
const (
	DistNormal     = "normal"
	DistLognormal  = "lognormal"
	DistTriangular = "triangular"
	DistUniform    = "uniform"
)

// Marginal is a one-dimensional distribution sampled through its inverse CDF.
type Marginal interface {
	// Quantile maps u in (0,1) to an outcome value.
	Quantile(u float64) float64
}

type normalDist struct {
	mean, sd float64
}

func (d normalDist) Quantile(u float64) float64 {
	return d.mean + d.sd*normQuantile(u)
}

type lognormalDist struct {
	mu, sigma float64 // parameters of the underlying normal
}

func (d lognormalDist) Quantile(u float64) float64 {
	return math.Exp(d.mu + d.sigma*normQuantile(u))
}

type triangularDist struct {
	min, mode, max float64
}

func (d triangularDist) Quantile(u float64) float64 {
	span := d.max - d.min
	if span <= 0 {
		return d.min
	}
	fc := (d.mode - d.min) / span
	if u < fc {
		return d.min + math.Sqrt(u*span*(d.mode-d.min))
	}
	return d.max - math.Sqrt((1-u)*span*(d.max-d.mode))
}

type uniformDist struct {
	min, max float64
}

func (d uniformDist) Quantile(u float64) float64 {
	return d.min + u*(d.max-d.min)
}

// NewMarginal builds a validated marginal distribution from a family name
// and its parameter map. Unknown families and inconsistent parameters are
// rejected here so that sampling itself never fails.
func NewMarginal(family string, params map[string]float64) (Marginal, error) {
	get := func(key string, fallback float64) float64 {
		if v, ok := params[key]; ok {
			return v
		}
		return fallback
	}

	switch family {
	case DistNormal, "":
		sd := get("sd", get("stdDev", 0))
		if sd < 0 {
			return nil, fmt.Errorf("normal: sd must be >= 0, got %g", sd)
		}
		return normalDist{mean: get("mean", 0), sd: sd}, nil

	case DistLognormal:
		sigma := get("sigma", get("sd", 0))
		if sigma < 0 {
			return nil, fmt.Errorf("lognormal: sigma must be >= 0, got %g", sigma)
		}
		return lognormalDist{mu: get("mu", get("mean", 0)), sigma: sigma}, nil

	case DistTriangular:
		min := get("min", 0)
		max := get("max", 0)
		mode := get("mode", (min+max)/2)
		if max < min {
			return nil, fmt.Errorf("triangular: max %g < min %g", max, min)
		}
		if mode < min || mode > max {
			return nil, fmt.Errorf("triangular: mode %g outside [%g, %g]", mode, min, max)
		}
		return triangularDist{min: min, mode: mode, max: max}, nil

	case DistUniform:
		min := get("min", 0)
		max := get("max", 0)
		if max < min {
			return nil, fmt.Errorf("uniform: max %g < min %g", max, min)
		}
		return uniformDist{min: min, max: max}, nil

	default:
		return nil, fmt.Errorf("unknown distribution family %q", family)
	}
}

// stdNormCDF is the standard normal CDF.
func stdNormCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// normQuantile is the inverse standard normal CDF (Acklam's rational
// approximation, relative error < 1.15e-9). Inputs are clamped away from
// {0,1} so correlated tails never produce infinities.
func normQuantile(p float64) float64 {
	const eps = 1e-12
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
