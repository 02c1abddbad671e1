// Package sampler draws correlated scenario variable values for Monte-Carlo
// simulation runs. Sampling is fully deterministic: the same seed, run count
// and variable set always reproduce the same matrix, which is what the run
// fingerprint audit mechanism relies on.
package sampler

import (
	"fmt"
)

// AppliesAll is the AppliesTo marker meaning a variable drives every option.
const AppliesAll = "all"

// ScenarioVariable is a named random driver of option outcomes.
type ScenarioVariable struct {
	Name      string             `json:"name" yaml:"name"`
	AppliesTo []string           `json:"appliesTo" yaml:"applies_to"`
	Dist      string             `json:"dist" yaml:"dist"`
	Params    map[string]float64 `json:"params" yaml:"params"`
	Weight    float64            `json:"weight" yaml:"weight"`
	// Impact selects how the sampled value adjusts an option's return:
	// "additive" (default) or "multiplicative".
	Impact string `json:"impact,omitempty" yaml:"impact,omitempty"`
}

// EffectiveWeight returns the variable's relative influence, defaulting to 1.
func (v ScenarioVariable) EffectiveWeight() float64 {
	if v.Weight == 0 {
		return 1
	}
	return v.Weight
}

// SampleSet is the runs x variables matrix produced by Draw, together with
// the copula fit diagnostics.
type SampleSet struct {
	Runs      int
	Variables []ScenarioVariable
	// Values[r][j] is the draw for variable j in run r.
	Values [][]float64

	// AchievedSpearman is the mean realized rank correlation over the
	// pairs that requested a non-zero correlation (0 when independent).
	AchievedSpearman float64
	// CopulaFroErr is the Frobenius norm between the requested and
	// realized Spearman matrices (0 when independent).
	CopulaFroErr float64
}

// Row returns all variable values for a single run.
func (s *SampleSet) Row(run int) []float64 {
	return s.Values[run]
}

// Draw produces the full sample matrix.
//
// Order of operations: Bayesian override, independent normal base draws,
// optional Gaussian-copula correlation (nearest-PSD projected), marginal
// inverse-CDF mapping, then fit diagnostics. Correlation problems degrade
// to best-effort approximations rather than failing the run.
func Draw(seed int64, runs int, vars []ScenarioVariable, dep *DependenceConfig, override *PriorOverride) (*SampleSet, error) {
	if runs < 0 {
		return nil, fmt.Errorf("runs must be >= 0, got %d", runs)
	}
	if runs == 0 || len(vars) == 0 {
		return &SampleSet{Runs: 0, Variables: vars, Values: [][]float64{}}, nil
	}
	if dep != nil {
		if err := dep.Validate(); err != nil {
			return nil, fmt.Errorf("invalid dependence config: %w", err)
		}
	}

	vars = applyOverride(vars, override)

	marginals := make([]Marginal, len(vars))
	for i, v := range vars {
		m, err := NewMarginal(v.Dist, v.Params)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		marginals[i] = m
	}

	// Base draws: run-major, variable-minor, so adding a run never
	// changes earlier runs' values.
	src := NewSource(seed)
	z := make([][]float64, runs)
	for r := 0; r < runs; r++ {
		row := make([]float64, len(vars))
		for j := range vars {
			row[j] = src.Norm()
		}
		z[r] = row
	}

	var targetSpearman [][]float64
	if dep != nil {
		names := make([]string, len(vars))
		for i, v := range vars {
			names[i] = v.Name
		}
		var pearsonTarget [][]float64
		targetSpearman, pearsonTarget = dep.targetMatrix(names)

		psd := nearestPSD(pearsonTarget)
		l, ok := cholesky(psd)
		if !ok {
			l = eigenFactor(psd)
		}
		z = correlate(z, l)
	}

	values := make([][]float64, runs)
	for r := 0; r < runs; r++ {
		row := make([]float64, len(vars))
		for j := range vars {
			row[j] = marginals[j].Quantile(stdNormCDF(z[r][j]))
		}
		values[r] = row
	}

	set := &SampleSet{Runs: runs, Variables: vars, Values: values}
	if targetSpearman != nil {
		realized := spearmanMatrix(values, len(vars))
		set.CopulaFroErr = frobeniusDiff(targetSpearman, realized)
		set.AchievedSpearman = meanAchieved(targetSpearman, realized)
	}
	return set, nil
}

// meanAchieved averages the realized correlation over pairs with a non-zero
// target, preserving sign agreement with the request.
func meanAchieved(target, realized [][]float64) float64 {
	sum, count := 0.0, 0
	for i := range target {
		for j := i + 1; j < len(target[i]); j++ {
			if target[i][j] == 0 {
				continue
			}
			sum += realized[i][j]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
