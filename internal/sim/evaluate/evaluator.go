// Package evaluate converts sampled scenario variable values into per-run
// outcome values for each decision option, producing the empirical return
// distributions the risk aggregator reduces.
package evaluate

import (
	"github.com/retinalabs/retina/internal/sim/sampler"
)

// DecisionOption is a candidate choice under evaluation. Immutable input.
type DecisionOption struct {
	ID             string  `json:"id" yaml:"id"`
	Label          string  `json:"label" yaml:"label"`
	ExpectedReturn float64 `json:"expectedReturn" yaml:"expected_return"`
	Cost           float64 `json:"cost" yaml:"cost"`
	MitigationCost float64 `json:"mitigationCost" yaml:"mitigation_cost"`
	HorizonMonths  int     `json:"horizonMonths,omitempty" yaml:"horizon_months,omitempty"`
}

// Impact modes for scenario variables.
const (
	ImpactAdditive       = "additive"
	ImpactMultiplicative = "multiplicative"
)

// Evaluator maps sample rows to option outcomes. The appliesTo resolution
// is computed once up front; a variable referencing no known option simply
// applies to nothing rather than failing the run.
type Evaluator struct {
	options  []DecisionOption
	vars     []sampler.ScenarioVariable
	applies  [][]bool // applies[j][i]: variable j drives option i
	strategy Strategy
}

// New builds an evaluator for a fixed option and variable set. The strategy
// is optional; nil means option outcomes do not interact.
func New(options []DecisionOption, vars []sampler.ScenarioVariable, strategy Strategy) *Evaluator {
	applies := make([][]bool, len(vars))
	index := make(map[string]int, len(options))
	for i, opt := range options {
		index[opt.ID] = i
	}
	for j, v := range vars {
		row := make([]bool, len(options))
		for _, target := range v.AppliesTo {
			if target == sampler.AppliesAll || target == "*" {
				for i := range row {
					row[i] = true
				}
				break
			}
			if i, ok := index[target]; ok {
				row[i] = true
			}
			// unknown option reference: applies to nothing
		}
		applies[j] = row
	}
	return &Evaluator{options: options, vars: vars, applies: applies, strategy: strategy}
}

// EvaluateRun computes one outcome per option for a single sample row.
func (e *Evaluator) EvaluateRun(row []float64) []float64 {
	outcomes := make([]float64, len(e.options))
	for i, opt := range e.options {
		ret := opt.ExpectedReturn
		for j, v := range e.vars {
			if j >= len(row) || !e.applies[j][i] {
				continue
			}
			w := v.EffectiveWeight()
			switch v.Impact {
			case ImpactMultiplicative:
				ret *= 1 + w*row[j]
			default:
				ret += w * row[j]
			}
		}
		outcomes[i] = ret - opt.Cost - opt.MitigationCost
	}
	if e.strategy != nil {
		outcomes = e.strategy.Resolve(outcomes)
	}
	return outcomes
}

// Distributions accumulates per-option return distributions over a full
// sample set. With zero variables every run collapses to the deterministic
// baseline outcome.
func (e *Evaluator) Distributions(set *sampler.SampleSet) [][]float64 {
	runs := 0
	if set != nil {
		runs = set.Runs
	}
	dists := make([][]float64, len(e.options))
	for i := range dists {
		dists[i] = make([]float64, 0, maxInt(runs, 1))
	}
	if runs == 0 {
		// No sampled variation: a single deterministic outcome per option.
		outcomes := e.EvaluateRun(nil)
		for i, v := range outcomes {
			dists[i] = append(dists[i], v)
		}
		return dists
	}
	for r := 0; r < runs; r++ {
		outcomes := e.EvaluateRun(set.Row(r))
		for i, v := range outcomes {
			dists[i] = append(dists[i], v)
		}
	}
	return dists
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
