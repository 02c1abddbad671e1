// Package sim orchestrates a full Monte-Carlo simulation pass: correlated
// scenario sampling, per-run option evaluation, and risk-metric reduction
// into one SimulationResult per option.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/retinalabs/retina/internal/sim/evaluate"
	"github.com/retinalabs/retina/internal/sim/risk"
	"github.com/retinalabs/retina/internal/sim/sampler"
)

// Request carries every input of one simulation invocation.
type Request struct {
	Options   []evaluate.DecisionOption  `json:"options" yaml:"options"`
	Variables []sampler.ScenarioVariable `json:"scenarioVars" yaml:"scenario_vars"`
	Runs      int                        `json:"runs" yaml:"runs"`
	Seed      int64                      `json:"seed" yaml:"seed"`

	Utility    *risk.UtilityParams       `json:"utilityParams,omitempty" yaml:"utility_params,omitempty"`
	TCOR       *risk.TCORParams          `json:"tcorParams,omitempty" yaml:"tcor_params,omitempty"`
	Game       *evaluate.GameConfig      `json:"gameConfig,omitempty" yaml:"game_config,omitempty"`
	Strategies []evaluate.OptionStrategy `json:"optionStrategies,omitempty" yaml:"option_strategies,omitempty"`
	Dependence *sampler.DependenceConfig `json:"dependenceConfig,omitempty" yaml:"dependence_config,omitempty"`
	Override   *sampler.PriorOverride    `json:"bayesianOverride,omitempty" yaml:"bayesian_override,omitempty"`

	// Capital defaults to DefaultCapitalPolicy when zero.
	Capital risk.CapitalPolicy `json:"capitalPolicy,omitempty" yaml:"capital_policy,omitempty"`
}

// Result is the per-option output of one run-set. Recomputed on every
// invocation; callers cache it keyed by the run fingerprint.
type Result struct {
	OptionID        string  `json:"optionId"`
	OptionLabel     string  `json:"optionLabel"`
	EV              float64 `json:"ev"`
	VaR95           float64 `json:"var95"`
	CVaR95          float64 `json:"cvar95"`
	RAROC           float64 `json:"raroc"`
	EconomicCapital float64 `json:"economicCapital"`

	CertaintyEquivalent *float64 `json:"certaintyEquivalent,omitempty"`
	ExpectedUtility     *float64 `json:"expectedUtility,omitempty"`
	TCOR                *float64 `json:"tcor,omitempty"`
	AchievedSpearman    *float64 `json:"achievedSpearman,omitempty"`
}

// Diagnostics reports run-level reproducibility and copula fit data.
type Diagnostics struct {
	Fingerprint      string        `json:"fingerprint"`
	AchievedSpearman float64       `json:"achievedSpearman"`
	CopulaFroErr     float64       `json:"copulaFroErr"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Run executes the simulation. The result slice contains exactly one entry
// per input option, in input order.
func Run(ctx context.Context, req Request) ([]Result, Diagnostics, error) {
	start := time.Now()
	var diag Diagnostics

	if req.Runs < 0 {
		return nil, diag, fmt.Errorf("runs must be >= 0, got %d", req.Runs)
	}
	if req.Utility != nil {
		if err := req.Utility.Validate(); err != nil {
			return nil, diag, fmt.Errorf("invalid utility params: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, diag, err
	}

	strategy, err := evaluate.NewStrategy(req.Game, req.Strategies, req.Options)
	if err != nil {
		return nil, diag, fmt.Errorf("invalid game config: %w", err)
	}

	set, err := sampler.Draw(req.Seed, req.Runs, req.Variables, req.Dependence, req.Override)
	if err != nil {
		return nil, diag, fmt.Errorf("sampling failed: %w", err)
	}

	policy := req.Capital
	if policy.Multiplier == 0 && policy.MinCapital == 0 {
		policy = risk.DefaultCapitalPolicy()
	}

	ev := evaluate.New(req.Options, req.Variables, strategy)
	dists := ev.Distributions(set)

	results := make([]Result, len(req.Options))
	for i, opt := range req.Options {
		m := risk.Aggregate(dists[i], policy)
		r := Result{
			OptionID:        opt.ID,
			OptionLabel:     opt.Label,
			EV:              m.EV,
			VaR95:           m.VaR95,
			CVaR95:          m.CVaR95,
			RAROC:           m.RAROC,
			EconomicCapital: m.EconomicCapital,
		}
		if req.Utility != nil {
			eu, ce := req.Utility.ExpectedUtility(dists[i])
			r.ExpectedUtility = &eu
			r.CertaintyEquivalent = &ce
		}
		if req.TCOR != nil {
			tcor := risk.TCOR(opt.Cost+opt.MitigationCost, m.EconomicCapital, *req.TCOR)
			r.TCOR = &tcor
		}
		if req.Dependence != nil {
			achieved := set.AchievedSpearman
			r.AchievedSpearman = &achieved
		}
		results[i] = r
	}

	diag.Fingerprint = Fingerprint(req)
	diag.AchievedSpearman = set.AchievedSpearman
	diag.CopulaFroErr = set.CopulaFroErr
	diag.Elapsed = time.Since(start)

	log.Debug().
		Str("fingerprint", diag.Fingerprint).
		Int("options", len(req.Options)).
		Int("runs", req.Runs).
		Dur("elapsed", diag.Elapsed).
		Msg("simulation complete")

	return results, diag, nil
}
