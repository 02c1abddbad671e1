package evaluate

import (
	"fmt"
	"math"
)

// Strategy adjusts the per-run outcome vector when option payoffs interact.
// Implementations must be deterministic functions of the input vector.
type Strategy interface {
	Resolve(outcomes []float64) []float64
}

// Game interaction kinds.
const (
	GameZeroSum     = "zero_sum"
	GameCooperative = "cooperative"
)

// GameConfig selects and parameterizes the interaction strategy. The exact
// payoff model is deliberately pluggable; these two cover the shared-market
// and mutual-uplift cases.
type GameConfig struct {
	Kind string `json:"kind" yaml:"kind"`
	// Intensity in [0,1]: how strongly outcomes interact. 0 disables.
	Intensity float64 `json:"intensity" yaml:"intensity"`
}

// OptionStrategy declares one option's stance inside the game; aggressive
// options pull harder on the shared pool.
type OptionStrategy struct {
	OptionID string `json:"optionId" yaml:"option_id"`
	// Aggression in [0,1], default 0.5.
	Aggression float64 `json:"aggression" yaml:"aggression"`
}

// NewStrategy validates the config and returns a resolver, or nil when cfg
// is nil. Unknown kinds fail at construction, not at use.
func NewStrategy(cfg *GameConfig, stances []OptionStrategy, options []DecisionOption) (Strategy, error) {
	if cfg == nil {
		return nil, nil
	}
	if cfg.Intensity < 0 || cfg.Intensity > 1 {
		return nil, fmt.Errorf("game intensity %g outside [0, 1]", cfg.Intensity)
	}
	aggression := make([]float64, len(options))
	for i := range aggression {
		aggression[i] = 0.5
	}
	index := make(map[string]int, len(options))
	for i, opt := range options {
		index[opt.ID] = i
	}
	for _, s := range stances {
		i, ok := index[s.OptionID]
		if !ok {
			continue // stale option reference, ignore
		}
		if s.Aggression < 0 || s.Aggression > 1 {
			return nil, fmt.Errorf("option %s aggression %g outside [0, 1]", s.OptionID, s.Aggression)
		}
		aggression[i] = s.Aggression
	}

	switch cfg.Kind {
	case GameZeroSum:
		return &zeroSumStrategy{intensity: cfg.Intensity, aggression: aggression}, nil
	case GameCooperative:
		return &cooperativeStrategy{intensity: cfg.Intensity}, nil
	default:
		return nil, fmt.Errorf("unknown game kind %q", cfg.Kind)
	}
}

// zeroSumStrategy redistributes a share of the total outcome pool by
// aggression weight: the sum of outcomes is preserved exactly.
type zeroSumStrategy struct {
	intensity  float64
	aggression []float64
}

func (s *zeroSumStrategy) Resolve(outcomes []float64) []float64 {
	n := len(outcomes)
	if n < 2 || s.intensity == 0 {
		return outcomes
	}
	total := 0.0
	weightSum := 0.0
	for i, v := range outcomes {
		total += v
		weightSum += s.aggression[i%len(s.aggression)]
	}
	if weightSum == 0 {
		return outcomes
	}
	out := make([]float64, n)
	for i, v := range outcomes {
		share := total * s.aggression[i%len(s.aggression)] / weightSum
		out[i] = (1-s.intensity)*v + s.intensity*share
	}
	return out
}

// cooperativeStrategy lifts every option toward the best outcome of the
// run, modeling shared gains from a common platform investment.
type cooperativeStrategy struct {
	intensity float64
}

func (s *cooperativeStrategy) Resolve(outcomes []float64) []float64 {
	n := len(outcomes)
	if n < 2 || s.intensity == 0 {
		return outcomes
	}
	best := math.Inf(-1)
	for _, v := range outcomes {
		if v > best {
			best = v
		}
	}
	out := make([]float64, n)
	for i, v := range outcomes {
		out[i] = v + s.intensity*0.5*(best-v)
	}
	return out
}
