package evaluate

import (
	"math"
	"testing"

	"github.com/retinalabs/retina/internal/sim/sampler"
)

func twoOptions() []DecisionOption {
	return []DecisionOption{
		{ID: "A", Label: "Build", ExpectedReturn: 1000, Cost: 200},
		{ID: "B", Label: "Buy", ExpectedReturn: 900, Cost: 100, MitigationCost: 50},
	}
}

func TestEvaluateRunBaseline(t *testing.T) {
	ev := New(twoOptions(), nil, nil)
	outcomes := ev.EvaluateRun(nil)
	if outcomes[0] != 800 {
		t.Errorf("option A baseline = %g, want 800", outcomes[0])
	}
	if outcomes[1] != 750 {
		t.Errorf("option B baseline = %g, want 750", outcomes[1])
	}
}

func TestEvaluateRunAppliesTo(t *testing.T) {
	vars := []sampler.ScenarioVariable{
		{Name: "all_hit", AppliesTo: []string{sampler.AppliesAll}},
		{Name: "a_only", AppliesTo: []string{"A"}, Weight: 2},
		{Name: "ghost", AppliesTo: []string{"no_such_option"}},
	}
	ev := New(twoOptions(), vars, nil)

	// row: all_hit=10, a_only=5, ghost=1000
	outcomes := ev.EvaluateRun([]float64{10, 5, 1000})
	if outcomes[0] != 800+10+2*5 {
		t.Errorf("option A = %g, want %g", outcomes[0], 800.0+10+10)
	}
	if outcomes[1] != 750+10 {
		t.Errorf("option B = %g, want %g (ghost variable must not apply)", outcomes[1], 760.0)
	}
}

func TestEvaluateRunMultiplicative(t *testing.T) {
	vars := []sampler.ScenarioVariable{
		{Name: "growth", AppliesTo: []string{"A"}, Impact: ImpactMultiplicative, Weight: 1},
	}
	ev := New(twoOptions(), vars, nil)
	outcomes := ev.EvaluateRun([]float64{0.1})
	want := 1000*1.1 - 200
	if math.Abs(outcomes[0]-want) > 1e-9 {
		t.Errorf("multiplicative outcome = %g, want %g", outcomes[0], want)
	}
}

func TestDistributionsNoVariables(t *testing.T) {
	ev := New(twoOptions(), nil, nil)
	set, err := sampler.Draw(42, 1000, nil, nil, nil)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	dists := ev.Distributions(set)
	if len(dists) != 2 {
		t.Fatalf("want one distribution per option, got %d", len(dists))
	}
	for _, v := range dists[0] {
		if v != 800 {
			t.Errorf("zero-variable distribution should be constant 800, got %g", v)
		}
	}
}

func TestZeroSumPreservesTotal(t *testing.T) {
	s, err := NewStrategy(&GameConfig{Kind: GameZeroSum, Intensity: 0.6},
		[]OptionStrategy{{OptionID: "A", Aggression: 0.9}, {OptionID: "B", Aggression: 0.1}},
		twoOptions())
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	in := []float64{100, 300}
	out := s.Resolve(in)
	if math.Abs((out[0]+out[1])-(in[0]+in[1])) > 1e-9 {
		t.Errorf("zero-sum total changed: %g -> %g", in[0]+in[1], out[0]+out[1])
	}
	if out[0] <= in[0] {
		t.Errorf("aggressive option should gain share: %g -> %g", in[0], out[0])
	}
}

func TestCooperativeLiftsLaggard(t *testing.T) {
	s, err := NewStrategy(&GameConfig{Kind: GameCooperative, Intensity: 0.5}, nil, twoOptions())
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	out := s.Resolve([]float64{100, 300})
	if out[0] <= 100 {
		t.Errorf("laggard should be lifted, got %g", out[0])
	}
	if out[1] != 300 {
		t.Errorf("leader should be unchanged, got %g", out[1])
	}
}

func TestNewStrategyValidation(t *testing.T) {
	if _, err := NewStrategy(&GameConfig{Kind: "bertrand"}, nil, twoOptions()); err == nil {
		t.Errorf("unknown game kind must fail at construction")
	}
	if _, err := NewStrategy(&GameConfig{Kind: GameZeroSum, Intensity: 1.5}, nil, twoOptions()); err == nil {
		t.Errorf("out-of-range intensity must fail")
	}
	if s, err := NewStrategy(nil, nil, twoOptions()); err != nil || s != nil {
		t.Errorf("nil config should yield nil strategy, got %v/%v", s, err)
	}
}
