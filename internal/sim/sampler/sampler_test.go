package sampler

import (
	"math"
	"testing"
)

func testVars() []ScenarioVariable {
	return []ScenarioVariable{
		{Name: "demand", Dist: DistNormal, Params: map[string]float64{"mean": 0, "sd": 1}, AppliesTo: []string{AppliesAll}},
		{Name: "churn", Dist: DistNormal, Params: map[string]float64{"mean": 0, "sd": 2}, AppliesTo: []string{AppliesAll}},
		{Name: "capex", Dist: DistTriangular, Params: map[string]float64{"min": -50, "mode": 0, "max": 50}, AppliesTo: []string{AppliesAll}},
	}
}

func TestDrawDeterminism(t *testing.T) {
	dep := &DependenceConfig{
		Variables: []string{"demand", "churn"},
		Matrix:    [][]float64{{1, 0.7}, {0.7, 1}},
	}

	a, err := Draw(42, 500, testVars(), dep, nil)
	if err != nil {
		t.Fatalf("first draw failed: %v", err)
	}
	b, err := Draw(42, 500, testVars(), dep, nil)
	if err != nil {
		t.Fatalf("second draw failed: %v", err)
	}

	for r := 0; r < a.Runs; r++ {
		for j := range a.Values[r] {
			if a.Values[r][j] != b.Values[r][j] {
				t.Fatalf("run %d var %d differs: %v vs %v", r, j, a.Values[r][j], b.Values[r][j])
			}
		}
	}
	if a.AchievedSpearman != b.AchievedSpearman || a.CopulaFroErr != b.CopulaFroErr {
		t.Errorf("diagnostics differ across identical draws")
	}
}

func TestDrawSeedSensitivity(t *testing.T) {
	a, _ := Draw(1, 10, testVars(), nil, nil)
	b, _ := Draw(2, 10, testVars(), nil, nil)
	same := true
	for r := range a.Values {
		for j := range a.Values[r] {
			if a.Values[r][j] != b.Values[r][j] {
				same = false
			}
		}
	}
	if same {
		t.Errorf("different seeds produced identical samples")
	}
}

func TestDrawEmptyInputs(t *testing.T) {
	set, err := Draw(42, 0, testVars(), nil, nil)
	if err != nil {
		t.Fatalf("zero runs should not error: %v", err)
	}
	if set.Runs != 0 || len(set.Values) != 0 {
		t.Errorf("expected empty sample set, got %d runs", set.Runs)
	}

	set, err = Draw(42, 100, nil, nil, nil)
	if err != nil {
		t.Fatalf("empty variables should not error: %v", err)
	}
	if len(set.Values) != 0 {
		t.Errorf("expected empty sample set for empty variables")
	}
}

func TestDrawInducesCorrelation(t *testing.T) {
	dep := &DependenceConfig{
		Variables: []string{"demand", "churn"},
		Matrix:    [][]float64{{1, 0.8}, {0.8, 1}},
	}
	set, err := Draw(7, 4000, testVars(), dep, nil)
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}
	if set.AchievedSpearman < 0.7 || set.AchievedSpearman > 0.9 {
		t.Errorf("achieved spearman %.3f not near requested 0.8", set.AchievedSpearman)
	}
	if set.CopulaFroErr > 0.2 {
		t.Errorf("copula fit error too large: %.3f", set.CopulaFroErr)
	}
}

func TestDrawNonPSDMatrixDegrades(t *testing.T) {
	// Pairwise correlations that cannot jointly hold: (a,b)=0.9, (a,c)=0.9,
	// (b,c)=-0.9 has a negative eigenvalue.
	dep := &DependenceConfig{
		Variables: []string{"demand", "churn", "capex"},
		Matrix: [][]float64{
			{1, 0.9, 0.9},
			{0.9, 1, -0.9},
			{0.9, -0.9, 1},
		},
	}
	set, err := Draw(11, 2000, testVars(), dep, nil)
	if err != nil {
		t.Fatalf("non-PSD matrix must not fail: %v", err)
	}
	if set.CopulaFroErr <= 0 {
		t.Errorf("expected non-zero fit error for unattainable correlation, got %g", set.CopulaFroErr)
	}
	for r := range set.Values {
		for j := range set.Values[r] {
			if math.IsNaN(set.Values[r][j]) || math.IsInf(set.Values[r][j], 0) {
				t.Fatalf("non-finite sample at run %d var %d", r, j)
			}
		}
	}
}

func TestNearestPSDKeepsValidMatrix(t *testing.T) {
	m := [][]float64{{1, 0.5}, {0.5, 1}}
	out := nearestPSD(m)
	for i := range m {
		for j := range m[i] {
			if math.Abs(out[i][j]-m[i][j]) > 1e-9 {
				t.Errorf("PSD input changed at [%d][%d]: %g -> %g", i, j, m[i][j], out[i][j])
			}
		}
	}
}

func TestNewMarginalValidation(t *testing.T) {
	cases := []struct {
		name    string
		family  string
		params  map[string]float64
		wantErr bool
	}{
		{"normal ok", DistNormal, map[string]float64{"mean": 5, "sd": 2}, false},
		{"normal negative sd", DistNormal, map[string]float64{"sd": -1}, true},
		{"triangular ok", DistTriangular, map[string]float64{"min": 0, "mode": 1, "max": 2}, false},
		{"triangular mode outside", DistTriangular, map[string]float64{"min": 0, "mode": 5, "max": 2}, true},
		{"uniform inverted", DistUniform, map[string]float64{"min": 3, "max": 1}, true},
		{"unknown family", "cauchy", nil, true},
	}
	for _, tc := range cases {
		_, err := NewMarginal(tc.family, tc.params)
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestNormQuantileRoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.05, 0.25, 0.5, 0.75, 0.95, 0.99} {
		z := normQuantile(p)
		back := stdNormCDF(z)
		if math.Abs(back-p) > 1e-7 {
			t.Errorf("quantile round trip at p=%.2f: got %.8f", p, back)
		}
	}
	if math.Abs(normQuantile(0.5)) > 1e-9 {
		t.Errorf("median quantile should be 0, got %g", normQuantile(0.5))
	}
}

func TestPriorOverridePosterior(t *testing.T) {
	o := PriorOverride{
		Variable:      "demand",
		PriorMean:     10,
		PriorSD:       5,
		Observations:  []float64{20, 22, 18, 20},
		ObservationSD: 2,
	}
	mean, sd := o.Posterior()
	if mean <= 10 || mean >= 20.5 {
		t.Errorf("posterior mean %g should sit between prior and data", mean)
	}
	if sd >= o.PriorSD || sd <= 0 {
		t.Errorf("posterior sd %g should shrink below prior %g", sd, o.PriorSD)
	}

	// No observations keeps the prior.
	o.Observations = nil
	mean, sd = o.Posterior()
	if mean != 10 || sd != 5 {
		t.Errorf("empty observations should return the prior, got %g/%g", mean, sd)
	}
}

func TestApplyOverrideTargetsOnlyNamedVariable(t *testing.T) {
	vars := testVars()
	o := &PriorOverride{Variable: "demand", PriorMean: 3, PriorSD: 1, Observations: []float64{4}, ObservationSD: 1}
	out := applyOverride(vars, o)

	if out[0].Params["mean"] == vars[0].Params["mean"] {
		t.Errorf("override did not change target variable mean")
	}
	if out[1].Params["mean"] != vars[1].Params["mean"] {
		t.Errorf("override leaked into unrelated variable")
	}
	// Original slice untouched.
	if vars[0].Params["mean"] != 0 {
		t.Errorf("input slice mutated")
	}
}
