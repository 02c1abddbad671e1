package recommend

import (
	"testing"

	"github.com/retinalabs/retina/internal/sim"
)

func f(v float64) *float64 { return &v }

func TestSelectHigherRAROCWins(t *testing.T) {
	results := []sim.Result{
		{OptionID: "A", RAROC: 1.2, EV: 500, EconomicCapital: 400},
		{OptionID: "B", RAROC: 2.0, EV: 300, EconomicCapital: 150},
	}
	rec, err := Select(results, Settings{RedThreshold: 0.5})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.OptionID != "B" {
		t.Errorf("expected B (higher RAROC), got %s", rec.OptionID)
	}
	if rec.Basis != BasisRAROC {
		t.Errorf("basis = %s, want raroc", rec.Basis)
	}
	if len(rec.TieBreakersUsed) != 0 {
		t.Errorf("clear winner should not invoke tie-breakers, got %v", rec.TieBreakersUsed)
	}
	if !rec.IsSafe {
		t.Errorf("RAROC 2.0 above red 0.5 should be safe")
	}
}

func TestSelectEVTieBreak(t *testing.T) {
	// Identical RAROC, different EV: the higher-EV option wins and the
	// EV tie-breaker is recorded.
	results := []sim.Result{
		{OptionID: "A", RAROC: 1.5, EV: 300, EconomicCapital: 200},
		{OptionID: "B", RAROC: 1.5, EV: 450, EconomicCapital: 300},
	}
	rec, err := Select(results, Settings{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.OptionID != "B" {
		t.Errorf("expected higher-EV option B, got %s", rec.OptionID)
	}
	found := false
	for _, tb := range rec.TieBreakersUsed {
		if tb == TieBreakEV {
			found = true
		}
	}
	if !found {
		t.Errorf("tieBreakersUsed %v must contain EV", rec.TieBreakersUsed)
	}
}

func TestSelectCapitalTieBreak(t *testing.T) {
	results := []sim.Result{
		{OptionID: "A", RAROC: 1.5, EV: 300, EconomicCapital: 250},
		{OptionID: "B", RAROC: 1.5, EV: 300, EconomicCapital: 180},
	}
	rec, err := Select(results, Settings{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.OptionID != "B" {
		t.Errorf("expected lower-capital option B, got %s", rec.OptionID)
	}
	want := []string{TieBreakEV, TieBreakEconomicCapital}
	if len(rec.TieBreakersUsed) != 2 || rec.TieBreakersUsed[0] != want[0] || rec.TieBreakersUsed[1] != want[1] {
		t.Errorf("tieBreakersUsed = %v, want %v", rec.TieBreakersUsed, want)
	}
}

func TestSelectFullTieKeepsInputOrder(t *testing.T) {
	results := []sim.Result{
		{OptionID: "A", RAROC: 1.5, EV: 300, EconomicCapital: 200},
		{OptionID: "B", RAROC: 1.5, EV: 300, EconomicCapital: 200},
	}
	rec, err := Select(results, Settings{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.OptionID != "A" {
		t.Errorf("full tie must keep first input option, got %s", rec.OptionID)
	}
}

func TestSelectCEBasis(t *testing.T) {
	results := []sim.Result{
		{OptionID: "A", RAROC: 2.0, EV: 500, EconomicCapital: 250, CertaintyEquivalent: f(350), ExpectedUtility: f(0.42)},
		{OptionID: "B", RAROC: 1.0, EV: 400, EconomicCapital: 400, CertaintyEquivalent: f(420), ExpectedUtility: f(0.55)},
	}
	rec, err := Select(results, Settings{UseCertaintyEquivalent: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.Basis != BasisCE {
		t.Errorf("basis = %s, want certainty_equivalent", rec.Basis)
	}
	if rec.OptionID != "B" {
		t.Errorf("expected higher-CE option B, got %s", rec.OptionID)
	}
}

func TestSelectCEFallsBackWithoutFullCoverage(t *testing.T) {
	results := []sim.Result{
		{OptionID: "A", RAROC: 2.0, EV: 500, EconomicCapital: 250, CertaintyEquivalent: f(350)},
		{OptionID: "B", RAROC: 1.0, EV: 400, EconomicCapital: 400}, // no CE
	}
	rec, err := Select(results, Settings{UseCertaintyEquivalent: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.Basis != BasisRAROC {
		t.Errorf("missing CE must fall back to RAROC basis, got %s", rec.Basis)
	}
	if rec.OptionID != "A" {
		t.Errorf("expected A under RAROC fallback, got %s", rec.OptionID)
	}
}

func TestSelectUnsafeStillReturnsBest(t *testing.T) {
	results := []sim.Result{
		{OptionID: "A", RAROC: 0.3, EV: 100, EconomicCapital: 333},
	}
	rec, err := Select(results, Settings{RedThreshold: 1.0})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.IsSafe {
		t.Errorf("RAROC 0.3 below red 1.0 must be unsafe")
	}
	if !rec.OverrideRequired {
		t.Errorf("unsafe pick must require an override rationale")
	}
	if rec.OptionID != "A" {
		t.Errorf("best unsafe option must still be returned")
	}
}

func TestSelectRanks(t *testing.T) {
	results := []sim.Result{
		{OptionID: "A", RAROC: 2.0, EV: 300, EconomicCapital: 150},
		{OptionID: "B", RAROC: 1.0, EV: 600, EconomicCapital: 600},
	}
	rec, err := Select(results, Settings{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rec.Ranks["raroc"] != 1 {
		t.Errorf("chosen option should rank 1 by raroc, got %d", rec.Ranks["raroc"])
	}
	if rec.Ranks["ev"] != 2 {
		t.Errorf("chosen option ranks 2 by ev, got %d", rec.Ranks["ev"])
	}
	if rec.Ranks["economicCapital"] != 1 {
		t.Errorf("chosen option ranks 1 by capital (lower is better), got %d", rec.Ranks["economicCapital"])
	}
}

func TestSelectEmpty(t *testing.T) {
	if _, err := Select(nil, Settings{}); err == nil {
		t.Errorf("empty result set must error")
	}
}
