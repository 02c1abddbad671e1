// Package recommend ranks simulated options and selects the recommended
// one, with a deterministic tie-break cascade and a RAROC safety gate. The
// output carries enough detail to render a full justification.
package recommend

import (
	"fmt"
	"sort"

	"github.com/retinalabs/retina/internal/sim"
)

// Ranking bases.
const (
	BasisRAROC = "raroc"
	BasisCE    = "certainty_equivalent"
)

// Tie-breaker names recorded for explainability.
const (
	TieBreakEV              = "EV"
	TieBreakEconomicCapital = "EconomicCapital"
	TieBreakExpectedUtility = "ExpectedUtility"
)

// Metric difference thresholds below which two candidates count as tied.
const (
	rarocEpsilon    = 0.0001
	monetaryEpsilon = 0.01
	utilityEpsilon  = 1e-9
)

// Settings control ranking basis and the safety gate.
type Settings struct {
	// UseCertaintyEquivalent ranks by CE when every option has one;
	// otherwise the selector falls back to RAROC.
	UseCertaintyEquivalent bool `json:"useCertaintyEquivalent" yaml:"use_certainty_equivalent"`
	// RedThreshold is the tenant's minimum safe RAROC.
	RedThreshold float64 `json:"redThreshold" yaml:"red_threshold"`
}

// Recommendation is the selected option plus its justification trail.
type Recommendation struct {
	OptionID    string `json:"optionId"`
	OptionLabel string `json:"optionLabel"`
	Basis       string `json:"basis"`

	// IsSafe is false when the best available option still sits below the
	// red RAROC threshold. Unsafe picks require an override rationale
	// before the caller applies them.
	IsSafe           bool `json:"isSafe"`
	OverrideRequired bool `json:"overrideRequired"`

	// TieBreakersUsed lists the cascade stages invoked, in order.
	TieBreakersUsed []string `json:"tieBreakersUsed"`

	// Ranks holds the chosen option's 1-based rank under each metric.
	Ranks map[string]int `json:"ranks"`
}

// Select picks the recommended option from a simulation result set.
func Select(results []sim.Result, s Settings) (*Recommendation, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no options to rank")
	}

	basis := BasisRAROC
	if s.UseCertaintyEquivalent && allHaveCE(results) {
		basis = BasisCE
	}

	bestIdx := 0
	var used []string
	for i := 1; i < len(results); i++ {
		var wins bool
		var invoked []string
		if basis == BasisCE {
			wins, invoked = beatsByCE(results[i], results[bestIdx])
		} else {
			wins, invoked = beatsByRAROC(results[i], results[bestIdx])
		}
		used = mergeTieBreakers(used, invoked)
		if wins {
			bestIdx = i
		}
	}

	chosen := results[bestIdx]
	safe := chosen.RAROC >= s.RedThreshold

	return &Recommendation{
		OptionID:         chosen.OptionID,
		OptionLabel:      chosen.OptionLabel,
		Basis:            basis,
		IsSafe:           safe,
		OverrideRequired: !safe,
		TieBreakersUsed:  used,
		Ranks:            ranksFor(results, bestIdx),
	}, nil
}

// beatsByRAROC reports whether the candidate beats the incumbent under
// RAROC ranking, and which tie-breakers the comparison invoked.
func beatsByRAROC(cand, inc sim.Result) (bool, []string) {
	d := cand.RAROC - inc.RAROC
	if d >= rarocEpsilon {
		return true, nil
	}
	if d <= -rarocEpsilon {
		return false, nil
	}

	invoked := []string{TieBreakEV}
	d = cand.EV - inc.EV
	if d >= monetaryEpsilon {
		return true, invoked
	}
	if d <= -monetaryEpsilon {
		return false, invoked
	}

	invoked = append(invoked, TieBreakEconomicCapital)
	d = inc.EconomicCapital - cand.EconomicCapital // lower capital wins
	if d >= monetaryEpsilon {
		return true, invoked
	}
	// Fully tied: the incumbent keeps its input-order position.
	return false, invoked
}

// beatsByCE is the certainty-equivalent ranking comparison.
func beatsByCE(cand, inc sim.Result) (bool, []string) {
	d := deref(cand.CertaintyEquivalent) - deref(inc.CertaintyEquivalent)
	if d >= monetaryEpsilon {
		return true, nil
	}
	if d <= -monetaryEpsilon {
		return false, nil
	}

	invoked := []string{TieBreakExpectedUtility}
	d = deref(cand.ExpectedUtility) - deref(inc.ExpectedUtility)
	if d >= utilityEpsilon {
		return true, invoked
	}
	return false, invoked
}

func allHaveCE(results []sim.Result) bool {
	for _, r := range results {
		if r.CertaintyEquivalent == nil {
			return false
		}
	}
	return true
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func mergeTieBreakers(used, invoked []string) []string {
	for _, name := range invoked {
		seen := false
		for _, u := range used {
			if u == name {
				seen = true
				break
			}
		}
		if !seen {
			used = append(used, name)
		}
	}
	return used
}

// ranksFor computes the chosen option's 1-based rank under every metric.
// Earlier input order wins rank among exact ties, matching the selector.
func ranksFor(results []sim.Result, chosen int) map[string]int {
	ranks := map[string]int{
		"raroc":           rankOf(results, chosen, func(r sim.Result) float64 { return r.RAROC }, true),
		"ev":              rankOf(results, chosen, func(r sim.Result) float64 { return r.EV }, true),
		"economicCapital": rankOf(results, chosen, func(r sim.Result) float64 { return r.EconomicCapital }, false),
	}
	if allHaveCE(results) {
		ranks["certaintyEquivalent"] = rankOf(results, chosen, func(r sim.Result) float64 { return deref(r.CertaintyEquivalent) }, true)
		ranks["expectedUtility"] = rankOf(results, chosen, func(r sim.Result) float64 { return deref(r.ExpectedUtility) }, true)
	}
	return ranks
}

func rankOf(results []sim.Result, chosen int, metric func(sim.Result) float64, descending bool) int {
	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := metric(results[idx[a]]), metric(results[idx[b]])
		if va == vb {
			return idx[a] < idx[b]
		}
		if descending {
			return va > vb
		}
		return va < vb
	})
	for pos, i := range idx {
		if i == chosen {
			return pos + 1
		}
	}
	return len(results)
}
