package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// fingerprintLen is the truncated hex length of the run fingerprint.
const fingerprintLen = 12

type fpOption struct {
	Label          string  `json:"label"`
	Cost           float64 `json:"cost"`
	ExpectedReturn float64 `json:"expectedReturn"`
}

type fpVariable struct {
	Name      string             `json:"name"`
	AppliesTo []string           `json:"appliesTo"`
	Dist      string             `json:"dist"`
	Params    map[string]float64 `json:"params"`
	Weight    float64            `json:"weight"`
}

type fpPayload struct {
	Seed         int64        `json:"seed"`
	Runs         int          `json:"runs"`
	Options      []fpOption   `json:"options"`
	ScenarioVars []fpVariable `json:"scenarioVars"`
}

// Fingerprint computes the stable short hash proving which inputs produced
// a result set. Options are sorted by label and variables by name before
// serialization, so input ordering cannot change the fingerprint; any
// change to a hashed field does.
func Fingerprint(req Request) string {
	payload := fpPayload{
		Seed:    req.Seed,
		Runs:    req.Runs,
		Options: make([]fpOption, 0, len(req.Options)),
	}
	for _, opt := range req.Options {
		payload.Options = append(payload.Options, fpOption{
			Label:          opt.Label,
			Cost:           opt.Cost,
			ExpectedReturn: opt.ExpectedReturn,
		})
	}
	sort.Slice(payload.Options, func(a, b int) bool {
		return payload.Options[a].Label < payload.Options[b].Label
	})

	payload.ScenarioVars = make([]fpVariable, 0, len(req.Variables))
	for _, v := range req.Variables {
		applies := append([]string(nil), v.AppliesTo...)
		sort.Strings(applies)
		payload.ScenarioVars = append(payload.ScenarioVars, fpVariable{
			Name:      v.Name,
			AppliesTo: applies,
			Dist:      v.Dist,
			Params:    v.Params, // map keys serialize sorted
			Weight:    v.EffectiveWeight(),
		})
	}
	sort.Slice(payload.ScenarioVars, func(a, b int) bool {
		return payload.ScenarioVars[a].Name < payload.ScenarioVars[b].Name
	})

	raw, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain structs and float maps cannot fail at runtime;
		// fall back to an empty fingerprint rather than panic.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
