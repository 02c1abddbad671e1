package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/retinalabs/retina/internal/persistence"
)

// TemplatesConfig holds the guardrail template profiles a tenant can
// apply to a freshly simulated decision.
type TemplatesConfig struct {
	Profiles map[string]TemplateProfile `yaml:"profiles"`
	Active   string                     `yaml:"active_profile"`
}

// TemplateProfile is a named set of guardrail seeds.
type TemplateProfile struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Guardrails  []GuardrailSeed `yaml:"guardrails"`
}

// GuardrailSeed describes one guardrail to create per option. The
// threshold is derived from the option's simulated metric value scaled
// by Factor, so a profile adapts to each decision's magnitude.
type GuardrailSeed struct {
	MetricName string  `yaml:"metric_name"` // cvar95, var95, ev, raroc
	Direction  string  `yaml:"direction"`   // above | below
	Factor     float64 `yaml:"factor"`      // threshold = metric * factor
	AlertLevel string  `yaml:"alert_level"` // info | caution | critical
}

// LoadTemplates loads guardrail template profiles from file.
func LoadTemplates(path string) (*TemplatesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates config: %w", err)
	}

	var cfg TemplatesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse templates YAML: %w", err)
	}
	return &cfg, nil
}

// SaveTemplates writes template profiles back to file.
func SaveTemplates(cfg *TemplatesConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal templates config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write templates config: %w", err)
	}
	return nil
}

// GetActiveProfile returns the currently active template profile.
func (tc *TemplatesConfig) GetActiveProfile() (*TemplateProfile, error) {
	if tc.Active == "" {
		return nil, fmt.Errorf("no active profile set")
	}
	profile, exists := tc.Profiles[tc.Active]
	if !exists {
		return nil, fmt.Errorf("active profile '%s' not found", tc.Active)
	}
	return &profile, nil
}

// ValidateProfile checks a profile's seeds for consistency. Returns a
// list of human-readable problems, empty when the profile is sound.
func (tp *TemplateProfile) ValidateProfile() []string {
	var errors []string

	if len(tp.Guardrails) == 0 {
		errors = append(errors, "profile has no guardrail seeds")
	}

	validMetrics := map[string]bool{"ev": true, "var95": true, "cvar95": true, "raroc": true}
	validAlerts := map[string]bool{
		persistence.AlertInfo:     true,
		persistence.AlertCaution:  true,
		persistence.AlertCritical: true,
	}

	for i, seed := range tp.Guardrails {
		if !validMetrics[seed.MetricName] {
			errors = append(errors, fmt.Sprintf("seed %d: unknown metric '%s'", i, seed.MetricName))
		}
		if seed.Direction != persistence.DirectionAbove && seed.Direction != persistence.DirectionBelow {
			errors = append(errors, fmt.Sprintf("seed %d: direction must be above or below, got '%s'", i, seed.Direction))
		}
		if seed.Factor <= 0 {
			errors = append(errors, fmt.Sprintf("seed %d: factor must be positive, got %.3f", i, seed.Factor))
		}
		if !validAlerts[seed.AlertLevel] {
			errors = append(errors, fmt.Sprintf("seed %d: unknown alert level '%s'", i, seed.AlertLevel))
		}
	}
	return errors
}
