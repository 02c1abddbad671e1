package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Refresh.Debounce)
	assert.Equal(t, 0.5, cfg.Tenant.RAROC.Red)
}

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retina.yaml")
	raw := `
server:
  addr: ":9090"
redis:
  addr: "localhost:6379"
  ttl: 5m
tenant:
  raroc:
    red: 0.8
    amber: 1.2
refresh:
  debounce: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 0.8, cfg.Tenant.RAROC.Red)
	assert.Equal(t, 500*time.Millisecond, cfg.Refresh.Debounce)
	// Untouched sections keep defaults.
	assert.Equal(t, 100000, cfg.Sim.MaxRuns)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero max runs", func(c *Config) { c.Sim.MaxRuns = 0 }},
		{"amber below red", func(c *Config) { c.Tenant.RAROC.Red = 2; c.Tenant.RAROC.Amber = 1 }},
		{"zero capital multiplier", func(c *Config) { c.Tenant.Capital.Multiplier = 0 }},
		{"webhook without rate", func(c *Config) { c.Notify.WebhookURL = "http://x"; c.Notify.RatePerSec = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTemplatesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")

	cfg := &TemplatesConfig{
		Active: "conservative",
		Profiles: map[string]TemplateProfile{
			"conservative": {
				Name:        "conservative",
				Description: "tight loss limits",
				Guardrails: []GuardrailSeed{
					{MetricName: "cvar95", Direction: "above", Factor: 1.1, AlertLevel: "caution"},
					{MetricName: "raroc", Direction: "below", Factor: 0.9, AlertLevel: "critical"},
				},
			},
		},
	}
	require.NoError(t, SaveTemplates(cfg, path))

	loaded, err := LoadTemplates(path)
	require.NoError(t, err)
	profile, err := loaded.GetActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, "conservative", profile.Name)
	require.Len(t, profile.Guardrails, 2)
	assert.Empty(t, profile.ValidateProfile())
}

func TestTemplateProfileValidation(t *testing.T) {
	profile := TemplateProfile{
		Name: "broken",
		Guardrails: []GuardrailSeed{
			{MetricName: "sharpe", Direction: "sideways", Factor: -1, AlertLevel: "panic"},
		},
	}
	problems := profile.ValidateProfile()
	assert.Len(t, problems, 4)

	empty := TemplateProfile{Name: "empty"}
	assert.NotEmpty(t, empty.ValidateProfile())
}
