package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/retinalabs/retina/internal/config"
	"github.com/retinalabs/retina/internal/recommend"
	"github.com/retinalabs/retina/internal/sim"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one simulation from a scenario file",
		Long: `Loads a scenario file (YAML or JSON), runs the Monte-Carlo
simulation, and prints per-option risk metrics plus the recommendation
as JSON on stdout.`,
		RunE: runSimulate,
	}
	bindSimulateFlags(cmd.Flags())
	return cmd
}

func bindSimulateFlags(fs *pflag.FlagSet) {
	fs.String("input", "", "Scenario file (YAML or JSON), required")
	fs.Int("runs", 0, "Override the scenario's run count")
	fs.Int64("seed", 0, "Override the scenario's seed")
	fs.Bool("ce", false, "Rank by certainty equivalent instead of RAROC")
	fs.Duration("timeout", 60*time.Second, "Simulation timeout")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		return fmt.Errorf("--input is required")
	}

	req, err := loadScenario(input)
	if err != nil {
		return err
	}
	if runs, _ := cmd.Flags().GetInt("runs"); cmd.Flags().Changed("runs") {
		req.Runs = runs
	}
	if seed, _ := cmd.Flags().GetInt64("seed"); cmd.Flags().Changed("seed") {
		req.Seed = seed
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	results, diags, err := sim.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	useCE, _ := cmd.Flags().GetBool("ce")
	rec, err := recommend.Select(results, recommend.Settings{
		UseCertaintyEquivalent: useCE || cfg.Tenant.UseCertaintyEquivalent,
		RedThreshold:           cfg.Tenant.RAROC.Red,
	})
	if err != nil {
		return fmt.Errorf("selection failed: %w", err)
	}

	log.Info().
		Str("fingerprint", diags.Fingerprint).
		Int("options", len(results)).
		Dur("elapsed", diags.Elapsed).
		Msg("simulation complete")

	out := map[string]interface{}{
		"fingerprint":    diags.Fingerprint,
		"results":        results,
		"recommendation": rec,
		"diagnostics":    diags,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func loadScenario(path string) (sim.Request, error) {
	var req sim.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read scenario: %w", err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse scenario JSON: %w", err)
		}
		return req, nil
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	return req, nil
}
