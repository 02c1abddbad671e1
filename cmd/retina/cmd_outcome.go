package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/retinalabs/retina/internal/config"
	"github.com/retinalabs/retina/internal/guardrail"
	"github.com/retinalabs/retina/internal/persistence/postgres"
)

func newOutcomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Record one actual outcome against its guardrail",
		Long: `Feeds a single observed metric value through the guardrail loop
and prints the breach/adjustment result as JSON. Requires a configured
Postgres store so state persists between invocations.`,
		RunE: runOutcome,
	}
	cmd.Flags().String("tenant", "", "Tenant ID")
	cmd.Flags().String("decision", "", "Decision ID, required")
	cmd.Flags().String("option", "", "Option ID, required")
	cmd.Flags().String("metric", "", "Metric name (ev|var95|cvar95|raroc), required")
	cmd.Flags().Float64("actual", 0, "Observed value, required")
	cmd.Flags().String("source", "cli", "Observation source tag")
	return cmd
}

func runOutcome(cmd *cobra.Command, args []string) error {
	decision, _ := cmd.Flags().GetString("decision")
	option, _ := cmd.Flags().GetString("option")
	metric, _ := cmd.Flags().GetString("metric")
	if decision == "" || option == "" || metric == "" {
		return fmt.Errorf("--decision, --option, and --metric are required")
	}
	if !cmd.Flags().Changed("actual") {
		return fmt.Errorf("--actual is required")
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("outcome recording needs postgres.dsn in the config; in-memory state would be lost on exit")
	}

	store, err := postgres.Connect(cmd.Context(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if cfg.Postgres.EnsureSchema {
		if err := store.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
	}

	engine := guardrail.NewEngine(store, nil)
	tenant, _ := cmd.Flags().GetString("tenant")
	actual, _ := cmd.Flags().GetFloat64("actual")
	source, _ := cmd.Flags().GetString("source")

	result, err := engine.ProcessActualOutcome(cmd.Context(), guardrail.Outcome{
		TenantID:   tenant,
		DecisionID: decision,
		OptionID:   option,
		MetricName: metric,
		Actual:     actual,
		Source:     source,
	})
	if err != nil {
		return fmt.Errorf("outcome processing failed: %w", err)
	}
	if result == nil {
		log.Warn().
			Str("decision_id", decision).
			Str("option_id", option).
			Str("metric", metric).
			Msg("no guardrail matches this outcome")
		fmt.Println(`{"matched": false}`)
		return nil
	}

	out := struct {
		Matched bool                     `json:"matched"`
		Result  *guardrail.ProcessResult `json:"result"`
	}{Matched: true, Result: result}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
