package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/artifact"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/table"
)

var (
	runEpsilon string
	runOutput  string
)

var runCmd = &cobra.Command{
	Use:   "run <input.csv>",
	Short: "Run both phases with an in-memory handoff",
	Long: `Runs phase 1 (classify and act) and phase 2 (Laplace noise) in one
process, handing the intermediate table over in memory, and writes only the
final sanitized CSV. The run is still recorded in the artifact store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "cmd.run")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		input := args[0]
		t, err := table.ReadCSVFile(input)
		if err != nil {
			return err
		}

		orch, err := buildOrchestrator(cfg)
		if err != nil {
			return err
		}

		res, err := orch.Anonymize(ctx, t)
		if err != nil {
			return fmt.Errorf("phase 1 failed: %w", err)
		}

		epsilon := parseEpsilon(runEpsilon, cfg.Epsilon)
		final, err := orch.ApplyNoise(ctx, res.Table, res.Deferred, epsilon)
		if err != nil {
			return fmt.Errorf("phase 2 failed: %w", err)
		}

		output := runOutput
		if output == "" {
			output = derivedPath(input, "_sanitized")
		}
		if err := table.WriteCSVFile(final, output); err != nil {
			return err
		}

		store, err := openRunStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		run := artifact.NewRun(input, "", res)
		now := time.Now().UTC()
		run.Epsilon = &epsilon
		run.Output = output
		run.NoisedAt = &now
		if err := store.Save(ctx, run); err != nil {
			return err
		}

		log.Info().
			Str("run_id", run.ID).
			Float64("epsilon", epsilon).
			Str("output", output).
			Msg("sanitization complete")
		fmt.Printf("run %s\n", run.ID)
		fmt.Printf("sanitized table written to %s\n", output)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runEpsilon, "epsilon", "e", "", "privacy budget (smaller = more noise; default from config)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "final CSV path (default: <input>_sanitized.csv)")
	rootCmd.AddCommand(runCmd)
}
