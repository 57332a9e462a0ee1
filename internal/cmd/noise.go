package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/artifact"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/table"
)

var (
	noiseEpsilon  string
	noiseOutput   string
	noiseInput    string
	noiseDeferred []string
)

var noiseCmd = &cobra.Command{
	Use:   "noise [run-id]",
	Short: "Phase 2: apply Laplace noise to deferred columns",
	Long: `Loads the intermediate table and deferred column list of a stored
run and injects Laplace noise calibrated to --epsilon. Alternatively,
--input and --deferred run phase 2 without a stored run. Deferred columns
absent from the table are skipped with a warning.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "cmd.noise")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		epsilon := parseEpsilon(noiseEpsilon, cfg.Epsilon)

		var (
			intermediate string
			deferred     []string
			runID        string
			store        *artifact.Store
		)
		switch {
		case len(args) == 1:
			store, err = openRunStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			runID = run.ID
			intermediate = run.Intermediate
			deferred = run.Deferred
		case noiseInput != "":
			intermediate = noiseInput
			deferred = noiseDeferred
		default:
			return fmt.Errorf("either a run-id argument or --input is required")
		}

		t, err := loadIntermediate(intermediate, runID)
		if err != nil {
			return err
		}

		orch, err := buildOrchestrator(cfg)
		if err != nil {
			return err
		}

		final, err := orch.ApplyNoise(ctx, t, deferred, epsilon)
		if err != nil {
			return fmt.Errorf("phase 2 failed: %w", err)
		}

		output := noiseOutput
		if output == "" {
			output = derivedPath(intermediate, "_dp")
		}
		if err := table.WriteCSVFile(final, output); err != nil {
			return err
		}

		if runID != "" {
			if err := store.MarkNoised(ctx, runID, epsilon, output); err != nil {
				log.Warn().Err(err).Msg("marking run as noised failed")
			}
		}

		log.Info().
			Float64("epsilon", epsilon).
			Strs("deferred", deferred).
			Str("output", output).
			Msg("phase 2 complete")
		fmt.Printf("noised table written to %s\n", output)
		return nil
	},
}

func init() {
	noiseCmd.Flags().StringVarP(&noiseEpsilon, "epsilon", "e", "", "privacy budget (smaller = more noise; default from config)")
	noiseCmd.Flags().StringVarP(&noiseOutput, "output", "o", "", "final CSV path (default: <intermediate>_dp.csv)")
	noiseCmd.Flags().StringVar(&noiseInput, "input", "", "intermediate CSV path (instead of a stored run)")
	noiseCmd.Flags().StringSliceVar(&noiseDeferred, "deferred", nil, "deferred column names (with --input)")
	rootCmd.AddCommand(noiseCmd)
}
