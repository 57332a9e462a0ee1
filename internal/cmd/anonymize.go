package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/artifact"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/table"
)

var anonymizeOutput string

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize <input.csv>",
	Short: "Phase 1: classify columns and drop/mask/defer/keep",
	Long: `Classifies every column of the input CSV with the configured
classifier, applies the resulting policy actions, writes the intermediate
table, and records the run (with its deferred column list) in the artifact
store. Apply noise later with "veil noise <run-id>".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "cmd.anonymize")
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

		output := anonymizeOutput
		if output == "" {
			output = derivedPath(input, "_anonymized")
		}
		if err := table.WriteCSVFile(res.Table, output); err != nil {
			return err
		}

		store, err := openRunStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		run := artifact.NewRun(input, output, res)
		if err := store.Save(ctx, run); err != nil {
			return err
		}

		log.Info().
			Str("run_id", run.ID).
			Str("output", output).
			Strs("deferred", run.Deferred).
			Msg("phase 1 complete")

		fmt.Printf("run %s\n", run.ID)
		fmt.Printf("intermediate table written to %s\n", output)
		if len(run.Deferred) > 0 {
			fmt.Printf("deferred for noise: %v\n", run.Deferred)
			fmt.Printf("apply with: veil noise %s --epsilon 1.0\n", run.ID)
		} else {
			fmt.Println("no columns deferred for noise")
		}
		return nil
	},
}

func init() {
	anonymizeCmd.Flags().StringVarP(&anonymizeOutput, "output", "o", "", "intermediate CSV path (default: <input>_anonymized.csv)")
	rootCmd.AddCommand(anonymizeCmd)
}
