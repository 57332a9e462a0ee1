package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/config"
)

var (
	runsLimit  int
	runsFormat string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored sanitization runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "cmd.runs")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openRunStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(ctx, runsLimit)
		if err != nil {
			return err
		}

		if runsFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tCREATED\tINPUT\tDEFERRED\tNOISED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Input, len(r.Deferred), noisedLabel(r))
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsCmd.Flags().StringVar(&runsFormat, "format", "text", "output format: text or json")
	rootCmd.AddCommand(runsCmd)
}
