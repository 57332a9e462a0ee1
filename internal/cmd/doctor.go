package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/doctor"
)

var doctorFormat string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the veil environment before running",
	Long: `Verifies that configuration loads, the data directory is writable,
the run database opens, and the selected classifier backend is usable.
Exits non-zero when any check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "cmd.doctor")
		defer span.End()

		report := doctor.Run(ctx)

		if doctorFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
			for _, c := range report.Checks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Status, c.Message)
				if c.Fix != "" && c.Status != "pass" {
					fmt.Fprintf(w, "\t\tfix: %s\n", c.Fix)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d pass, %d warn, %d fail\n",
				report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
		}

		if report.Status == "fail" {
			return fmt.Errorf("%d doctor check(s) failed", report.Summary.Fail)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text", "output format: text or json")
	rootCmd.AddCommand(doctorCmd)
}
