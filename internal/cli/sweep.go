package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evaluate every stored alarm once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sweep %s: users=%d alarms=%d fired=%d skipped=%d failed=%d\n",
			report.ID, report.Users, report.Alarms, report.Fired, report.Skipped, report.Failed)
		return nil
	},
}
