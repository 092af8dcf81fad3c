package cli

import (
	"github.com/spf13/cobra"

	"coin-alarm-bot/internal/app"
)

var (
	exportCoin      string
	exportInterval  string
	exportLimit     int
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a coin's recent closes as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			Coin:      exportCoin,
			Interval:  exportInterval,
			Limit:     exportLimit,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCoin, "coin", "BTC", "Coin symbol")
	exportCmd.Flags().StringVar(&exportInterval, "interval", "1h", "Kline interval (1m, 5m, 15m, 1h, ...)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 168, "Number of candles to fetch")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
