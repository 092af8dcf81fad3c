package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateChat  string
	simulateCoin  string
	simulatePrice float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Fire a synthetic price alarm to a chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateChat == "" {
			return errors.New("--chat is required")
		}
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateChat, simulateCoin, simulatePrice)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChat, "chat", "", "Telegram chat id to notify")
	simulateCmd.Flags().StringVar(&simulateCoin, "coin", "BTC", "Coin symbol")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 50000, "Synthetic current price")
}
