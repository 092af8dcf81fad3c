package cli

import (
	"github.com/spf13/cobra"

	"coin-alarm-bot/internal/app"
)

var alarmsUser string

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "List stored alarms",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowAlarms(cmd.Context(), app.ShowOptions{UserID: alarmsUser})
	},
}

func init() {
	alarmsCmd.Flags().StringVar(&alarmsUser, "user", "", "Only show alarms of this Telegram user id")
}
