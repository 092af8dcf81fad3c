package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"coin-alarm-bot/internal/alarm"
	"coin-alarm-bot/internal/storage"
)

// ShowAlarms prints stored alarms, for one user or for everyone.
func (a *App) ShowAlarms(ctx context.Context, opts ShowOptions) error {
	backend, err := storage.Open(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	all, err := backend.Alarms.LoadAll(ctx)
	if err != nil {
		return err
	}
	if opts.UserID != "" {
		all = map[string][]alarm.Alarm{opts.UserID: all[opts.UserID]}
	}
	return writeAlarmTable(os.Stdout, all)
}

func writeAlarmTable(out io.Writer, all map[string][]alarm.Alarm) error {
	users := make([]string, 0, len(all))
	for userID, list := range all {
		if len(list) > 0 {
			users = append(users, userID)
		}
	}
	if len(users) == 0 {
		fmt.Fprintln(out, "no alarms found")
		return nil
	}
	slices.Sort(users)

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "User\t#\tKind\tCoin\tThreshold\tRepeat\tTriggered\tFired\tDescription")
	for _, userID := range users {
		for i, a := range all[userID] {
			fmt.Fprintf(
				writer,
				"%s\t%d\t%s\t%s\t%.4g\t%t\t%t\t%d\t%s\n",
				userID,
				i+1,
				a.Type,
				a.Coin,
				a.Threshold(),
				a.Repeat,
				a.Triggered,
				a.TriggerCount,
				alarm.Describe(a),
			)
		}
	}
	return writer.Flush()
}
