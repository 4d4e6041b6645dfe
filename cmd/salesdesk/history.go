package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/salesdesk/salesdesk/internal/events"
	"github.com/salesdesk/salesdesk/internal/notify"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the claim journal",
	Long: `Print recorded schedule and claim events, oldest first.

The journal lives in the configured store, so this is only useful against a
SQLite database shared with a running server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		scheduleID, _ := cmd.Flags().GetString("schedule")
		eventType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.store.ListEvents(ctx, events.Filter{
			ScheduleID: scheduleID,
			Type:       eventType,
			Limit:      limit,
		})
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		printHistory(os.Stdout, list)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringP("schedule", "s", "", "Only events for this schedule ID")
	historyCmd.Flags().StringP("type", "t", "", "Only events of this type (e.g. claim_update)")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of most recent events to show")
	rootCmd.AddCommand(historyCmd)
}

// printHistory prints records given newest first in chronological order.
func printHistory(out io.Writer, list []*events.Record) {
	if len(list) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(out, "\n%s No events found\n\n", yellow("✨"))
		return
	}
	gray := color.New(color.FgHiBlack)
	for i := len(list) - 1; i >= 0; i-- {
		rec := list[i]
		icon, c := eventStyle(notify.EventName(rec.Type))
		fmt.Fprintf(out, "%s [%s] %s %s: %s\n",
			icon,
			rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
			color.New(color.FgGreen).Sprint(rec.ScheduleID),
			color.New(color.FgMagenta).Sprint(rec.Type),
			c.Sprint(rec.Message),
		)
		if rec.Actor != "" {
			fmt.Fprintf(out, "    %s: %s\n", gray.Sprint("actor"), rec.Actor)
		}
	}
}
