package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/salesdesk/salesdesk/internal/dashboard"
	"github.com/salesdesk/salesdesk/internal/types"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show an executive's alert panel",
	Long: `Print today's alert panel for one executive: the alerts assigned to them,
the whole team's pool, and their claim stats.

With --watch the panel is reprinted on every poll tick until Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		execID, _ := cmd.Flags().GetString("exec")
		seedData, _ := cmd.Flags().GetBool("seed")
		watch, _ := cmd.Flags().GetBool("watch")
		interval := cfg.PollInterval
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if seedData {
			if _, err := a.seedToday(ctx); err != nil {
				return err
			}
		}

		w, err := a.newWatcher(execID, interval, func(s dashboard.Snapshot) {
			printSnapshot(os.Stdout, s)
		})
		if err != nil {
			return err
		}
		if !watch {
			snap, err := w.Load(ctx, dashboard.TriggerManual)
			if err != nil {
				return err
			}
			printSnapshot(os.Stdout, snap)
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Watching alerts for %s (Ctrl+C to stop)...\n", cyan("👁️"), execID)
		if err := w.Run(ctx); err != nil {
			return err
		}
		fmt.Println("\nStopped watching")
		return nil
	},
}

func init() {
	alertsCmd.Flags().StringP("exec", "e", "", "Executive ID (required)")
	alertsCmd.Flags().Bool("seed", false, "Load today's demo slots first")
	alertsCmd.Flags().BoolP("watch", "w", false, "Keep reprinting the panel as it changes")
	alertsCmd.Flags().Duration("interval", dashboard.DefaultPollInterval, "Poll interval in watch mode (overrides config)")
	_ = alertsCmd.MarkFlagRequired("exec")
	rootCmd.AddCommand(alertsCmd)
}

// newWatcher builds a dashboard watcher over the app's projector and stats.
func (a *app) newWatcher(execID string, interval time.Duration, onSnapshot func(dashboard.Snapshot)) (*dashboard.Watcher, error) {
	return dashboard.NewWatcher(a.projector, a.coord, a.bus, dashboard.Config{
		ExecutiveID:  execID,
		PollInterval: interval,
		Today:        a.coord.Today,
		OnSnapshot:   onSnapshot,
		Logf:         warnf,
	})
}

func printSnapshot(out io.Writer, s dashboard.Snapshot) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(out, "\n%s %s\n", cyan(fmt.Sprintf("=== %s on %s ===", s.ExecutiveID, s.Date)),
		gray(fmt.Sprintf("(%s at %s)", s.Trigger, s.RefreshedAt.Format("15:04:05"))))

	fmt.Fprintf(out, "\n%s\n", cyan(fmt.Sprintf("My alerts (%d)", len(s.MyAlerts))))
	printAlerts(out, s.MyAlerts)

	fmt.Fprintf(out, "\n%s\n", cyan(fmt.Sprintf("Team pool (%d)", len(s.TeamAlerts))))
	printAlerts(out, s.TeamAlerts)

	if s.Stats != nil {
		fmt.Fprintf(out, "\nClaimed %d, completed %d, success %.2f%%\n",
			s.Stats.ClaimedCount, s.Stats.CompletedCount, s.Stats.SuccessRate)
	}
}

func printAlerts(out io.Writer, alerts []types.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintf(out, "  %s\n", color.New(color.FgHiBlack).Sprint("Nothing scheduled"))
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, al := range alerts {
		status := green(string(al.ClaimStatus))
		if al.ClaimStatus == types.ClaimClaimed {
			status = yellow("claimed by " + al.ClaimedBy)
		}
		fmt.Fprintf(out, "  %-16s %-16s %-8s %s\n", al.ScheduledTime, al.CustomerName, al.Vehicle, status)
	}
}
