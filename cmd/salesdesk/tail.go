package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/salesdesk/salesdesk/internal/notify"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow claim events mirrored to Redis",
	Long: `Subscribe to the Redis channel a running server mirrors its events to and
print each one as it arrives:
- New alerts
- Claims
- Completions and expiries
- Released leases
- Heartbeats (with --heartbeats)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if url, _ := cmd.Flags().GetString("redis-url"); url != "" {
			cfg.Redis.URL = url
		}
		showHeartbeats, _ := cmd.Flags().GetBool("heartbeats")
		if cfg.Redis.URL == "" {
			return fmt.Errorf("no redis url configured (set --redis-url or SALESDESK_REDIS_URL)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mirror, err := notify.NewRedisMirror(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			return err
		}
		defer mirror.Close()

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Following %s (Ctrl+C to stop)...\n\n", cyan("👁️"), cfg.Redis.Channel)

		err = mirror.Tail(ctx, func(e notify.WireEvent) {
			if e.Type == notify.EventAlertUpdate && !showHeartbeats {
				return
			}
			displayEvent(os.Stdout, e)
		})
		if err != nil {
			return err
		}
		fmt.Println("\n\nStopped following")
		return nil
	},
}

func init() {
	tailCmd.Flags().String("redis-url", "", "Redis URL (overrides config)")
	tailCmd.Flags().Bool("heartbeats", false, "Also show alert_update heartbeats")
	rootCmd.AddCommand(tailCmd)
}

// displayEvent prints one mirrored event on a single line.
func displayEvent(out io.Writer, e notify.WireEvent) {
	icon, c := eventStyle(e.Type)
	fmt.Fprintf(out, "%s [%s] %s %s\n",
		icon,
		e.Timestamp.Local().Format("15:04:05"),
		color.New(color.FgMagenta).Sprint(e.Type),
		c.Sprint(describeEvent(e)),
	)
}

func eventStyle(name notify.EventName) (string, *color.Color) {
	switch name {
	case notify.EventNewAlert:
		return "🆕", color.New(color.FgCyan)
	case notify.EventClaimUpdate:
		return "🔒", color.New(color.FgGreen)
	case notify.EventScheduleCompleted:
		return "✓", color.New(color.FgGreen, color.Bold)
	case notify.EventClaimReleased:
		return "🔓", color.New(color.FgYellow)
	case notify.EventScheduleExpired:
		return "⌛", color.New(color.FgRed)
	default:
		return "•", color.New(color.FgHiBlack)
	}
}

// describeEvent renders the payload fields that matter for each event type.
// Unknown shapes fall back to the raw JSON.
func describeEvent(e notify.WireEvent) string {
	switch e.Type {
	case notify.EventNewAlert:
		var p notify.NewAlertPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s for %s (%s) at %s", p.ScheduleID, p.CustomerName, p.Vehicle, p.ScheduledTime)
		}
	case notify.EventClaimUpdate:
		var p notify.ClaimUpdatePayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s claimed by %s", p.ScheduleID, p.ClaimedBy)
		}
	case notify.EventScheduleCompleted:
		var p notify.ScheduleCompletedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s completed by %s", p.ScheduleID, p.CompletedBy)
		}
	case notify.EventClaimReleased:
		var p notify.ClaimReleasedPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s released back to the pool", p.ScheduleID)
		}
	case notify.EventScheduleExpired:
		var p notify.ScheduleExpiredPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s closed as expired", p.ScheduleID)
		}
	case notify.EventAlertUpdate:
		return "heartbeat"
	}
	return string(e.Payload)
}
