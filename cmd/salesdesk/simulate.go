package main

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"

	"github.com/salesdesk/salesdesk/internal/metrics"
	"github.com/salesdesk/salesdesk/internal/types"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Race executives over today's seeded slots",
	Long: `Seed today's demo slots and let several executives claim them concurrently.

Each executive tries every slot in a random order. Winners complete some of
their claims; the rest are left to lapse and are released by an expiry sweep
run one lease duration later. Prints the winners and per-executive stats.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		execs, _ := cmd.Flags().GetInt("executives")
		completeEvery, _ := cmd.Flags().GetInt("complete-every")
		seedValue, _ := cmd.Flags().GetInt64("rand-seed")
		pushURL, _ := cmd.Flags().GetString("push-url")

		ctx := context.Background()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := runSimulation(ctx, a, simulationOptions{
			Executives:    execs,
			CompleteEvery: completeEvery,
			Seed:          seedValue,
		})
		if err != nil {
			return err
		}
		printSimulation(result)

		if pushURL != "" {
			if err := push.New(pushURL, "salesdesk_simulate").Gatherer(metrics.Registry).Push(); err != nil {
				warnf("warning: failed to push metrics to %s: %v", pushURL, err)
			} else {
				fmt.Printf("Pushed metrics to %s\n", pushURL)
			}
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().IntP("executives", "n", 5, "Number of competing executives")
	simulateCmd.Flags().Int("complete-every", 2, "Each executive completes every Nth slot it wins (0 = none)")
	simulateCmd.Flags().Int64("rand-seed", 1, "Seed for the claim order shuffle")
	simulateCmd.Flags().String("push-url", "", "Prometheus Pushgateway URL to push metrics to when done")
	rootCmd.AddCommand(simulateCmd)
}

type simulationOptions struct {
	Executives    int
	CompleteEvery int
	Seed          int64
}

type simulationResult struct {
	Date      string
	Slots     []*types.Schedule
	Winners   map[string]string // schedule id -> executive
	Attempts  int
	Completed []string
	Released  []string
	Stats     []*types.ExecutiveStats
}

func runSimulation(ctx context.Context, a *app, opts simulationOptions) (*simulationResult, error) {
	if opts.Executives < 1 {
		return nil, fmt.Errorf("%w: need at least one executive", types.ErrValidation)
	}

	slots, err := a.seedToday(ctx)
	if err != nil {
		return nil, err
	}
	res := &simulationResult{
		Date:    a.coord.Today(),
		Slots:   slots,
		Winners: make(map[string]string),
	}

	// Shuffle per executive up front; math/rand sources are not goroutine safe
	rng := rand.New(rand.NewSource(opts.Seed))
	orders := make([][]*types.Schedule, opts.Executives)
	for i := range orders {
		order := append([]*types.Schedule(nil), slots...)
		rng.Shuffle(len(order), func(x, y int) { order[x], order[y] = order[y], order[x] })
		orders[i] = order
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	for i := 0; i < opts.Executives; i++ {
		exec := fmt.Sprintf("E%d", i+1)
		wg.Add(1)
		go func(order []*types.Schedule) {
			defer wg.Done()
			won := 0
			for _, s := range order {
				ok, err := a.coord.Claim(ctx, s.ID, exec)
				mu.Lock()
				res.Attempts++
				if err != nil {
					errs = append(errs, err)
				} else if ok {
					res.Winners[s.ID] = exec
				}
				mu.Unlock()
				if err != nil || !ok {
					continue
				}

				won++
				if opts.CompleteEvery > 0 && won%opts.CompleteEvery == 0 {
					if _, err := a.coord.Complete(ctx, s.ID, exec); err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
						continue
					}
					mu.Lock()
					res.Completed = append(res.Completed, s.ID)
					mu.Unlock()
				}
			}
		}(orders[i])
	}
	wg.Wait()
	if len(errs) > 0 {
		return nil, fmt.Errorf("simulation failed: %w", errs[0])
	}

	// Everything not completed lapses one lease later
	res.Released, err = a.coord.SweepExpired(ctx, time.Now().Add(a.coord.LeaseDuration()+time.Second))
	if err != nil {
		return nil, err
	}

	res.Stats, err = a.coord.TeamStats(ctx, res.Date)
	if err != nil {
		return nil, err
	}
	sort.Strings(res.Completed)
	return res, nil
}

func printSimulation(res *simulationResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("=== Claim race for %s ===", res.Date)))

	completed := make(map[string]bool, len(res.Completed))
	for _, id := range res.Completed {
		completed[id] = true
	}
	for _, s := range res.Slots {
		outcome := yellow("released")
		if completed[s.ID] {
			outcome = green("completed")
		}
		fmt.Printf("  %s  %-16s %-8s won by %s  %s\n",
			s.Time, s.CustomerName, s.VehicleInterest, res.Winners[s.ID], outcome)
	}

	fmt.Printf("\n%d claim attempt(s), %d won, %d completed, %d released\n\n",
		res.Attempts, len(res.Winners), len(res.Completed), len(res.Released))

	fmt.Printf("%s\n", cyan("Executive stats"))
	if len(res.Stats) == 0 {
		fmt.Printf("  %s\n", gray("No claims recorded"))
		return
	}
	for _, st := range res.Stats {
		fmt.Printf("  %-4s claimed %d, completed %d, success %.2f%%\n",
			st.ExecutiveID, st.ClaimedCount, st.CompletedCount, st.SuccessRate)
	}
	fmt.Println()
}
