package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/salesdesk/salesdesk/internal/config"
	"github.com/salesdesk/salesdesk/internal/gateway"
	"github.com/salesdesk/salesdesk/internal/jobs"
	"github.com/salesdesk/salesdesk/internal/notify"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneInterval   = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway with the expiry sweep and heartbeat",
	Long: `Start the claim coordination server.

Serves the REST API and the /ws push channel, releases lapsed claims every
sweep interval and broadcasts an alert_update heartbeat. When a Redis URL is
configured every event is also mirrored to the Redis channel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.ListenAddr = addr
		}
		seedData, _ := cmd.Flags().GetBool("seed")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, seedData)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	serveCmd.Flags().Bool("seed", false, "Load today's demo slots before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg config.Config, seedData bool) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if seedData {
		created, err := a.seedToday(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s Seeded %d slot(s) for %s\n", green("✓"), len(created), a.coord.Today())
	}

	if cfg.Redis.URL != "" {
		mirror, err := notify.NewRedisMirror(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			return err
		}
		defer mirror.Close()
		mirror.Attach(a.bus)
		fmt.Printf("Mirroring events to redis channel %s\n", cyan(cfg.Redis.Channel))
	}

	runner, err := jobs.Standard(a.loc, a.coord, a.bus, a.store, jobs.Intervals{
		Sweep:     cfg.SweepInterval,
		Heartbeat: cfg.HeartbeatInterval,
		Prune:     pruneInterval,
		Retention: cfg.EventRetention,
	}, jobs.WithLogf(warnf))
	if err != nil {
		return err
	}

	srv, err := gateway.New(gateway.Deps{
		Schedules:  a.store,
		Claims:     a.coord,
		Alerts:     a.projector,
		Scheduling: a.scheduling,
		Text:       a.text,
		Events:     a.store,
		Bus:        a.bus,
	}, gateway.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
		Logf:           warnf,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runner.Start()
	fmt.Printf("%s salesdesk listening on %s (lease %v, sweep every %v)\n",
		green("✓"), cyan(ln.Addr().String()), cfg.LeaseDuration, cfg.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := runner.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
