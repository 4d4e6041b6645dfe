package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/salesdesk/salesdesk/internal/ai"
	"github.com/salesdesk/salesdesk/internal/alerts"
	"github.com/salesdesk/salesdesk/internal/claims"
	"github.com/salesdesk/salesdesk/internal/config"
	"github.com/salesdesk/salesdesk/internal/cost"
	"github.com/salesdesk/salesdesk/internal/events"
	"github.com/salesdesk/salesdesk/internal/metrics"
	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/scheduling"
	"github.com/salesdesk/salesdesk/internal/seed"
	"github.com/salesdesk/salesdesk/internal/storage"
	"github.com/salesdesk/salesdesk/internal/types"
)

// app is the wired claim core shared by every command.
type app struct {
	cfg        config.Config
	loc        *time.Location
	store      storage.Storage
	bus        *notify.Bus
	journal    *events.Journal
	coord      *claims.Coordinator
	projector  *alerts.Projector
	text       ai.TextService
	scheduling *scheduling.Service
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	bus := notify.NewBus(
		notify.WithLogf(warnf),
		notify.WithPublishHook(func(name notify.EventName) {
			metrics.EventsPublishedTotal.WithLabelValues(string(name)).Inc()
		}),
		notify.WithFailureHook(func(name notify.EventName) {
			metrics.RecordHandlerFailure(string(name))
		}),
	)

	journal := events.NewJournal(store)
	journal.Attach(bus)

	coord, err := claims.NewCoordinator(store, bus, claims.Config{
		LeaseDuration: cfg.LeaseDuration,
		Location:      loc,
		Logf:          warnf,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	text, err := newTextService(cfg.AI)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		loc:       loc,
		store:     store,
		bus:       bus,
		journal:   journal,
		coord:     coord,
		projector: alerts.NewProjector(store),
		text:      text,
		scheduling: scheduling.NewService(store, bus, text, scheduling.Config{
			SummaryTimeout: cfg.AI.Timeout,
			Logf:           warnf,
		}),
	}, nil
}

// newTextService uses the Anthropic API when a key is configured, falling
// back to templates per call; otherwise templates only.
func newTextService(cfg config.AIConfig) (ai.TextService, error) {
	if cfg.APIKey == "" {
		return ai.Templates{}, nil
	}
	retry := ai.DefaultRetryConfig()
	retry.Timeout = cfg.Timeout

	var budget *cost.Tracker
	budgetCfg := cost.DefaultConfig()
	budgetCfg.MaxTokensPerHour = cfg.MaxTokensPerHour
	budgetCfg.MaxCostPerHour = cfg.MaxCostPerHour
	if budgetCfg.Limited() {
		var err error
		if budget, err = cost.NewTracker(budgetCfg, cost.WithLogf(warnf)); err != nil {
			return nil, err
		}
	}

	client, err := ai.NewClient(ai.ClientConfig{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Retry:             retry,
		Budget:            budget,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	fallback := ai.NewFallback(client)
	fallback.Logf = warnf
	return fallback, nil
}

// seedToday loads the demo slots for the current day.
func (a *app) seedToday(ctx context.Context) ([]*types.Schedule, error) {
	return seed.Load(ctx, a.store, a.coord.Today(), time.Now())
}

func (a *app) Close() error {
	a.journal.Close()
	return a.store.Close()
}
