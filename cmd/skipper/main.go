package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "charm.land/bubbletea/v2"

	"github.com/noah-isme/skip-hire/internal/app"
	"github.com/noah-isme/skip-hire/internal/config"
	"github.com/noah-isme/skip-hire/internal/obs"
	"github.com/noah-isme/skip-hire/internal/pricing"
	"github.com/noah-isme/skip-hire/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "skipper:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; logs only go to OBS_LOG_FILE.
	out, closeLog, err := app.OpenLogOutput(cfg.Obs.LogFile, io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	logger := obs.NewLogger(out, cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "skipper").Logger()

	// Redis only backs the HTTP rate limiter.
	cfg.RedisURL = ""
	deps, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	p, err := deps.NewPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	model := tui.New(p, tui.Options{
		Location:     "NR32, Lowestoft",
		FetchTimeout: cfg.Skips.FetchTimeout,
	})
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("run ui: %w", err)
	}

	m, ok := final.(tui.Model)
	if !ok || m.Confirmed() == nil {
		return nil
	}
	c := m.Confirmed()
	fmt.Printf("%s, %s, %s\n", c.Title, c.HirePeriodLabel, c.TotalLabel)
	if c.TransportCost != nil {
		fmt.Printf("Transport cost: %s\n", pricing.Format(*c.TransportCost))
	}
	logger.Info().Int64("skip_id", c.ID).Str("total", c.Total.StringFixed(2)).Msg("checkout_confirmed")
	return nil
}
