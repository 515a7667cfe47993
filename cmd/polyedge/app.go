package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rewired-gh/polyedge/internal/capture"
	"github.com/rewired-gh/polyedge/internal/config"
	"github.com/rewired-gh/polyedge/internal/delta"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/metrics"
	"github.com/rewired-gh/polyedge/internal/normalize"
	"github.com/rewired-gh/polyedge/internal/pipeline"
	"github.com/rewired-gh/polyedge/internal/repository"
	"github.com/rewired-gh/polyedge/internal/signal"
	"github.com/rewired-gh/polyedge/internal/storage"
	"github.com/rewired-gh/polyedge/internal/taxonomy"
	"github.com/rewired-gh/polyedge/internal/telegram"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg      *config.Config
	repo     *repository.FS
	runner   *pipeline.Runner
	store    *storage.Storage
	metrics  *metrics.Metrics
	notifier *telegram.Client
	out      io.Writer
}

func (a *app) open(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	if a.out == nil {
		a.out = os.Stdout
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Debug("Configuration loaded from %s", configPath)
	}

	a.repo = repository.NewFS(cfg.Data.Root)
	a.runner, err = pipeline.New(a.repo, pipelineOptions(cfg))
	if err != nil {
		return err
	}

	if cfg.Storage.Enabled {
		a.store, err = storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.runner.WithRecorder(a.store)
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New("")
		a.runner.WithRecorder(a.metrics)
	}
	if cfg.Telegram.Enabled {
		a.notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelay)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		if a.store != nil {
			a.notifier.WithHistory(a.store, cfg.Telegram.Cooldown)
		}
		a.runner.WithNotifier(a.notifier)
		logger.Debug("Telegram client initialized")
	}
	return nil
}

func (a *app) close() {
	if a.metrics != nil && a.cfg != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
			logger.Error("Failed to write metrics: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}
}

// report prints each summary and, when a stage failed and Telegram is
// enabled, sends the failure.
func (a *app) report(ctx context.Context, err error, summaries ...*pipeline.Summary) error {
	for _, s := range summaries {
		if s == nil {
			continue
		}
		if perr := s.Print(a.out); perr != nil {
			logger.Warn("Failed to print summary: %v", perr)
		}
		fmt.Fprintln(a.out)
	}
	if err != nil && a.notifier != nil {
		if nerr := a.notifier.SendError(ctx, err); nerr != nil {
			logger.Error("Failed to send error notification: %v", nerr)
		}
	}
	return err
}

// httpClient builds the capture client, counting outcomes when metrics are
// enabled.
func (a *app) httpClient() *capture.Client {
	c := capture.NewClient(a.cfg.Capture.Timeout, a.cfg.Capture.MaxRetries, a.cfg.Capture.RatePerSecond)
	if a.metrics != nil {
		c.WithObserver(func(outcome string) {
			a.metrics.CaptureRequests.WithLabelValues(outcome).Inc()
		})
	}
	return c
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	rules := make([]taxonomy.Rule, 0, len(cfg.Taxonomy.Rules))
	for _, r := range cfg.Taxonomy.Rules {
		rules = append(rules, taxonomy.Rule{Tag: r.Tag, Keywords: r.Keywords})
	}
	return pipeline.Options{
		Bookmaker: normalize.BookmakerOptions{
			Competition:   cfg.Bookmaker.Competition,
			LineType:      cfg.Bookmaker.LineType,
			BookmakerID:   cfg.Bookmaker.BookmakerID,
			BookmakerName: cfg.Bookmaker.BookmakerName,
			League:        cfg.Bookmaker.League,
		},
		Rules:      rules,
		Vocabulary: cfg.Taxonomy.Vocabulary,
		Signal: signal.Options{
			ResolutionKeyword: cfg.Signal.ResolutionKeyword,
			MaxSpread:         cfg.Signal.MaxSpread,
			NeutralTightness:  cfg.Signal.NeutralTightness,
			TopInstances:      cfg.Signal.TopInstances,
		},
		Delta: delta.Options{
			EdgeConviction:     cfg.Delta.EdgeConviction,
			IncludeNewEntities: cfg.Delta.IncludeNewEntities,
		},
		ArbTaxonomy: cfg.Arb.Taxonomy,
	}
}
