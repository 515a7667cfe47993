package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/polyedge/internal/capture"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/pipeline"
	"github.com/rewired-gh/polyedge/internal/polymarket"
	"github.com/rewired-gh/polyedge/internal/repository"
)

func captureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture raw snapshots into the data directory",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "kalshi",
			Short: "Fetch Kalshi events with nested markets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.captureKalshi(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "polymarket",
			Short: "Fetch Gamma events and the CLOB books of their tokens",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.capturePolymarket(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "har FILE",
			Short: "Extract books, bookmaker games and Gamma events from a HAR export",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.captureHAR(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "ws",
			Short: "Record the order-book websocket for the configured duration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.captureWS(cmd.Context())
			},
		},
	)
	return cmd
}

// recordCapture feeds a capture's outcome to the same recorders as the
// pipeline stages.
func (a *app) recordCapture(ctx context.Context, s *pipeline.Summary, err error) error {
	s.Duration = time.Since(s.Started)
	var recorders []pipeline.Recorder
	if a.store != nil {
		recorders = append(recorders, a.store)
	}
	if a.metrics != nil {
		recorders = append(recorders, a.metrics)
	}
	for _, rec := range recorders {
		if rerr := rec.RecordStage(ctx, s, err); rerr != nil {
			logger.Warn("Failed to record %s: %v", s.Stage, rerr)
		}
	}
	return a.report(ctx, err, s)
}

func newCaptureSummary(stage string, source models.Source) *pipeline.Summary {
	s := pipeline.NewSummary(stage, source)
	s.Started = time.Now().UTC()
	return s
}

func (a *app) captureKalshi(ctx context.Context) error {
	s := newCaptureSummary("capture-kalshi", models.SourceKalshi)
	snap, err := capture.FetchKalshi(ctx, a.httpClient(), capture.KalshiOptions{
		URL:      a.cfg.Capture.KalshiURL,
		Params:   a.cfg.Capture.KalshiParams,
		League:   a.cfg.Bookmaker.League,
		MaxPages: a.cfg.Capture.MaxPages,
	}, time.Now())
	if err == nil {
		s.Counters["pages"] = snap.Pages
		err = a.save(s, repository.KalshiEvents, snap, len(snap.Events))
	}
	return a.recordCapture(ctx, s, err)
}

func (a *app) capturePolymarket(ctx context.Context) error {
	s := newCaptureSummary("capture-polymarket", models.SourcePolymarket)
	client := polymarket.NewClient(a.cfg.Capture.GammaURL, a.cfg.Capture.ClobURL, a.httpClient())

	err := func() error {
		events, err := client.FetchEvents(ctx, a.cfg.Capture.GammaLimit, a.cfg.Capture.MaxPages)
		if err != nil {
			return err
		}
		if err := a.save(s, repository.PolymarketGamma, events, len(events)); err != nil {
			return err
		}
		tokens := polymarket.TokenIDs(events, a.cfg.Capture.BookTokens)
		s.Counters["tokens"] = len(tokens)
		if len(tokens) == 0 {
			s.Notes = append(s.Notes, "no open markets with token ids; books not fetched")
			return nil
		}
		books, err := client.FetchBooks(ctx, tokens, 50)
		if err != nil {
			return err
		}
		return a.save(s, repository.PolymarketBooks, books, len(books))
	}()
	return a.recordCapture(ctx, s, err)
}

func (a *app) captureHAR(ctx context.Context, path string) error {
	s := newCaptureSummary("capture-har", models.SourcePolymarket)
	s.Inputs = append(s.Inputs, path)
	s.FilesRead = 1

	err := func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		h, err := capture.ParseHAR(data)
		if err != nil {
			return err
		}
		c := a.cfg.Capture
		jobs := []struct {
			name   string
			series repository.Series
			ex     capture.Extraction
		}{
			{"books", repository.PolymarketBooks, h.ExtractBooks(capture.Rule(c.BooksRule))},
			{"games", repository.BookmakerGames, h.ExtractGames(capture.Rule(c.BookmakerRule), c.SportID, a.cfg.Bookmaker.Competition)},
			{"gamma events", repository.PolymarketGamma, h.ExtractGamma(capture.Rule(c.GammaRule))},
		}
		for _, job := range jobs {
			s.Processed += job.ex.Matched
			if job.ex.Undecoded > 0 {
				s.SkipReasons["undecodable body"] += job.ex.Undecoded
				s.Skipped += job.ex.Undecoded
			}
			s.Counters[job.name] = len(job.ex.Items)
			if len(job.ex.Items) == 0 {
				s.Notes = append(s.Notes, fmt.Sprintf("no %s found", job.name))
				continue
			}
			if err := a.save(s, job.series, job.ex.Items, len(job.ex.Items)); err != nil {
				return err
			}
		}
		return nil
	}()
	return a.recordCapture(ctx, s, err)
}

func (a *app) captureWS(ctx context.Context) error {
	s := newCaptureSummary("capture-ws", models.SourcePolymarket)

	err := func() error {
		assets := a.cfg.Capture.AssetIDs
		if len(assets) == 0 {
			h, err := a.repo.Latest(repository.PolymarketBooks)
			if err != nil {
				return fmt.Errorf("no asset_ids configured and no books snapshot to pick from: %w", err)
			}
			books, err := repository.ReadJSON(a.repo, h)
			if err != nil {
				return err
			}
			s.Inputs = append(s.Inputs, h.Name)
			s.FilesRead = 1
			assets = capture.TopAssets(books, a.cfg.Capture.TopAssets)
		}
		s.Counters["assets"] = len(assets)

		f, h, err := a.repo.OpenAppend(repository.WSCapture)
		if err != nil {
			return err
		}
		defer f.Close()
		s.Output = h.Path

		rec := capture.NewWSRecorder(capture.WSOptions{
			URL:          a.cfg.Capture.WSURL,
			Channel:      a.cfg.Capture.WSChannel,
			AssetIDs:     assets,
			Duration:     a.cfg.Capture.WSDuration,
			PingInterval: a.cfg.Capture.PingInterval,
		})
		if a.metrics != nil {
			rec.WithMessageHook(a.metrics.CaptureMessages.Inc)
		}
		stats, err := rec.Record(ctx, f)
		s.Processed = stats.Messages
		s.Written = stats.Messages
		s.Counters["pings"] = stats.Pings
		return err
	}()
	return a.recordCapture(ctx, s, err)
}

// save writes one raw artifact and accounts for it in s.
func (a *app) save(s *pipeline.Summary, series repository.Series, payload any, count int) error {
	h, err := a.repo.Write(series, payload)
	if err != nil {
		return err
	}
	if s.Output != "" {
		s.Output += ", "
	}
	s.Output += h.Path
	s.Written += count
	logger.Info("Wrote %d records to %s", count, h.Path)
	return nil
}
