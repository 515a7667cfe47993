// Package pipeline runs the batch stages against a repository: each stage
// reads the latest artifact(s) of its input series, computes, writes one new
// timestamped artifact and returns a completion summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/polyedge/internal/arb"
	"github.com/rewired-gh/polyedge/internal/delta"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/normalize"
	"github.com/rewired-gh/polyedge/internal/repository"
	"github.com/rewired-gh/polyedge/internal/signal"
	"github.com/rewired-gh/polyedge/internal/taxonomy"
)

// Stage names as reported in summaries and the run ledger.
const (
	StageNormalizeKalshi    = "normalize-kalshi"
	StageNormalizeBookmaker = "normalize-bookmaker"
	StageNormalizeBooks     = "normalize-books"
	StageNormalizeWS        = "normalize-ws"
	StageClassify           = "classify"
	StageJoin               = "join"
	StageSignal             = "signal"
	StageDelta              = "delta"
	StageArb                = "arb"
)

// Recorder observes every finished stage. runErr is nil on success.
type Recorder interface {
	RecordStage(ctx context.Context, s *Summary, runErr error) error
}

// EdgeNotifier is told about matches the Delta Engine labels EDGE FORMING.
type EdgeNotifier interface {
	NotifyEdges(ctx context.Context, edges []models.DeltaRecord) error
}

// Options configure the stage engines.
type Options struct {
	Bookmaker   normalize.BookmakerOptions
	Rules       []taxonomy.Rule
	Vocabulary  []string
	Signal      signal.Options
	Delta       delta.Options
	ArbTaxonomy string
}

// DefaultOptions mirror the engine defaults.
func DefaultOptions() Options {
	return Options{
		Rules:       taxonomy.DefaultRules(),
		Vocabulary:  taxonomy.DefaultVocabulary(),
		Signal:      signal.DefaultOptions(),
		Delta:       delta.DefaultOptions(),
		ArbTaxonomy: arb.DefaultTaxonomy,
	}
}

// Runner executes stages against one repository.
type Runner struct {
	repo       repository.Repository
	opts       Options
	classifier *taxonomy.Classifier
	signal     *signal.Engine
	delta      *delta.Engine
	recorders  []Recorder
	notifier   EdgeNotifier
	now        func() time.Time
}

// New builds a runner, validating the taxonomy rule table.
func New(repo repository.Repository, opts Options) (*Runner, error) {
	if len(opts.Rules) == 0 {
		opts.Rules = taxonomy.DefaultRules()
	}
	if len(opts.Vocabulary) == 0 {
		opts.Vocabulary = taxonomy.DefaultVocabulary()
	}
	if opts.ArbTaxonomy == "" {
		opts.ArbTaxonomy = arb.DefaultTaxonomy
	}
	classifier, err := taxonomy.New(opts.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid taxonomy rules: %w", err)
	}
	return &Runner{
		repo:       repo,
		opts:       opts,
		classifier: classifier,
		signal:     signal.New(opts.Signal),
		delta:      delta.New(opts.Delta),
		now:        time.Now,
	}, nil
}

// WithRecorder adds a stage observer.
func (r *Runner) WithRecorder(rec Recorder) *Runner {
	r.recorders = append(r.recorders, rec)
	return r
}

// WithNotifier sets the edge notifier used after the delta stage.
func (r *Runner) WithNotifier(n EdgeNotifier) *Runner {
	r.notifier = n
	return r
}

// WithClock replaces the clock used for generated_at stamps.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// run wraps one stage: timing, logging and recorders. The summary is
// returned even when the stage fails.
func (r *Runner) run(ctx context.Context, stage string, source models.Source, fn func(*Summary) error) (*Summary, error) {
	s := NewSummary(stage, source)
	s.Started = r.now().UTC()
	start := time.Now()

	err := ctx.Err()
	if err == nil {
		err = fn(s)
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", stage, err)
	}
	s.Duration = time.Since(start)
	s.log(err)

	for _, rec := range r.recorders {
		if recErr := rec.RecordStage(ctx, s, err); recErr != nil {
			logger.Warn("Failed to record %s run: %v", stage, recErr)
		}
	}
	return s, err
}

func (r *Runner) write(s *Summary, series repository.Series, payload any, count int) error {
	h, err := r.repo.Write(series, payload)
	if err != nil {
		return err
	}
	s.Output = h.Path
	s.Written = count
	if count == 0 {
		s.note("no qualifying rows; wrote empty artifact")
	}
	return nil
}

func (r *Runner) snapshot(s *Summary, series repository.Series) (normalize.Snapshot, error) {
	h, err := r.repo.Latest(series)
	if err != nil {
		return normalize.Snapshot{}, err
	}
	data, err := repository.ReadJSON(r.repo, h)
	if err != nil {
		return normalize.Snapshot{}, err
	}
	s.input(h.Name)
	return normalize.Snapshot{Name: h.Name, Captured: h.Timestamp, Data: data}, nil
}

func (r *Runner) rows(s *Summary, series repository.Series) ([]models.NormalizedRow, error) {
	h, err := r.repo.Latest(series)
	if err != nil {
		return nil, err
	}
	var rows []models.NormalizedRow
	if err := repository.ReadInto(r.repo, h, &rows); err != nil {
		return nil, err
	}
	s.input(h.Name)
	return rows, nil
}

// normalized shares the error policy of every normalizer stage: counts are
// kept even when nothing usable came out.
func (r *Runner) normalized(s *Summary, out repository.Series, rows any, count int, tally *models.Tally, err error) error {
	s.absorb(tally)
	if err != nil {
		return err
	}
	return r.write(s, out, rows, count)
}

// NormalizeKalshi flattens the latest Kalshi events snapshot.
func (r *Runner) NormalizeKalshi(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageNormalizeKalshi, models.SourceKalshi, func(s *Summary) error {
		snap, err := r.snapshot(s, repository.KalshiEvents)
		if err != nil {
			return err
		}
		rows, tally, err := normalize.Kalshi(snap)
		return r.normalized(s, repository.KalshiFlat, rows, len(rows), tally, err)
	})
}

// NormalizeBookmaker extracts 3-way odds from the latest 365Scores snapshot.
func (r *Runner) NormalizeBookmaker(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageNormalizeBookmaker, models.SourceBookmaker, func(s *Summary) error {
		snap, err := r.snapshot(s, repository.BookmakerGames)
		if err != nil {
			return err
		}
		matches, tally, err := normalize.Bookmaker(snap, r.opts.Bookmaker)
		return r.normalized(s, repository.BookmakerNormalized, matches, len(matches), tally, err)
	})
}

// NormalizeBooks reduces the latest Polymarket order-book snapshot to
// top-of-book rows.
func (r *Runner) NormalizeBooks(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageNormalizeBooks, models.SourcePolymarket, func(s *Summary) error {
		snap, err := r.snapshot(s, repository.PolymarketBooks)
		if err != nil {
			return err
		}
		rows, tally, err := normalize.Books(snap)
		return r.normalized(s, repository.BooksNormalized, rows, len(rows), tally, err)
	})
}

// NormalizeWS reduces the latest websocket capture log to book rows.
func (r *Runner) NormalizeWS(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageNormalizeWS, models.SourcePolymarket, func(s *Summary) error {
		h, err := r.repo.Latest(repository.WSCapture)
		if err != nil {
			return err
		}
		data, err := r.repo.Read(h)
		if err != nil {
			return err
		}
		s.input(h.Name)
		rows, tally, err := normalize.WSBooks(h.Name, h.Timestamp, data)
		return r.normalized(s, repository.WSBooks, rows, len(rows), tally, err)
	})
}

// Classify tags the latest flat Kalshi rows and clusters the UNKNOWN titles.
// The clusters are diagnostic and only reported in the summary.
func (r *Runner) Classify(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageClassify, models.SourceKalshi, func(s *Summary) error {
		rows, err := r.rows(s, repository.KalshiFlat)
		if err != nil {
			return err
		}
		s.Processed = len(rows)
		counts := r.classifier.ClassifyRows(rows)
		for tag, n := range counts {
			s.Counters["tag "+tag] = n
		}
		for _, c := range taxonomy.ClusterUnknown(rows, r.opts.Vocabulary) {
			s.note("unknown cluster %q: %d titles", c.Keyword, len(c.Titles))
		}
		if rows == nil {
			rows = []models.NormalizedRow{}
		}
		return r.write(s, repository.KalshiClassified, rows, len(rows))
	})
}

// Inspect lists how the latest classified rows tagged tag carry their prices.
func (r *Runner) Inspect(ctx context.Context, tag string) ([]taxonomy.Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := r.repo.Latest(repository.KalshiClassified)
	if err != nil {
		return nil, err
	}
	var rows []models.NormalizedRow
	if err := repository.ReadInto(r.repo, h, &rows); err != nil {
		return nil, err
	}
	return taxonomy.Inspect(rows, tag)
}

// RunAll executes the Kalshi chain in dependency order: normalize, classify,
// signal, arb, then delta when enough signal history exists. It stops at the
// first failure.
func (r *Runner) RunAll(ctx context.Context) ([]*Summary, error) {
	steps := []func(context.Context) (*Summary, error){
		r.NormalizeKalshi,
		r.Classify,
		r.Signal,
		r.Arb,
		r.Delta,
	}
	var out []*Summary
	for _, step := range steps {
		s, err := step(ctx)
		out = append(out, s)
		if err != nil {
			var missing *models.MissingInputError
			if errors.As(err, &missing) && s.Stage == StageDelta {
				logger.Warn("Skipping delta: %v", err)
				return out, nil
			}
			return out, err
		}
	}
	return out, nil
}
