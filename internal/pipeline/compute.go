package pipeline

import (
	"context"

	"github.com/rewired-gh/polyedge/internal/arb"
	"github.com/rewired-gh/polyedge/internal/delta"
	"github.com/rewired-gh/polyedge/internal/joiner"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/normalize"
	"github.com/rewired-gh/polyedge/internal/repository"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// Join enriches the latest normalized books with the latest gamma metadata.
func (r *Runner) Join(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageJoin, models.SourcePolymarket, func(s *Summary) error {
		meta, err := r.snapshot(s, repository.PolymarketGamma)
		if err != nil {
			return err
		}
		ix, err := joiner.BuildIndex(meta.Name, meta.Data)
		if err != nil {
			return err
		}
		books, err := r.rows(s, repository.BooksNormalized)
		if err != nil {
			return err
		}

		res := joiner.Join(ix, books)
		s.Processed = len(books)
		s.Skipped = res.Skipped
		if res.Skipped > 0 {
			s.SkipReasons[models.SkipUnmapped] = res.Skipped
		}
		s.Counters["mappings"] = res.Mappings
		s.Counters["markets indexed"] = ix.Markets()
		s.Counters["joined"] = res.Joined
		return r.write(s, repository.JoinedOutcomes, res.Rows, res.Joined)
	})
}

// Signal scores resolution-style markets in the latest classified snapshot.
func (r *Runner) Signal(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageSignal, models.SourceKalshi, func(s *Summary) error {
		snap, err := r.snapshot(s, repository.KalshiClassified)
		if err != nil {
			return err
		}
		rows, err := schema.Rows(snap.Name, snap.Data)
		if err != nil {
			return err
		}

		res := r.signal.Run(rows)
		s.absorb(res.Tally)
		s.Counters["unscored matches"] = len(res.Unscored)
		report := models.SignalReport{
			GeneratedAt: normalize.Stamp(r.now()),
			InputFile:   snap.Name,
			Matches:     res.Matches,
			Unscored:    res.Unscored,
		}
		if report.Matches == nil {
			report.Matches = []models.MatchSignal{}
		}
		return r.write(s, repository.ResolutionSignal, report, len(res.Matches))
	})
}

// Delta diffs the two newest signal artifacts and notifies about forming
// edges. Fewer than two artifacts is a MissingInputError.
func (r *Runner) Delta(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageDelta, models.SourceKalshi, func(s *Summary) error {
		hs, err := r.repo.LatestN(repository.ResolutionSignal, 2)
		if err != nil {
			return err
		}
		var snaps [2]delta.Snapshot
		for i, h := range hs {
			data, err := repository.ReadJSON(r.repo, h)
			if err != nil {
				return err
			}
			s.input(h.Name)
			snaps[i] = delta.Snapshot{Name: h.Name, Data: data}
		}

		res, err := r.delta.Compare(snaps[0], snaps[1])
		if err != nil {
			return err
		}
		s.absorb(res.Tally)
		s.Counters["new entities"] = len(res.NewEntities)

		var edges []models.DeltaRecord
		for _, rec := range res.Records {
			s.Counters["phase "+string(rec.Phase)]++
			if rec.Phase == models.PhaseEdgeForming {
				edges = append(edges, rec)
			}
		}

		report := models.DeltaReport{
			GeneratedAt:  normalize.Stamp(r.now()),
			PreviousFile: snaps[0].Name,
			CurrentFile:  snaps[1].Name,
			Matches:      res.Records,
		}
		if !r.opts.Delta.IncludeNewEntities {
			report.NewEntities = res.NewEntities
		}
		if err := r.write(s, repository.TimeseriesDelta, report, len(res.Records)); err != nil {
			return err
		}

		if r.notifier != nil && len(edges) > 0 {
			if err := r.notifier.NotifyEdges(ctx, edges); err != nil {
				logger.Warn("Failed to send edge notification: %v", err)
				s.note("edge notification failed: %v", err)
			}
		}
		return nil
	})
}

// Arb scores the configured taxonomy in the latest classified snapshot.
func (r *Runner) Arb(ctx context.Context) (*Summary, error) {
	return r.run(ctx, StageArb, models.SourceKalshi, func(s *Summary) error {
		snap, err := r.snapshot(s, repository.KalshiClassified)
		if err != nil {
			return err
		}
		rows, err := schema.Rows(snap.Name, snap.Data)
		if err != nil {
			return err
		}

		res := arb.Score(rows, r.opts.ArbTaxonomy)
		s.absorb(res.Tally)
		report := models.ArbReport{
			GeneratedAt: normalize.Stamp(r.now()),
			InputFile:   snap.Name,
			Taxonomy:    res.Taxonomy,
			Baseline:    res.Baseline,
			Rows:        res.Rows,
		}
		return r.write(s, repository.Arb(res.Taxonomy), report, len(res.Rows))
	})
}
