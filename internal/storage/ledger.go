package storage

import (
	"context"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/pipeline"
)

// RecordStage stores a finished stage's summary in the run ledger.
func (s *Storage) RecordStage(ctx context.Context, sum *pipeline.Summary, runErr error) error {
	return s.RecordRun(ctx, RunFromSummary(sum, runErr))
}

// RunFromSummary converts a stage summary to a ledger entry.
func RunFromSummary(sum *pipeline.Summary, runErr error) *models.Run {
	run := &models.Run{
		Stage:       sum.Stage,
		Source:      sum.Source,
		Status:      models.RunOK,
		Inputs:      sum.Inputs,
		Output:      sum.Output,
		FilesRead:   sum.FilesRead,
		Processed:   sum.Processed,
		Skipped:     sum.Skipped,
		Written:     sum.Written,
		SkipReasons: sum.SkipReasons,
		Counters:    sum.Counters,
		StartedAt:   sum.Started,
		Duration:    sum.Duration,
	}
	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
	}
	return run
}

var _ pipeline.Recorder = (*Storage)(nil)
