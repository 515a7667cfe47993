package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/pipeline"
)

func TestRecordStageAndTextfile(t *testing.T) {
	m := New("")
	ctx := context.Background()
	ok := &pipeline.Summary{
		Stage:       pipeline.StageJoin,
		Source:      models.SourcePolymarket,
		Processed:   10,
		Skipped:     3,
		Written:     7,
		SkipReasons: map[string]int{models.SkipUnmapped: 3},
		Started:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Duration:    20 * time.Millisecond,
	}
	require.NoError(t, m.RecordStage(ctx, ok, nil))
	require.NoError(t, m.RecordStage(ctx, &pipeline.Summary{Stage: pipeline.StageDelta}, errors.New("missing input")))
	m.CaptureMessages.Add(4)

	path := filepath.Join(t.TempDir(), "polyedge.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `polyedge_pipeline_stage_runs_total{stage="join",status="ok"} 1`)
	assert.Contains(t, out, `polyedge_pipeline_stage_runs_total{stage="delta",status="failed"} 1`)
	assert.Contains(t, out, `polyedge_pipeline_records_processed_total{stage="join"} 10`)
	assert.Contains(t, out, `polyedge_pipeline_records_skipped_total{reason="unmapped_token",stage="join"} 3`)
	assert.Contains(t, out, `polyedge_pipeline_records_written_total{stage="join"} 7`)
	assert.Contains(t, out, `polyedge_pipeline_last_success_timestamp_seconds{stage="join"} 1.7723556e+09`)
	assert.NotContains(t, out, `last_success_timestamp_seconds{stage="delta"}`)
	assert.Contains(t, out, `polyedge_capture_ws_messages_total 4`)
}
