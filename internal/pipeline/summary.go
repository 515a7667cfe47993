package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
)

// Summary is the completion report every stage produces, successful or not.
type Summary struct {
	Stage       string
	Source      models.Source
	Inputs      []string
	FilesRead   int
	Processed   int
	Skipped     int
	Written     int
	Output      string
	SkipReasons map[string]int
	// Counters holds stage-specific counts such as join mappings or tag
	// frequencies.
	Counters map[string]int
	Notes    []string
	Started  time.Time
	Duration time.Duration
}

// NewSummary starts an empty report for stage.
func NewSummary(stage string, source models.Source) *Summary {
	return &Summary{
		Stage:       stage,
		Source:      source,
		SkipReasons: make(map[string]int),
		Counters:    make(map[string]int),
	}
}

func (s *Summary) input(name string) {
	s.Inputs = append(s.Inputs, name)
	s.FilesRead++
}

func (s *Summary) absorb(t *models.Tally) {
	if t == nil {
		return
	}
	s.Processed += t.Processed
	for reason, n := range t.Skipped {
		s.SkipReasons[reason] += n
		s.Skipped += n
	}
}

func (s *Summary) note(format string, args ...any) {
	s.Notes = append(s.Notes, fmt.Sprintf(format, args...))
}

// Print renders the summary as an aligned table.
func (s *Summary) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "stage\t%s\n", s.Stage)
	fmt.Fprintf(tw, "source\t%s\n", s.Source)
	fmt.Fprintf(tw, "files read\t%d\n", s.FilesRead)
	for _, in := range s.Inputs {
		fmt.Fprintf(tw, "  input\t%s\n", in)
	}
	fmt.Fprintf(tw, "records processed\t%d\n", s.Processed)
	fmt.Fprintf(tw, "records skipped\t%d\n", s.Skipped)
	for _, k := range sortedKeys(s.SkipReasons) {
		fmt.Fprintf(tw, "  %s\t%d\n", k, s.SkipReasons[k])
	}
	fmt.Fprintf(tw, "records written\t%d\n", s.Written)
	for _, k := range sortedKeys(s.Counters) {
		fmt.Fprintf(tw, "%s\t%d\n", k, s.Counters[k])
	}
	if s.Output != "" {
		fmt.Fprintf(tw, "output\t%s\n", s.Output)
	}
	for _, n := range s.Notes {
		fmt.Fprintf(tw, "note\t%s\n", n)
	}
	return tw.Flush()
}

func (s *Summary) log(err error) {
	fields := map[string]any{
		"stage":       s.Stage,
		"source":      string(s.Source),
		"files_read":  s.FilesRead,
		"processed":   s.Processed,
		"skipped":     s.Skipped,
		"written":     s.Written,
		"duration_ms": s.Duration.Milliseconds(),
	}
	if s.Output != "" {
		fields["output"] = s.Output
	}
	if len(s.SkipReasons) > 0 {
		fields["skip_reasons"] = s.SkipReasons
	}
	if len(s.Notes) > 0 {
		fields["notes"] = strings.Join(s.Notes, "; ")
	}
	if err != nil {
		fields["error"] = err.Error()
		logger.Fields(logger.ErrorLevel, "stage failed", fields)
		return
	}
	level := logger.InfoLevel
	if s.Written == 0 {
		level = logger.WarnLevel
	}
	logger.Fields(level, "stage complete", fields)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
