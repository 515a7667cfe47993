// Package repository selects and writes timestamped pipeline artifacts.
// Stages address files by series (stage, source, kind) and never build paths
// themselves; "latest" is the lexicographic maximum of the embedded timestamp.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/polyedge/internal/models"
)

// TimestampLayout is embedded in every artifact name. It is zero-padded UTC so
// that lexicographic order equals chronological order.
const TimestampLayout = "2006-01-02T15-04-05Z"

// Stage is the top-level data directory an artifact lives in.
type Stage string

const (
	StageRaw        Stage = "raw"
	StageNormalized Stage = "normalized"
	StageComputed   Stage = "computed"
)

var (
	// ErrExists is returned when a write targets a name that is already taken.
	ErrExists = errors.New("artifact already exists")
	// ErrInvalidSeries is returned for a series with an empty component.
	ErrInvalidSeries = errors.New("invalid series")
)

// Series names one family of timestamped artifacts.
type Series struct {
	Stage  Stage
	Source models.Source
	Kind   string
	Ext    string
}

// Dir is the series directory relative to the data root.
func (s Series) Dir() string {
	return string(s.Stage) + "/" + string(s.Source)
}

// Pattern is the glob the series' names match.
func (s Series) Pattern() string {
	return s.Kind + "_*." + s.ext()
}

// Name builds the artifact name for a capture time.
func (s Series) Name(ts time.Time) string {
	return s.Kind + "_" + ts.UTC().Format(TimestampLayout) + "." + s.ext()
}

func (s Series) ext() string {
	if s.Ext == "" {
		return "json"
	}
	return s.Ext
}

func (s Series) validate() error {
	if s.Stage == "" || s.Source == "" || s.Kind == "" {
		return fmt.Errorf("%w: stage, source and kind are required", ErrInvalidSeries)
	}
	return nil
}

// parse returns the embedded timestamp when name belongs to the series.
func (s Series) parse(name string) (time.Time, bool) {
	prefix := s.Kind + "_"
	suffix := "." + s.ext()
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	ts, err := time.Parse(TimestampLayout, strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Handle identifies one stored artifact.
type Handle struct {
	Series    Series
	Name      string
	Path      string
	Timestamp time.Time
}

// Repository is the pipeline's only view of the data directory.
type Repository interface {
	// Latest returns the newest artifact of the series.
	Latest(s Series) (Handle, error)
	// LatestN returns the n newest artifacts, oldest first. Fewer than n is a
	// MissingInputError.
	LatestN(s Series, n int) ([]Handle, error)
	Read(h Handle) ([]byte, error)
	// Write stores payload as 2-space indented JSON under a fresh name.
	Write(s Series, payload any) (Handle, error)
	WriteBytes(s Series, data []byte) (Handle, error)
}

// ReadJSON reads an artifact and decodes it into a generic JSON value.
// Numbers decode as float64.
func ReadJSON(r Repository, h Handle) (any, error) {
	data, err := r.Read(h)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", h.Name, err)
	}
	return v, nil
}

// ReadInto reads an artifact and decodes it into out.
func ReadInto(r Repository, h Handle, out any) error {
	data, err := r.Read(h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", h.Name, err)
	}
	return nil
}

func encode(payload any) ([]byte, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return append(data, '\n'), nil
}

// newest picks the last n of names sorted ascending, keeping only series members.
func newest(s Series, dir string, names []string, n int) ([]Handle, error) {
	var handles []Handle
	for _, name := range names {
		ts, ok := s.parse(name)
		if !ok {
			continue
		}
		handles = append(handles, Handle{Series: s, Name: name, Path: dir + "/" + name, Timestamp: ts})
	}
	if len(handles) < n {
		return nil, &models.MissingInputError{Dir: dir, Pattern: s.Pattern(), Found: len(handles), Required: n}
	}
	return handles[len(handles)-n:], nil
}
