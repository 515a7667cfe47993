package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FS stores artifacts under root/<stage>/<source>/.
type FS struct {
	root string
	now  func() time.Time
}

// NewFS returns a filesystem repository rooted at root.
func NewFS(root string) *FS {
	return &FS{root: root, now: time.Now}
}

// WithClock replaces the clock used to stamp new artifacts.
func (f *FS) WithClock(now func() time.Time) *FS {
	f.now = now
	return f
}

// Root returns the data root directory.
func (f *FS) Root() string {
	return f.root
}

func (f *FS) dir(s Series) string {
	return filepath.Join(f.root, string(s.Stage), string(s.Source))
}

func (f *FS) Latest(s Series) (Handle, error) {
	hs, err := f.LatestN(s, 1)
	if err != nil {
		return Handle{}, err
	}
	return hs[0], nil
}

func (f *FS) LatestN(s Series, n int) ([]Handle, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	dir := f.dir(s)
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	hs, err := newest(s, dir, names, n)
	if err != nil {
		return nil, err
	}
	for i := range hs {
		hs[i].Path = filepath.Join(dir, hs[i].Name)
	}
	return hs, nil
}

func (f *FS) Read(h Handle) ([]byte, error) {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", h.Path, err)
	}
	return data, nil
}

func (f *FS) Write(s Series, payload any) (Handle, error) {
	data, err := encode(payload)
	if err != nil {
		return Handle{}, err
	}
	return f.WriteBytes(s, data)
}

// WriteBytes writes to a temp file and hard-links it into place, so readers
// never observe a partial file and an existing name is never replaced.
func (f *FS) WriteBytes(s Series, data []byte) (Handle, error) {
	if err := s.validate(); err != nil {
		return Handle{}, err
	}
	dir := f.dir(s)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	ts := f.now().UTC().Truncate(time.Second)
	name := s.Name(ts)
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return Handle{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Handle{}, fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return Handle{}, fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Handle{}, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return Handle{}, fmt.Errorf("failed to publish %s: %w", path, err)
	}
	return Handle{Series: s, Name: name, Path: path, Timestamp: ts}, nil
}

// OpenAppend creates a new series artifact for streaming writes, such as a
// websocket capture log. The caller must close the returned file.
func (f *FS) OpenAppend(s Series) (*os.File, Handle, error) {
	if err := s.validate(); err != nil {
		return nil, Handle{}, err
	}
	dir := f.dir(s)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Handle{}, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	ts := f.now().UTC().Truncate(time.Second)
	name := s.Name(ts)
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, Handle{}, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, Handle{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return file, Handle{Series: s, Name: name, Path: path, Timestamp: ts}, nil
}
