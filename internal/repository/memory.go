package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Repository for tests.
type Memory struct {
	mu    sync.RWMutex
	files map[string]map[string][]byte // dir -> name -> data
	now   func() time.Time
}

// NewMemory returns an empty repository whose clock starts at start and
// advances one second per write.
func NewMemory(start time.Time) *Memory {
	t := start.UTC()
	return &Memory{
		files: make(map[string]map[string][]byte),
		now: func() time.Time {
			cur := t
			t = t.Add(time.Second)
			return cur
		},
	}
}

// WithClock replaces the clock used to stamp new artifacts.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Put stores data under an explicit name, bypassing the clock.
func (m *Memory) Put(s Series, name string, data []byte) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir := s.Dir()
	if m.files[dir] == nil {
		m.files[dir] = make(map[string][]byte)
	}
	m.files[dir][name] = append([]byte(nil), data...)
	ts, _ := s.parse(name)
	return Handle{Series: s, Name: name, Path: dir + "/" + name, Timestamp: ts}
}

func (m *Memory) Latest(s Series) (Handle, error) {
	hs, err := m.LatestN(s, 1)
	if err != nil {
		return Handle{}, err
	}
	return hs[0], nil
}

func (m *Memory) LatestN(s Series, n int) ([]Handle, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	dir := s.Dir()
	names := make([]string, 0, len(m.files[dir]))
	for name := range m.files[dir] {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return newest(s, dir, names, n)
}

func (m *Memory) Read(h Handle) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[h.Series.Dir()][h.Name]
	if !ok {
		return nil, fmt.Errorf("failed to read %s: not found", h.Path)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Write(s Series, payload any) (Handle, error) {
	data, err := encode(payload)
	if err != nil {
		return Handle{}, err
	}
	return m.WriteBytes(s, data)
}

func (m *Memory) WriteBytes(s Series, data []byte) (Handle, error) {
	if err := s.validate(); err != nil {
		return Handle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().UTC().Truncate(time.Second)
	name := s.Name(ts)
	dir := s.Dir()
	if m.files[dir] == nil {
		m.files[dir] = make(map[string][]byte)
	}
	if _, exists := m.files[dir][name]; exists {
		return Handle{}, fmt.Errorf("%w: %s/%s", ErrExists, dir, name)
	}
	m.files[dir][name] = append([]byte(nil), data...)
	return Handle{Series: s, Name: name, Path: dir + "/" + name, Timestamp: ts}, nil
}
