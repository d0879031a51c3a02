// Package manifest tracks per-game upload state.
// Each row records where a game's save directory lives and the watermark:
// the epoch-seconds time of the last successful upload (or the cloud copy's
// modification time after a restore). A zero watermark means the game has
// never been uploaded from this machine.
//
// The manifest is persisted as JSON, {"games": {name: {"path", "uploaded"}}},
// and is written once per batch by Store.Save.
package manifest

import (
	"encoding/json"
	"sort"
	"sync"
)

// Row is the persisted state of one game.
type Row struct {
	Path           string  `json:"path"`
	LastUploadedAt float64 `json:"uploaded"`
}

// Manifest maps case-sensitive game names to rows
type Manifest struct {
	Games map[string]*Row `json:"games"`
	mu    sync.RWMutex
}

// New creates an empty manifest
func New() *Manifest {
	return &Manifest{
		Games: make(map[string]*Row),
	}
}

// Row returns a copy of the named row
func (m *Manifest) Row(name string) (Row, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.Games[name]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// Observe records that a game was seen at path. A new game gets a zero
// watermark; a known game keeps its watermark and picks up a changed path.
func (m *Manifest) Observe(name, path string) Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.Games[name]
	if !ok {
		row = &Row{Path: path}
		m.Games[name] = row
	} else if path != "" {
		row.Path = path
	}
	return *row
}

// Put replaces a row outright, resetting its watermark
func (m *Manifest) Put(name, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Games[name] = &Row{Path: path}
}

// SetWatermark advances the watermark after an upload. It never moves
// backwards.
func (m *Manifest) SetWatermark(name string, ts float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.row(name)
	if ts > row.LastUploadedAt {
		row.LastUploadedAt = ts
	}
}

// SetRestored sets the watermark to the restored cloud copy's modified time
func (m *Manifest) SetRestored(name string, ts float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.row(name).LastUploadedAt = ts
}

func (m *Manifest) row(name string) *Row {
	row, ok := m.Games[name]
	if !ok {
		row = &Row{}
		m.Games[name] = row
	}
	return row
}

// Remove deletes a row and reports whether it existed
func (m *Manifest) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.Games[name]
	delete(m.Games, name)
	return ok
}

// Names returns all game names sorted
func (m *Manifest) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.Games))
	for name := range m.Games {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of rows
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Games)
}

// Marshal encodes the manifest as indented JSON
func (m *Manifest) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.MarshalIndent(m, "", "    ")
}

// Dump renders the manifest for error messages, never failing
func (m *Manifest) Dump() string {
	data, err := m.Marshal()
	if err != nil {
		return "<unprintable manifest>"
	}
	return string(data)
}
