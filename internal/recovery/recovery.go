// Package recovery protects a game's live save folder during a restore.
// Before a cloud archive is unpacked, the existing folder is moved aside to
// a timestamped backup and a recovery state is written. If the restore does
// not finish, the state survives and the user can roll the folder back.
//
// Recovery states are persisted to disk as JSON files in a .recovery directory.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/savehaven/savehaven/internal/archiver"
)

const (
	stateSuffix     = ".recovery.json"
	timestampLayout = "20060102-150405"
)

// RecoveryState describes a save folder that was moved aside for a restore
type RecoveryState struct {
	Game       string    `json:"game"`
	LivePath   string    `json:"live_path"`
	BackupPath string    `json:"backup_path"`
	Timestamp  time.Time `json:"timestamp"`
}

// Manager handles moving save folders aside and rolling them back
type Manager struct {
	backupDir   string
	recoveryDir string
	clock       clockwork.Clock
}

// NewManager creates a recovery manager storing backups under backupDir
func NewManager(backupDir string, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		backupDir:   backupDir,
		recoveryDir: filepath.Join(backupDir, ".recovery"),
		clock:       clock,
	}
}

// BackupDir returns the root of the local backups
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// MoveAside moves livePath to <backupDir>/<game>/<game>-YYYYMMDD-HHMMSS and
// records a recovery state. An existing backup is never overwritten; a
// numeric suffix is added instead.
func (m *Manager) MoveAside(game, livePath string) (string, error) {
	gameDir := filepath.Join(m.backupDir, safeName(game))
	if err := os.MkdirAll(gameDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := m.clock.Now()
	backupPath, err := uniquePath(gameDir, safeName(game)+"-"+now.Format(timestampLayout))
	if err != nil {
		return "", err
	}

	if err := archiver.MoveDir(livePath, backupPath); err != nil {
		return "", fmt.Errorf("failed to move %s aside: %w", livePath, err)
	}

	state := &RecoveryState{
		Game:       game,
		LivePath:   livePath,
		BackupPath: backupPath,
		Timestamp:  now,
	}
	if err := m.SaveState(state); err != nil {
		return backupPath, err
	}
	return backupPath, nil
}

func uniquePath(dir, base string) (string, error) {
	candidate := filepath.Join(dir, base)
	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check backup path: %w", err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d", base, n))
	}
}

// SaveState saves the current recovery state
func (m *Manager) SaveState(state *RecoveryState) error {
	if err := os.MkdirAll(m.recoveryDir, 0755); err != nil {
		return fmt.Errorf("failed to create recovery directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal recovery state: %w", err)
	}

	if err := os.WriteFile(m.stateFile(state.Game), data, 0644); err != nil {
		return fmt.Errorf("failed to save recovery state: %w", err)
	}
	return nil
}

// LoadState returns the pending state for a game, or nil when there is none
func (m *Manager) LoadState(game string) (*RecoveryState, error) {
	data, err := os.ReadFile(m.stateFile(game))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recovery state: %w", err)
	}

	var state RecoveryState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recovery state: %w", err)
	}
	return &state, nil
}

// Clear removes a game's recovery state once its restore has finished
func (m *Manager) Clear(game string) error {
	if err := os.Remove(m.stateFile(game)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete recovery state: %w", err)
	}
	return nil
}

// Pending lists interrupted restores, oldest first. Unreadable states are skipped.
func (m *Manager) Pending() ([]RecoveryState, error) {
	files, err := os.ReadDir(m.recoveryDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recovery directory: %w", err)
	}

	var states []RecoveryState
	for _, file := range files {
		if !strings.HasSuffix(file.Name(), stateSuffix) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(m.recoveryDir, file.Name()))
		if err != nil {
			continue
		}
		var state RecoveryState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].Timestamp.Before(states[j].Timestamp)
	})
	return states, nil
}

// Rollback puts the moved-aside folder back at its live path. Whatever a
// failed restore left at the live path is kept next to it as
// <live>-PARTIAL-<timestamp>. Returns that partial path, or "" if none.
func (m *Manager) Rollback(state RecoveryState) (string, error) {
	if _, err := os.Stat(state.BackupPath); err != nil {
		return "", fmt.Errorf("backup %s is gone: %w", state.BackupPath, err)
	}

	var partial string
	if _, err := os.Lstat(state.LivePath); err == nil {
		partial, err = uniquePath(filepath.Dir(state.LivePath),
			filepath.Base(state.LivePath)+"-PARTIAL-"+m.clock.Now().Format(timestampLayout))
		if err != nil {
			return "", err
		}
		if err := os.Rename(state.LivePath, partial); err != nil {
			return "", fmt.Errorf("failed to move partial restore: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(state.LivePath), 0755); err != nil {
		return partial, fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := archiver.MoveDir(state.BackupPath, state.LivePath); err != nil {
		return partial, fmt.Errorf("failed to move backup back: %w", err)
	}

	return partial, m.Clear(state.Game)
}

// CleanupOldRecoveryStates removes states older than maxAge. The backups
// they point at are left alone.
func (m *Manager) CleanupOldRecoveryStates(maxAge time.Duration) error {
	states, err := m.Pending()
	if err != nil {
		return err
	}

	cutoff := m.clock.Now().Add(-maxAge)
	for _, s := range states {
		if s.Timestamp.Before(cutoff) {
			if err := m.Clear(s.Game); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) stateFile(game string) string {
	return filepath.Join(m.recoveryDir, safeName(game)+stateSuffix)
}

// safeName turns a game name into a single path component. Leading dots are
// escaped so no game folder can be hidden or collide with the state folder.
func safeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	if strings.HasPrefix(name, ".") {
		return "_" + name
	}
	return name
}
