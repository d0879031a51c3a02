// Package retention manages how long save archives are kept: keep-forever
// marks on cloud revisions, and rotation of the local backups made before a
// restore.
package retention

import (
	"context"
	"fmt"
	"sort"
	"strings"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/remote"
)

// Game is one archive in the cloud with its revisions, oldest first
type Game struct {
	Name       string
	Launcher   string
	FileID     string
	FileName   string
	ModifiedAt float64
	Size       int64
	Revisions  []remote.Revision
}

// Retained counts the revisions marked keep-forever
func (g Game) Retained() int {
	n := 0
	for _, r := range g.Revisions {
		if r.KeepForever {
			n++
		}
	}
	return n
}

// Manager reads and marks cloud revisions
type Manager struct {
	store remote.Store
	exts  []string
}

// NewManager creates a manager. exts are the archive suffixes stripped from
// cloud file names to get game names, longest first.
func NewManager(store remote.Store, exts ...string) *Manager {
	sorted := append([]string(nil), exts...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return &Manager{store: store, exts: sorted}
}

// MarkKeepForever marks one revision retained. Marking twice is a no-op.
func (m *Manager) MarkKeepForever(ctx context.Context, fileID, revisionID string) error {
	if err := m.store.SetRevisionRetained(ctx, fileID, revisionID); err != nil {
		return saveerrors.NewRemoteCallError("keep-forever", err)
	}
	return nil
}

// MarkLatest marks the newest revision of a file retained and returns it
func (m *Manager) MarkLatest(ctx context.Context, fileID string) (remote.Revision, error) {
	revs, err := m.store.ListRevisions(ctx, fileID)
	if err != nil {
		return remote.Revision{}, saveerrors.NewRemoteCallError("list revisions", err)
	}
	latest, ok := remote.LatestRevision(revs)
	if !ok {
		return remote.Revision{}, saveerrors.NewRemoteCallError("keep-forever",
			fmt.Errorf("%s has no revisions", fileID))
	}
	if latest.KeepForever {
		return latest, nil
	}
	if err := m.MarkKeepForever(ctx, fileID, latest.ID); err != nil {
		return remote.Revision{}, err
	}
	latest.KeepForever = true
	return latest, nil
}

// List returns the games archived in one folder with their revisions
func (m *Manager) List(ctx context.Context, folderID, launcher string) ([]Game, error) {
	files, err := m.store.ListChildren(ctx, folderID)
	if err != nil {
		return nil, saveerrors.NewRemoteCallError("list", err)
	}

	var games []Game
	for _, f := range files {
		if f.IsFolder {
			continue
		}
		name, ok := m.gameName(f.Name)
		if !ok {
			continue
		}

		revs, err := m.store.ListRevisions(ctx, f.ID)
		if err != nil {
			return nil, saveerrors.NewRemoteCallError("list revisions", err).WithGame(name)
		}
		games = append(games, Game{
			Name:       name,
			Launcher:   launcher,
			FileID:     f.ID,
			FileName:   f.Name,
			ModifiedAt: f.ModifiedAt,
			Size:       f.Size,
			Revisions:  revs,
		})
	}

	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games, nil
}

// ListAll lists every launcher folder under root plus the archives placed
// directly in root.
func (m *Manager) ListAll(ctx context.Context, rootID string) ([]Game, error) {
	games, err := m.List(ctx, rootID, "")
	if err != nil {
		return nil, err
	}

	children, err := m.store.ListChildren(ctx, rootID)
	if err != nil {
		return nil, saveerrors.NewRemoteCallError("list", err)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	for _, c := range children {
		if !c.IsFolder {
			continue
		}
		found, err := m.List(ctx, c.ID, c.Name)
		if err != nil {
			return nil, err
		}
		games = append(games, found...)
	}
	return games, nil
}

func (m *Manager) gameName(fileName string) (string, bool) {
	for _, ext := range m.exts {
		if strings.HasSuffix(fileName, ext) && len(fileName) > len(ext) {
			return strings.TrimSuffix(fileName, ext), true
		}
	}
	return "", false
}
