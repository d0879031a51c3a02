package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/remote"
)

func newStore(t *testing.T) (*remote.DirStore, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store, err := remote.NewDirStore("/cloud", remote.WithFs(afero.NewMemMapFs()), remote.WithClock(clock))
	require.NoError(t, err)
	return store, clock
}

func blob(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestMarkLatest(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()

	id, err := store.Upload(ctx, blob(t, "v1"), "Hades.zip", "")
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = store.UpdateContent(ctx, id, blob(t, "v2"))
	require.NoError(t, err)

	m := NewManager(store, ".zip")
	rev, err := m.MarkLatest(ctx, id)
	require.NoError(t, err)
	assert.True(t, rev.KeepForever)
	assert.True(t, rev.Latest)

	again, err := m.MarkLatest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rev.ID, again.ID)

	revs, err := store.ListRevisions(ctx, id)
	require.NoError(t, err)
	assert.False(t, revs[0].KeepForever)
	assert.True(t, revs[1].KeepForever)
}

func TestMarkKeepForeverUnknownRevision(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id, err := store.Upload(ctx, blob(t, "v1"), "Hades.zip", "")
	require.NoError(t, err)

	err = NewManager(store, ".zip").MarkKeepForever(ctx, id, "nope")
	assert.True(t, saveerrors.IsRemoteCallError(err))
}

func TestListAll(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	root, err := remote.EnsurePath(ctx, store, "SaveHaven")
	require.NoError(t, err)
	heroic, err := remote.EnsurePath(ctx, store, "SaveHaven", "Heroic")
	require.NoError(t, err)

	_, err = store.Upload(ctx, blob(t, "a"), "Tunic.zip.age", heroic)
	require.NoError(t, err)
	_, err = store.Upload(ctx, blob(t, "b"), "Hades.zip", heroic)
	require.NoError(t, err)
	_, err = store.Upload(ctx, blob(t, "c"), "notes.txt", heroic)
	require.NoError(t, err)
	_, err = store.Upload(ctx, blob(t, "d"), "Loose.zip", root)
	require.NoError(t, err)

	games, err := NewManager(store, ".zip", ".zip.age").ListAll(ctx, root)
	require.NoError(t, err)
	require.Len(t, games, 3)

	assert.Equal(t, "Loose", games[0].Name)
	assert.Equal(t, "", games[0].Launcher)
	assert.Equal(t, "Hades", games[1].Name)
	assert.Equal(t, "Heroic", games[1].Launcher)
	assert.Equal(t, "Tunic", games[2].Name)
	assert.Len(t, games[2].Revisions, 1)
	assert.Equal(t, 0, games[2].Retained())
}

func mkBackup(t *testing.T, dir, game, name string) string {
	t.Helper()
	path := filepath.Join(dir, game, name)
	require.NoError(t, os.MkdirAll(path, 0755))
	return path
}

func TestBackupsAndRotateByCount(t *testing.T) {
	dir := t.TempDir()
	oldest := mkBackup(t, dir, "Hades", "Hades-20240101-100000")
	mid := mkBackup(t, dir, "Hades", "Hades-20240102-100000")
	mkBackup(t, dir, "Hades", "Hades-20240102-100000-1")
	mkBackup(t, dir, "Hades", "unrelated")
	mkBackup(t, dir, "Celeste", "Celeste-20230101-000000")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".recovery"), 0755))

	br := NewBackupRotator(dir, clockwork.NewFakeClock())
	backups, err := br.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 4)
	assert.Equal(t, "Hades-20240102-100000-1", filepath.Base(backups[0].Path))

	deleted, err := br.RotateByCount(1, map[string]bool{oldest: true})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.NoDirExists(t, mid)
	assert.DirExists(t, oldest, "protected backup must survive")
	assert.DirExists(t, filepath.Join(dir, "Celeste", "Celeste-20230101-000000"))
}

func TestRotateByAge(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local))
	old := mkBackup(t, dir, "Hades", "Hades-20240101-000000")
	recent := mkBackup(t, dir, "Hades", "Hades-20240109-120000")

	deleted, err := NewBackupRotator(dir, clock).RotateByAge(48*time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoDirExists(t, old)
	assert.DirExists(t, recent)
}

func TestBackupsMissingDir(t *testing.T) {
	backups, err := NewBackupRotator(filepath.Join(t.TempDir(), "none"), nil).Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestBackupTime(t *testing.T) {
	_, ok := backupTime("Hades", "Hades-20240101-000000")
	assert.True(t, ok)
	_, ok = backupTime("Hades", "Hades-20240101-000000-3")
	assert.True(t, ok)
	_, ok = backupTime("Hades", "Hades-20240101-0000001")
	assert.False(t, ok)
	_, ok = backupTime("Hades", "Celeste-20240101-000000")
	assert.False(t, ok)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5 min"},
		{3 * time.Hour, "3 hours"},
		{24 * time.Hour, "1 day"},
		{10 * 24 * time.Hour, "10 days"},
		{65 * 24 * time.Hour, "2 months"},
		{400 * 24 * time.Hour, "1 year"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}
