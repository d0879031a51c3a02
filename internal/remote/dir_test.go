package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestDirStore(t *testing.T, opts ...DirOption) (*DirStore, afero.Fs, clockwork.FakeClock) {
	t.Helper()
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(start)
	opts = append([]DirOption{WithFs(fs), WithClock(clock)}, opts...)

	store, err := NewDirStore("/cloud", opts...)
	require.NoError(t, err)
	return store, fs, clock
}

func writeLocal(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDirStoreEnsurePath(t *testing.T) {
	store, fs, _ := newTestDirStore(t)
	ctx := context.Background()

	id, err := EnsurePath(ctx, store, "SaveHaven", "Heroic")
	require.NoError(t, err)
	assert.Equal(t, "SaveHaven/Heroic", id)

	exists, err := afero.DirExists(fs, "/cloud/SaveHaven/Heroic")
	require.NoError(t, err)
	assert.True(t, exists)

	again, err := EnsurePath(ctx, store, "SaveHaven", "Heroic")
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestDirStoreFindFolderOnFile(t *testing.T) {
	store, fs, _ := newTestDirStore(t)
	require.NoError(t, afero.WriteFile(fs, "/cloud/notafolder", []byte("x"), 0644))

	_, _, err := store.FindFolder(context.Background(), "notafolder", "")
	assert.Error(t, err)
}

func TestDirStoreUploadAndList(t *testing.T) {
	store, _, _ := newTestDirStore(t)
	ctx := context.Background()
	folder, err := EnsurePath(ctx, store, "SaveHaven", "Heroic")
	require.NoError(t, err)

	id, err := store.Upload(ctx, writeLocal(t, "v1"), "Hades.zip", folder)
	require.NoError(t, err)

	files, err := store.ListChildren(ctx, folder)
	require.NoError(t, err)
	require.Len(t, files, 1, "revision folder must be hidden")

	f := FindFile(files, "Hades.zip")
	require.NotNil(t, f)
	assert.Equal(t, id, f.ID)
	assert.Equal(t, EpochSeconds(start), f.ModifiedAt)
	assert.Equal(t, int64(2), f.Size)

	assert.Nil(t, FindFile(files, "Celeste.zip"))
}

func TestDirStoreUpdateContentKeepsRevisions(t *testing.T) {
	store, _, clock := newTestDirStore(t)
	ctx := context.Background()

	id, err := store.Upload(ctx, writeLocal(t, "v1"), "Hades.zip", "")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = store.UpdateContent(ctx, id, writeLocal(t, "version2"))
	require.NoError(t, err)

	revs, err := store.ListRevisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.False(t, revs[0].Latest)
	assert.True(t, revs[1].Latest)
	assert.Equal(t, EpochSeconds(start.Add(time.Hour)), revs[1].ModifiedAt)

	latest, ok := LatestRevision(revs)
	require.True(t, ok)
	assert.Equal(t, revs[1].ID, latest.ID)

	out := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, store.Download(ctx, id, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "version2", string(data))
}

func TestDirStoreUploadOverExistingName(t *testing.T) {
	store, _, clock := newTestDirStore(t)
	ctx := context.Background()

	_, err := store.Upload(ctx, writeLocal(t, "v1"), "Hades.zip", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	id, err := store.Upload(ctx, writeLocal(t, "v2"), "Hades.zip", "")
	require.NoError(t, err)

	revs, err := store.ListRevisions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestDirStoreAdoptsForeignFile(t *testing.T) {
	store, fs, _ := newTestDirStore(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(fs, "/cloud/Hades.zip", []byte("manual"), 0644))

	revs, err := store.ListRevisions(ctx, "Hades.zip")
	require.NoError(t, err)
	assert.Empty(t, revs)

	_, err = store.UpdateContent(ctx, "Hades.zip", writeLocal(t, "v2"))
	require.NoError(t, err)

	revs, err = store.ListRevisions(ctx, "Hades.zip")
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestDirStoreSetRevisionRetained(t *testing.T) {
	store, _, _ := newTestDirStore(t)
	ctx := context.Background()

	id, err := store.Upload(ctx, writeLocal(t, "v1"), "Hades.zip", "")
	require.NoError(t, err)
	revs, err := store.ListRevisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, revs, 1)

	require.NoError(t, store.SetRevisionRetained(ctx, id, revs[0].ID))
	require.NoError(t, store.SetRevisionRetained(ctx, id, revs[0].ID), "marking twice must be a no-op")

	revs, err = store.ListRevisions(ctx, id)
	require.NoError(t, err)
	assert.True(t, revs[0].KeepForever)

	err = store.SetRevisionRetained(ctx, id, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirStorePrunesUnretainedRevisions(t *testing.T) {
	store, _, clock := newTestDirStore(t, WithMaxRevisions(2))
	ctx := context.Background()

	id, err := store.Upload(ctx, writeLocal(t, "v0"), "Hades.zip", "")
	require.NoError(t, err)
	first, err := store.ListRevisions(ctx, id)
	require.NoError(t, err)
	require.NoError(t, store.SetRevisionRetained(ctx, id, first[0].ID))

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		_, err := store.UpdateContent(ctx, id, writeLocal(t, "next"))
		require.NoError(t, err)
	}

	revs, err := store.ListRevisions(ctx, id)
	require.NoError(t, err)
	// retained first + 2 past + head
	require.Len(t, revs, 4)
	assert.Equal(t, first[0].ID, revs[0].ID)
	assert.True(t, revs[0].KeepForever)
	assert.True(t, revs[3].Latest)
}

func TestDirStoreDelete(t *testing.T) {
	store, fs, clock := newTestDirStore(t)
	ctx := context.Background()

	id, err := store.Upload(ctx, writeLocal(t, "v1"), "Hades.zip", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = store.UpdateContent(ctx, id, writeLocal(t, "v2"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))

	exists, _ := afero.Exists(fs, "/cloud/.revisions/Hades.zip")
	assert.False(t, exists, "revisions should be removed with the file")

	err = store.Download(ctx, id, filepath.Join(t.TempDir(), "x"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Delete(ctx, id), ErrNotFound))
}

func TestDirStoreListMissingFolder(t *testing.T) {
	store, _, _ := newTestDirStore(t)
	_, err := store.ListChildren(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirStoreUploadHonorsContext(t *testing.T) {
	store, fs, _ := newTestDirStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Upload(ctx, writeLocal(t, "v1"), "Hades.zip", "")
	require.Error(t, err)

	exists, _ := afero.Exists(fs, "/cloud/Hades.zip")
	assert.False(t, exists)
}

func TestDirStoreName(t *testing.T) {
	store, _, _ := newTestDirStore(t)
	assert.Contains(t, store.Name(), "/cloud")
}
