package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const (
	revisionsDir = ".revisions"
	indexFile    = "index.json"

	// DefaultMaxRevisions bounds how many unretained past revisions are kept per file
	DefaultMaxRevisions = 10
)

// DirStore implements Store on a directory tree. File and folder IDs are
// slash-separated paths relative to the store root. Past contents of a file
// live under <folder>/.revisions/<file>/<revision id> next to an index.
type DirStore struct {
	fs           afero.Fs
	clock        clockwork.Clock
	root         string
	maxRevisions int
}

type DirOption func(*DirStore)

func WithClock(c clockwork.Clock) DirOption {
	return func(d *DirStore) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithFs replaces the OS filesystem, mainly for tests
func WithFs(fs afero.Fs) DirOption {
	return func(d *DirStore) { d.fs = fs }
}

func WithMaxRevisions(n int) DirOption {
	return func(d *DirStore) { d.maxRevisions = n }
}

// NewDirStore opens (creating if needed) a store rooted at dir
func NewDirStore(dir string, opts ...DirOption) (*DirStore, error) {
	d := &DirStore{
		fs:           afero.NewOsFs(),
		clock:        clockwork.NewRealClock(),
		root:         dir,
		maxRevisions: DefaultMaxRevisions,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	d.fs = afero.NewBasePathFs(d.fs, dir)
	return d, nil
}

// Name returns the provider name
func (d *DirStore) Name() string {
	return "Directory (" + d.root + ")"
}

type revisionIndex struct {
	Head      string          `json:"head"`
	Revisions []indexRevision `json:"revisions"`
}

type indexRevision struct {
	ID          string  `json:"id"`
	ModifiedAt  float64 `json:"modified_at"`
	Size        int64   `json:"size"`
	KeepForever bool    `json:"keep_forever"`
}

func abs(id string) string {
	return "/" + strings.TrimPrefix(id, "/")
}

func revisionDir(fileID string) string {
	return path.Join(path.Dir(abs(fileID)), revisionsDir, path.Base(fileID))
}

func (d *DirStore) FindFolder(ctx context.Context, name, parentID string) (string, bool, error) {
	id := path.Join(parentID, name)
	info, err := d.fs.Stat(abs(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	if !info.IsDir() {
		return "", false, fmt.Errorf("%s exists and is not a folder", id)
	}
	return id, true, nil
}

func (d *DirStore) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	id := path.Join(parentID, name)
	if err := d.fs.MkdirAll(abs(id), 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	return id, nil
}

func (d *DirStore) ListChildren(ctx context.Context, folderID string) ([]File, error) {
	infos, err := afero.ReadDir(d.fs, abs(folderID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", folderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to list folder: %w", err)
	}

	var files []File
	for _, info := range infos {
		if info.Name() == revisionsDir {
			continue
		}
		files = append(files, File{
			ID:         path.Join(folderID, info.Name()),
			Name:       info.Name(),
			ModifiedAt: EpochSeconds(info.ModTime()),
			Size:       info.Size(),
			IsFolder:   info.IsDir(),
		})
	}
	return files, nil
}

// Upload stores a new file. Uploading over an existing name keeps the old
// content as a revision.
func (d *DirStore) Upload(ctx context.Context, localPath, name, parentID string) (string, error) {
	id := path.Join(parentID, name)
	if _, err := d.fs.Stat(abs(id)); err == nil {
		return d.UpdateContent(ctx, id, localPath)
	}

	if err := d.fs.MkdirAll(abs(parentID), 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	rev, err := d.writeContent(ctx, localPath, id)
	if err != nil {
		return "", err
	}

	idx := &revisionIndex{Head: rev.ID, Revisions: []indexRevision{rev}}
	if err := d.saveIndex(id, idx); err != nil {
		return "", err
	}
	return id, nil
}

func (d *DirStore) UpdateContent(ctx context.Context, fileID, localPath string) (string, error) {
	if _, err := d.fs.Stat(abs(fileID)); err != nil {
		return "", fmt.Errorf("%s: %w", fileID, ErrNotFound)
	}

	idx, err := d.loadIndex(fileID)
	if err != nil {
		return "", err
	}
	if idx.Head == "" {
		// Adopt a file placed here by hand as the first revision
		info, err := d.fs.Stat(abs(fileID))
		if err != nil {
			return "", err
		}
		idx.Head = uuid.NewString()
		idx.Revisions = append(idx.Revisions, indexRevision{
			ID:         idx.Head,
			ModifiedAt: EpochSeconds(info.ModTime()),
			Size:       info.Size(),
		})
	}

	dir := revisionDir(fileID)
	if err := d.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create revision folder: %w", err)
	}
	if err := d.copyWithin(abs(fileID), path.Join(dir, idx.Head)); err != nil {
		return "", fmt.Errorf("failed to keep previous revision: %w", err)
	}

	rev, err := d.writeContent(ctx, localPath, fileID)
	if err != nil {
		return "", err
	}
	idx.Head = rev.ID
	idx.Revisions = append(idx.Revisions, rev)
	d.prune(fileID, idx)

	if err := d.saveIndex(fileID, idx); err != nil {
		return "", err
	}
	return fileID, nil
}

func (d *DirStore) writeContent(ctx context.Context, localPath, fileID string) (indexRevision, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return indexRevision{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	tmp, err := afero.TempFile(d.fs, path.Dir(abs(fileID)), ".upload-*")
	if err != nil {
		return indexRevision{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, contextReader{ctx: ctx, r: src})
	if err == nil {
		err = tmp.Close()
	} else {
		tmp.Close()
	}
	if err != nil {
		d.fs.Remove(tmpName)
		return indexRevision{}, fmt.Errorf("failed to write file: %w", err)
	}

	if err := d.fs.Rename(tmpName, abs(fileID)); err != nil {
		d.fs.Remove(tmpName)
		return indexRevision{}, fmt.Errorf("failed to store file: %w", err)
	}

	now := d.clock.Now()
	if err := d.fs.Chtimes(abs(fileID), now, now); err != nil {
		return indexRevision{}, err
	}

	return indexRevision{
		ID:         uuid.NewString(),
		ModifiedAt: EpochSeconds(now),
		Size:       size,
	}, nil
}

// prune drops the oldest unretained past revisions beyond the limit
func (d *DirStore) prune(fileID string, idx *revisionIndex) {
	if d.maxRevisions <= 0 {
		return
	}

	var past []int
	for i, r := range idx.Revisions {
		if r.ID != idx.Head && !r.KeepForever {
			past = append(past, i)
		}
	}
	excess := len(past) - d.maxRevisions
	if excess <= 0 {
		return
	}

	drop := make(map[int]bool, excess)
	for _, i := range past[:excess] {
		drop[i] = true
		d.fs.Remove(path.Join(revisionDir(fileID), idx.Revisions[i].ID))
	}

	kept := idx.Revisions[:0]
	for i, r := range idx.Revisions {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	idx.Revisions = kept
}

func (d *DirStore) Delete(ctx context.Context, fileID string) error {
	if err := d.fs.Remove(abs(fileID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", fileID, ErrNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := d.fs.RemoveAll(revisionDir(fileID)); err != nil {
		return fmt.Errorf("failed to delete revisions: %w", err)
	}
	return nil
}

func (d *DirStore) Download(ctx context.Context, fileID, localPath string) error {
	src, err := d.fs.Open(abs(fileID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", fileID, ErrNotFound)
		}
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(dst, contextReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		os.Remove(localPath)
		return fmt.Errorf("failed to download: %w", err)
	}
	return dst.Close()
}

func (d *DirStore) ListRevisions(ctx context.Context, fileID string) ([]Revision, error) {
	if _, err := d.fs.Stat(abs(fileID)); err != nil {
		return nil, fmt.Errorf("%s: %w", fileID, ErrNotFound)
	}

	idx, err := d.loadIndex(fileID)
	if err != nil {
		return nil, err
	}

	revs := make([]Revision, 0, len(idx.Revisions))
	for _, r := range idx.Revisions {
		revs = append(revs, Revision{
			ID:          r.ID,
			ModifiedAt:  r.ModifiedAt,
			Size:        r.Size,
			KeepForever: r.KeepForever,
			Latest:      r.ID == idx.Head,
		})
	}
	sort.SliceStable(revs, func(i, j int) bool {
		return revs[i].ModifiedAt < revs[j].ModifiedAt
	})
	return revs, nil
}

func (d *DirStore) SetRevisionRetained(ctx context.Context, fileID, revisionID string) error {
	idx, err := d.loadIndex(fileID)
	if err != nil {
		return err
	}

	for i := range idx.Revisions {
		if idx.Revisions[i].ID == revisionID {
			if idx.Revisions[i].KeepForever {
				return nil
			}
			idx.Revisions[i].KeepForever = true
			return d.saveIndex(fileID, idx)
		}
	}
	return fmt.Errorf("revision %s of %s: %w", revisionID, fileID, ErrNotFound)
}

func (d *DirStore) loadIndex(fileID string) (*revisionIndex, error) {
	data, err := afero.ReadFile(d.fs, path.Join(revisionDir(fileID), indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &revisionIndex{}, nil
		}
		return nil, fmt.Errorf("failed to read revision index: %w", err)
	}

	var idx revisionIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse revision index: %w", err)
	}
	return &idx, nil
}

func (d *DirStore) saveIndex(fileID string, idx *revisionIndex) error {
	dir := revisionDir(fileID)
	if err := d.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create revision folder: %w", err)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	if err := afero.WriteFile(d.fs, path.Join(dir, indexFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write revision index: %w", err)
	}
	return nil
}

func (d *DirStore) copyWithin(src, dst string) error {
	in, err := d.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := d.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// contextReader stops a copy once the context is cancelled
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
