// Package remote abstracts the cloud store that holds save archives.
// It supports S3-compatible object storage (AWS S3, Backblaze B2, MinIO,
// Cloudflare R2) with bucket versioning, and a plain directory tree on a
// local disk or NAS mount that keeps its own revision history.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/savehaven/savehaven/internal/config"
)

// ErrNotFound is returned when a file, folder or revision does not exist
var ErrNotFound = errors.New("remote: not found")

// Store defines the operations the sync engine needs from a cloud provider.
// IDs are opaque to callers; a folder ID is passed as parent to create or
// list its children, and "" denotes the store root.
type Store interface {
	// FindFolder looks up a child folder by name
	FindFolder(ctx context.Context, name, parentID string) (id string, found bool, err error)

	// CreateFolder creates a child folder and returns its ID
	CreateFolder(ctx context.Context, name, parentID string) (string, error)

	// ListChildren lists the files directly inside a folder
	ListChildren(ctx context.Context, folderID string) ([]File, error)

	// Upload stores localPath as a new file called name inside parentID
	Upload(ctx context.Context, localPath, name, parentID string) (string, error)

	// UpdateContent replaces a file's content, keeping the old content as a revision
	UpdateContent(ctx context.Context, fileID, localPath string) (string, error)

	// Delete removes a file
	Delete(ctx context.Context, fileID string) error

	// Download writes a file's current content to localPath
	Download(ctx context.Context, fileID, localPath string) error

	// ListRevisions returns a file's revisions, oldest first
	ListRevisions(ctx context.Context, fileID string) ([]Revision, error)

	// SetRevisionRetained marks a revision keep-forever. Marking twice is a no-op.
	SetRevisionRetained(ctx context.Context, fileID, revisionID string) error

	// Name returns a display name for the provider
	Name() string
}

// File is one child of a remote folder
type File struct {
	ID         string
	Name       string
	ModifiedAt float64 // epoch seconds
	Size       int64
	IsFolder   bool
}

// Revision is one stored version of a file
type Revision struct {
	ID          string
	ModifiedAt  float64
	Size        int64
	KeepForever bool
	Latest      bool
}

// EpochSeconds converts a time to the float epoch seconds used for watermarks
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// EnsureFolder returns the ID of the named child folder, creating it if needed
func EnsureFolder(ctx context.Context, s Store, name, parentID string) (string, error) {
	id, found, err := s.FindFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to find folder %s: %w", name, err)
	}
	if found {
		return id, nil
	}

	id, err = s.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	return id, nil
}

// EnsurePath walks or creates a chain of nested folders starting at the root
func EnsurePath(ctx context.Context, s Store, names ...string) (string, error) {
	parent := ""
	for _, name := range names {
		id, err := EnsureFolder(ctx, s, name, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

// FindFile returns the non-folder child with the given name, or nil
func FindFile(files []File, name string) *File {
	for i := range files {
		if !files[i].IsFolder && files[i].Name == name {
			return &files[i]
		}
	}
	return nil
}

// LatestRevision returns the newest revision, or false when there is none
func LatestRevision(revs []Revision) (Revision, bool) {
	if len(revs) == 0 {
		return Revision{}, false
	}
	for _, r := range revs {
		if r.Latest {
			return r, true
		}
	}
	latest := revs[0]
	for _, r := range revs[1:] {
		if r.ModifiedAt >= latest.ModifiedAt {
			latest = r
		}
	}
	return latest, true
}

// New builds the store selected by the cloud configuration
func New(ctx context.Context, cfg config.CloudConfig, clock clockwork.Clock) (Store, error) {
	switch cfg.Provider {
	case config.ProviderS3:
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PathStyle:       cfg.PathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	case config.ProviderDir, "":
		return NewDirStore(cfg.Dir, WithClock(clock))
	default:
		return nil, fmt.Errorf("unsupported cloud provider: %s", cfg.Provider)
	}
}
