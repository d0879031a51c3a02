package sync

import (
	"context"
	"errors"
	"os"

	"github.com/savehaven/savehaven/internal/archiver"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/logger"
	"github.com/savehaven/savehaven/internal/recovery"
	"github.com/savehaven/savehaven/internal/remote"
)

// Restorer replaces a local save directory with a cloud archive
type Restorer struct {
	store    remote.Store
	archiver *archiver.Archiver
	guard    *recovery.Manager
	tempDir  string
	log      *logger.Logger
}

// NewRestorer creates a restorer. Downloads land in tempDir, or the system
// temp directory when empty.
func NewRestorer(store remote.Store, arc *archiver.Archiver, guard *recovery.Manager, tempDir string, log *logger.Logger) *Restorer {
	if log == nil {
		log = logger.Nop()
	}
	return &Restorer{
		store:    store,
		archiver: arc,
		guard:    guard,
		tempDir:  tempDir,
		log:      log,
	}
}

// Restore downloads fileID and unpacks it into entry.Path. An existing save
// directory is first moved aside by the recovery guard; its location is
// returned. If anything fails after that move, the backup and its recovery
// state are kept and a RestoreError naming the backup is returned.
func (r *Restorer) Restore(ctx context.Context, entry locator.SaveEntry, fileID string) (string, error) {
	log := r.log.ForGame(entry.Name)

	tmp, err := os.CreateTemp(r.tempDir, "savehaven-download-*"+r.archiver.Ext())
	if err != nil {
		return "", saveerrors.NewDownloadError(fileID, err).WithGame(entry.Name)
	}
	blob := tmp.Name()
	tmp.Close()
	defer os.Remove(blob)

	if err := r.store.Download(ctx, fileID, blob); err != nil {
		return "", saveerrors.NewDownloadError(fileID, err).WithGame(entry.Name)
	}
	if err := ctx.Err(); err != nil {
		return "", saveerrors.NewDownloadError(fileID, err).WithGame(entry.Name)
	}

	backupPath := ""
	_, err = os.Lstat(entry.Path)
	switch {
	case err == nil:
		backupPath, err = r.guard.MoveAside(entry.Name, entry.Path)
		if err != nil {
			if backupPath != "" {
				return backupPath, saveerrors.NewRestoreError(entry.Name, backupPath, err)
			}
			return "", saveerrors.WrapWithDetection(err, "failed to back up the local save").
				WithGame(entry.Name).
				WithFilePath(entry.Path)
		}
		log.Info().Str("backup", backupPath).Msg("moved local save aside")
	case !errors.Is(err, os.ErrNotExist):
		return "", saveerrors.WrapWithDetection(err, "failed to inspect the local save").
			WithGame(entry.Name).
			WithFilePath(entry.Path)
	}

	if err := r.archiver.Unpack(blob, entry.Path); err != nil {
		if backupPath != "" {
			log.Error().Err(err).Str("backup", backupPath).Msg("restore failed, backup kept")
			return backupPath, saveerrors.NewRestoreError(entry.Name, backupPath, err)
		}
		return "", withGame(err, entry.Name)
	}

	if backupPath != "" {
		if err := r.guard.Clear(entry.Name); err != nil {
			log.Warn().Err(err).Msg("failed to clear recovery state")
		}
	}
	return backupPath, nil
}

// withGame tags a SaveError with the game it belongs to
func withGame(err error, game string) error {
	var se *saveerrors.SaveError
	if errors.As(err, &se) {
		if se.Game == "" {
			se.Game = game
		}
		return err
	}
	return saveerrors.WrapWithDetection(err, err.Error()).WithGame(game)
}
