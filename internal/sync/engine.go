package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/savehaven/savehaven/internal/archiver"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/logger"
	"github.com/savehaven/savehaven/internal/manifest"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/recovery"
	"github.com/savehaven/savehaven/internal/remote"
	"github.com/savehaven/savehaven/internal/retention"
	"github.com/savehaven/savehaven/internal/ui"
)

// Policy holds the flags that change how decisions are executed
type Policy struct {
	// AutoOverwrite deletes and re-uploads a stale cloud copy without asking,
	// and makes "upload" the default answer to a conflict.
	AutoOverwrite bool
	// KeepForever marks every revision produced by an upload retained.
	KeepForever bool
}

// Result describes what happened to one entry. Watermark is only meaningful
// when WatermarkSet is true.
type Result struct {
	Decision     Decision
	Action       Action
	Uploaded     bool
	Restored     bool
	Watermark    float64
	WatermarkSet bool
	FileID       string
	BackupPath   string
}

// Prompt answers
const (
	answerDelete   = "delete"
	answerRevision = "revision"
	answerRestore  = "restore"
	answerUpload   = "upload"
	answerSkip     = "skip"
)

// Engine executes the decision table against a remote store
type Engine struct {
	store     remote.Store
	archiver  *archiver.Archiver
	restorer  *Restorer
	retention *retention.Manager
	prompter  prompt.Prompter
	clock     clockwork.Clock
	tempDir   string
	log       *logger.Logger
}

type Option func(*Engine)

// WithPrompter sets who answers overwrite and conflict questions. The
// default answers every question with its default.
func WithPrompter(p prompt.Prompter) Option {
	return func(e *Engine) { e.prompter = p }
}

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTempDir sets where downloaded archives are staged
func WithTempDir(dir string) Option {
	return func(e *Engine) { e.tempDir = dir }
}

// NewEngine wires an engine. guard protects live save folders during a
// restore.
func NewEngine(store remote.Store, arc *archiver.Archiver, guard *recovery.Manager, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		archiver: arc,
		prompter: prompt.Auto{},
		clock:    clockwork.NewRealClock(),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.retention = retention.NewManager(store, arc.Ext())
	e.restorer = NewRestorer(store, arc, guard, e.tempDir, e.log)
	return e
}

// FileName is the cloud file name of a game's archive
func (e *Engine) FileName(game string) string {
	return game + e.archiver.Ext()
}

// Store returns the remote store the engine writes to
func (e *Engine) Store() remote.Store {
	return e.store
}

// DecideAndExecute runs the decision table for one entry and carries out the
// chosen branch. folderID is the launcher folder holding the game's archive
// and cloud is that archive, or nil. The manifest is never written here; the
// caller applies Result.Watermark.
//
// A Result with WatermarkSet may come back together with an error when the
// upload succeeded but marking it keep-forever did not.
func (e *Engine) DecideAndExecute(ctx context.Context, entry locator.SaveEntry, folderID string, cloud *remote.File, row manifest.Row, policy Policy) (Result, error) {
	log := e.log.ForGame(entry.Name)
	res := Result{Decision: Decide(entry, cloud, row), Action: ActionNone}

	log.Debug().
		Str("decision", string(res.Decision)).
		Float64("local", entry.ModifiedAt).
		Float64("watermark", row.LastUploadedAt).
		Msg("decided")

	switch res.Decision {
	case SkipMissing, SkipUpToDate:
		return res, nil

	case UploadFresh:
		return e.upload(ctx, entry, folderID, nil, false, policy, res)

	case UploadOverwrite:
		answer := answerDelete
		if !policy.AutoOverwrite {
			var err error
			answer, err = e.prompter.Choose(ctx, overwriteQuestion(entry, cloud, row))
			if err != nil {
				return res, err
			}
		}
		return e.upload(ctx, entry, folderID, cloud, answer == answerDelete, policy, res)

	case Conflict:
		answer, err := e.prompter.Choose(ctx, conflictQuestion(entry, cloud, row, policy))
		if err != nil {
			return res, err
		}
		switch answer {
		case answerRestore:
			return e.restore(ctx, entry, cloud, res)
		case answerUpload:
			return e.upload(ctx, entry, folderID, cloud, false, policy, res)
		default:
			res.Action = ActionSkipped
			log.Info().Msg("conflict skipped")
			return res, nil
		}
	}

	return res, fmt.Errorf("unknown decision %q", res.Decision)
}

// ForceUpload uploads entry regardless of the watermark: a new file when
// cloud is nil, a new revision of it otherwise.
func (e *Engine) ForceUpload(ctx context.Context, entry locator.SaveEntry, folderID string, cloud *remote.File, policy Policy) (Result, error) {
	res := Result{Decision: UploadFresh, Action: ActionNone}
	if cloud != nil {
		res.Decision = UploadOverwrite
	}
	return e.upload(ctx, entry, folderID, cloud, false, policy, res)
}

// upload packs the save and sends it. With cloud nil the archive is a new
// file; with replace the cloud copy is deleted first; otherwise the archive
// becomes a new revision of the cloud copy. The blob is packed before
// anything remote changes.
func (e *Engine) upload(ctx context.Context, entry locator.SaveEntry, folderID string, cloud *remote.File, replace bool, policy Policy, res Result) (Result, error) {
	log := e.log.ForGame(entry.Name)

	blob, err := e.archiver.Pack(entry.Path)
	if err != nil {
		return res, withGame(err, entry.Name)
	}
	defer os.Remove(blob)

	var fileID string
	switch {
	case cloud == nil:
		res.Action = ActionUpload
		fileID, err = e.store.Upload(ctx, blob, e.FileName(entry.Name), folderID)
		if err != nil {
			return res, saveerrors.NewRemoteCallError("upload", err).WithGame(entry.Name)
		}
	case replace:
		res.Action = ActionReplace
		if err := e.store.Delete(ctx, cloud.ID); err != nil {
			return res, saveerrors.NewRemoteCallError("delete", err).WithGame(entry.Name)
		}
		fileID, err = e.store.Upload(ctx, blob, e.FileName(entry.Name), folderID)
		if err != nil {
			return res, saveerrors.NewRemoteCallError("upload", err).WithGame(entry.Name)
		}
	default:
		res.Action = ActionRevision
		fileID, err = e.store.UpdateContent(ctx, cloud.ID, blob)
		if err != nil {
			return res, saveerrors.NewRemoteCallError("update", err).WithGame(entry.Name)
		}
	}

	res.Uploaded = true
	res.FileID = fileID
	res.Watermark = remote.EpochSeconds(e.clock.Now())
	res.WatermarkSet = true
	log.Info().Str("action", string(res.Action)).Str("file", fileID).Msg("uploaded")

	if policy.KeepForever {
		rev, err := e.retention.MarkLatest(ctx, fileID)
		if err != nil {
			return res, withGame(err, entry.Name)
		}
		log.Info().Str("revision", rev.ID).Msg("marked keep-forever")
	}
	return res, nil
}

func (e *Engine) restore(ctx context.Context, entry locator.SaveEntry, cloud *remote.File, res Result) (Result, error) {
	res.Action = ActionRestore
	backup, err := e.restorer.Restore(ctx, entry, cloud.ID)
	res.BackupPath = backup
	if err != nil {
		return res, err
	}

	res.Restored = true
	res.FileID = cloud.ID
	res.Watermark = cloud.ModifiedAt
	res.WatermarkSet = true
	e.log.ForGame(entry.Name).Info().Str("backup", backup).Msg("restored from cloud")
	return res, nil
}

// Restore replaces the local save with the cloud archive unconditionally
func (e *Engine) Restore(ctx context.Context, entry locator.SaveEntry, cloud *remote.File) (Result, error) {
	return e.restore(ctx, entry, cloud, Result{Decision: Conflict, Action: ActionNone})
}

func overwriteQuestion(entry locator.SaveEntry, cloud *remote.File, row manifest.Row) prompt.Question {
	return prompt.Question{
		Title: fmt.Sprintf("%s changed since the last upload", entry.Name),
		Description: fmt.Sprintf("Last upload %s, local save modified %s.",
			ui.FormatEpoch(row.LastUploadedAt), ui.FormatEpoch(entry.ModifiedAt)),
		Options: []prompt.Option{
			{Key: answerDelete, Label: "Delete the cloud copy and upload"},
			{Key: answerRevision, Label: "Upload as a new revision"},
		},
		Default: answerRevision,
	}
}

func conflictQuestion(entry locator.SaveEntry, cloud *remote.File, row manifest.Row, policy Policy) prompt.Question {
	desc := fmt.Sprintf("Cloud copy modified %s, never uploaded from this machine.", ui.FormatEpoch(cloud.ModifiedAt))
	if row.LastUploadedAt != 0 {
		desc = fmt.Sprintf("Cloud copy modified %s, after the last upload from this machine at %s.",
			ui.FormatEpoch(cloud.ModifiedAt), ui.FormatEpoch(row.LastUploadedAt))
	}

	def := answerSkip
	if policy.AutoOverwrite {
		def = answerUpload
	}

	return prompt.Question{
		Title:       fmt.Sprintf("%s: the cloud copy may be newer", entry.Name),
		Description: desc,
		Options: []prompt.Option{
			{Key: answerRestore, Label: "Replace the local save with the cloud copy"},
			{Key: answerUpload, Label: "Upload the local save anyway"},
			{Key: answerSkip, Label: "Skip"},
		},
		Default: def,
	}
}
