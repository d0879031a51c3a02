// Package sync decides, per game, whether a save directory should be
// uploaded, skipped or restored from the cloud, and carries the decision out.
//
// The decision is a pure function of three values: the local save's newest
// modification time, the manifest watermark (time of the last upload from
// this machine) and the cloud copy's modification time. Executing it touches
// the remote store and the local disk but never the persisted manifest; the
// Runner applies watermarks in memory and saves the manifest once per batch.
package sync

import (
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/manifest"
	"github.com/savehaven/savehaven/internal/remote"
)

// Decision is the branch of the decision table an entry falls into
type Decision string

const (
	SkipMissing     Decision = "skip-missing"
	UploadFresh     Decision = "upload-fresh"
	UploadOverwrite Decision = "upload-overwrite"
	SkipUpToDate    Decision = "skip-up-to-date"
	Conflict        Decision = "conflict"
)

// Action is what was actually done for an entry
type Action string

const (
	ActionNone     Action = "none"
	ActionUpload   Action = "upload"
	ActionReplace  Action = "delete-and-upload"
	ActionRevision Action = "upload-revision"
	ActionRestore  Action = "restore"
	ActionSkipped  Action = "skipped"
)

// Decide evaluates the decision table. cloud is the cloud file named after
// the game, or nil when there is none. The first matching row wins.
func Decide(entry locator.SaveEntry, cloud *remote.File, row manifest.Row) Decision {
	if entry.Path == locator.MissingPath {
		return SkipMissing
	}
	if cloud == nil {
		return UploadFresh
	}

	watermark := row.LastUploadedAt
	if watermark != 0 && watermark < entry.ModifiedAt {
		return UploadOverwrite
	}
	if watermark != 0 && cloud.ModifiedAt <= watermark {
		return SkipUpToDate
	}
	return Conflict
}
