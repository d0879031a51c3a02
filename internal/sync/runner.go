package sync

import (
	"context"
	"errors"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/logger"
	"github.com/savehaven/savehaven/internal/manifest"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/remote"
)

// Outcome is the result of one entry in a batch
type Outcome struct {
	Game     string
	Launcher string
	Result   Result
	Err      error
}

// Report summarises a batch
type Report struct {
	Outcomes []Outcome
	// Aborted is set when the operator quit a prompt and the remaining
	// entries were not processed.
	Aborted bool
}

// Failed returns the outcomes that ended in an error
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Uploaded counts entries that were uploaded
func (r *Report) Uploaded() int {
	return r.count(func(o Outcome) bool { return o.Result.Uploaded })
}

// Restored counts entries that were restored from the cloud
func (r *Report) Restored() int {
	return r.count(func(o Outcome) bool { return o.Result.Restored })
}

// Skipped counts entries that needed nothing or were skipped by the operator
func (r *Report) Skipped() int {
	return r.count(func(o Outcome) bool {
		return o.Err == nil && !o.Result.Uploaded && !o.Result.Restored
	})
}

func (r *Report) count(match func(Outcome) bool) int {
	n := 0
	for _, o := range r.Outcomes {
		if match(o) {
			n++
		}
	}
	return n
}

// Observer is told about every finished entry, in order
type Observer func(Outcome)

// Runner processes a batch of entries one at a time and persists the
// manifest once at the end.
type Runner struct {
	engine    *Engine
	manifests *manifest.Store
	root      string
	policy    Policy
	observer  Observer
	log       *logger.Logger
}

type RunnerOption func(*Runner)

func WithPolicy(p Policy) RunnerOption {
	return func(r *Runner) { r.policy = p }
}

func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

func WithRunnerLogger(l *logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a runner storing archives under <root>/<launcher> in the
// engine's store.
func NewRunner(engine *Engine, manifests *manifest.Store, root string, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:    engine,
		manifests: manifests,
		root:      root,
		observer:  func(Outcome) {},
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes entries in order. Failures are recorded per entry and do not
// stop the batch; an aborted prompt or a cancelled context does. The manifest
// is saved once after the loop, and a save failure is returned as a fatal
// ManifestWriteError.
func (r *Runner) Run(ctx context.Context, entries []locator.SaveEntry, m *manifest.Manifest) (*Report, error) {
	report := &Report{}
	folders := make(map[string]string)

	var stopErr error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}

		outcome := r.process(ctx, entry, m, folders)
		report.Outcomes = append(report.Outcomes, outcome)
		r.observer(outcome)

		if errors.Is(outcome.Err, prompt.ErrAborted) {
			report.Aborted = true
			break
		}
		if outcome.Err != nil {
			r.log.ForGame(entry.Name).Error().Err(outcome.Err).Msg("sync failed")
		}
	}

	if err := r.manifests.Save(m); err != nil {
		r.log.Error().Err(err).Msg("failed to save manifest")
		return report, err
	}
	return report, stopErr
}

func (r *Runner) process(ctx context.Context, entry locator.SaveEntry, m *manifest.Manifest, folders map[string]string) Outcome {
	outcome := Outcome{Game: entry.Name, Launcher: entry.Launcher}

	var row manifest.Row
	if entry.Missing() {
		row, _ = m.Row(entry.Name)
	} else {
		row = m.Observe(entry.Name, entry.Path)
	}

	var folderID string
	var cloud *remote.File
	if !entry.Missing() {
		id, files, err := r.listing(ctx, entry.Launcher, folders)
		if err != nil {
			outcome.Err = saveerrors.NewRemoteCallError("list", err).WithGame(entry.Name)
			return outcome
		}
		folderID = id
		cloud = remote.FindFile(files, r.engine.FileName(entry.Name))
	}

	res, err := r.engine.DecideAndExecute(ctx, entry, folderID, cloud, row, r.policy)
	if res.WatermarkSet {
		if res.Restored {
			m.SetRestored(entry.Name, res.Watermark)
		} else {
			m.SetWatermark(entry.Name, res.Watermark)
		}
	}
	outcome.Result = res
	outcome.Err = err
	return outcome
}

// listing returns the launcher's folder, created once per batch, and its
// children as they are now. Earlier entries of the batch may have changed them.
func (r *Runner) listing(ctx context.Context, launcher string, folders map[string]string) (string, []remote.File, error) {
	store := r.engine.Store()

	id, ok := folders[launcher]
	if !ok {
		var err error
		id, err = remote.EnsurePath(ctx, store, r.root, launcher)
		if err != nil {
			return "", nil, err
		}
		folders[launcher] = id
	}

	files, err := store.ListChildren(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, files, nil
}
