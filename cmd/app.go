package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/savehaven/savehaven/internal/archiver"
	"github.com/savehaven/savehaven/internal/config"
	"github.com/savehaven/savehaven/internal/crypto"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/logger"
	"github.com/savehaven/savehaven/internal/manifest"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/recovery"
	"github.com/savehaven/savehaven/internal/remote"
	"github.com/savehaven/savehaven/internal/retention"
	"github.com/savehaven/savehaven/internal/sync"
	"github.com/savehaven/savehaven/internal/tui"
)

// app bundles everything a command that talks to the cloud needs
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	closer    io.Closer
	store     remote.Store
	archiver  *archiver.Archiver
	guard     *recovery.Manager
	manifests *manifest.Store
	engine    *sync.Engine
}

func newApp(ctx context.Context, p prompt.Prompter) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, closer := logger.NewFileLogger(cfg.LogFile, verbose)

	store, err := remote.New(ctx, cfg.Cloud, nil)
	if err != nil {
		closer.Close()
		return nil, saveerrors.NewRemoteCallError("connect", err)
	}

	opts := []archiver.Option{archiver.WithLogger(log)}
	if cfg.Encrypt {
		sealer := crypto.NewSealer(cfg.EncryptionKey)
		if !sealer.KeyExists() {
			closer.Close()
			return nil, saveerrors.NewConfigError("encryption_key",
				fmt.Errorf("key %s not found, run 'savehaven init --encrypt'", cfg.EncryptionKey))
		}
		opts = append(opts, archiver.WithSealer(sealer))
	}
	arc := archiver.NewArchiver(opts...)
	guard := recovery.NewManager(cfg.BackupDir, nil)

	a := &app{
		cfg:       cfg,
		log:       log,
		closer:    closer,
		store:     store,
		archiver:  arc,
		guard:     guard,
		manifests: manifest.NewStore(afero.NewOsFs(), cfg.ManifestPath, manifest.WithLogger(log)),
		engine:    sync.NewEngine(store, arc, guard, sync.WithPrompter(p), sync.WithLogger(log)),
	}
	log.Debug().Str("provider", store.Name()).Msg("connected")
	return a, nil
}

func (a *app) Close() {
	a.closer.Close()
}

func (a *app) policy() sync.Policy {
	return sync.Policy{
		AutoOverwrite: a.cfg.AutoOverwrite,
		KeepForever:   a.cfg.KeepForever,
	}
}

func (a *app) locator() *locator.Locator {
	return locator.New(locator.OptionsFromConfig(a.cfg), locator.NewPCGWLookup(""), a.log)
}

func (a *app) retention() *retention.Manager {
	return retention.NewManager(a.store, a.archiver.Ext())
}

// rootFolder returns the ID of the cloud root folder, creating it if needed
func (a *app) rootFolder(ctx context.Context) (string, error) {
	id, err := remote.EnsurePath(ctx, a.store, a.cfg.Cloud.Root)
	if err != nil {
		return "", saveerrors.NewRemoteCallError("create folder", err)
	}
	return id, nil
}

// launcherFolder returns the folder holding a launcher's archives
func (a *app) launcherFolder(ctx context.Context, launcher string) (string, error) {
	id, err := remote.EnsurePath(ctx, a.store, a.cfg.Cloud.Root, launcher)
	if err != nil {
		return "", saveerrors.NewRemoteCallError("create folder", err)
	}
	return id, nil
}

// cloudFile looks up a game's archive in a folder, nil when absent
func (a *app) cloudFile(ctx context.Context, folderID, game string) (*remote.File, error) {
	files, err := a.store.ListChildren(ctx, folderID)
	if err != nil {
		return nil, saveerrors.NewRemoteCallError("list", err)
	}
	return remote.FindFile(files, a.engine.FileName(game)), nil
}

// interactive reports whether prompts can be shown
func interactive(assumeYes bool) bool {
	return !assumeYes && tui.IsTerminal()
}

// newPrompter picks how questions are answered: defaults for unattended
// runs, huh forms on a terminal, numbered lines otherwise.
func newPrompter(assumeYes bool) prompt.Prompter {
	switch {
	case assumeYes:
		return prompt.Auto{}
	case tui.IsTerminal():
		return tui.NewPrompter()
	default:
		return prompt.NewLine(os.Stdin, os.Stdout)
	}
}

func newSelector(assumeYes bool, names []string) prompt.Selector {
	switch {
	case len(names) > 0:
		return prompt.ByName{Names: names}
	case assumeYes:
		return prompt.All{}
	case tui.IsTerminal():
		return tui.NewSelector()
	default:
		return prompt.NewLineSelector(prompt.NewLine(os.Stdin, os.Stdout))
	}
}
