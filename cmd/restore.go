package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/manifest"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/remote"
	"github.com/savehaven/savehaven/internal/retention"
	"github.com/savehaven/savehaven/internal/tui"
	"github.com/savehaven/savehaven/internal/ui"
)

var (
	restoreLauncher string
	restoreTo       string
	restoreYes      bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <game>",
	Short: "Replace a local save with its cloud copy",
	Long: `Downloads the cloud copy of a game and unpacks it into the game's save
folder. An existing save folder is first moved to the backup directory
(<backup_dir>/<game>/<game>-YYYYMMDD-HHMMSS), so nothing is lost.

The target folder is taken from --to, the manifest, the custom games in the
config, or a fresh launcher scan, in that order. This also restores saves on
a new machine where the folder does not exist yet.

If the restore fails after the old save was moved aside, run
'savehaven recover' to put it back.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringVarP(&restoreLauncher, "launcher", "l", "", "Launcher folder to restore from")
	restoreCmd.Flags().StringVar(&restoreTo, "to", "", "Restore into this folder")
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "Do not ask for confirmation")
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	a, err := newApp(ctx, prompt.Auto{})
	if err != nil {
		return err
	}
	defer a.Close()

	game, err := findCloudGame(ctx, a, name, restoreLauncher)
	if err != nil {
		return err
	}

	m := a.manifests.Load()
	path, err := restoreTarget(ctx, a, name, m)
	if err != nil {
		return err
	}

	if interactive(restoreYes) {
		ok, err := tui.Confirm(ctx,
			fmt.Sprintf("Restore %s?", name),
			fmt.Sprintf("Cloud copy from %s goes to %s.\nAn existing save is moved to %s first.",
				ui.FormatEpoch(game.ModifiedAt), path, a.guard.BackupDir()))
		if err != nil || !ok {
			ui.PrintInfo("Restore cancelled")
			return nil
		}
	}

	entry := locator.SaveEntry{Name: name, Launcher: game.Launcher, Path: path}
	cloud := &remote.File{ID: game.FileID, Name: game.FileName, ModifiedAt: game.ModifiedAt, Size: game.Size}

	spinner := ui.NewSpinner(fmt.Sprintf("Restoring %s", name))
	spinner.Start()
	res, err := a.engine.Restore(ctx, entry, cloud)
	if err != nil {
		spinner.Fail()
		return err
	}
	spinner.Stop()

	m.Observe(name, path)
	m.SetRestored(name, res.Watermark)
	if err := a.manifests.Save(m); err != nil {
		return err
	}

	ui.PrintSuccess("Restored %s into %s", name, path)
	if res.BackupPath != "" {
		ui.PrintInfo("Previous save kept at %s", res.BackupPath)
	}
	return nil
}

// findCloudGame locates a game's archive in the cloud, optionally limited to
// one launcher folder
func findCloudGame(ctx context.Context, a *app, name, launcher string) (retention.Game, error) {
	rootID, err := a.rootFolder(ctx)
	if err != nil {
		return retention.Game{}, err
	}
	games, err := a.retention().ListAll(ctx, rootID)
	if err != nil {
		return retention.Game{}, err
	}

	for _, g := range games {
		if g.Name == name && (launcher == "" || g.Launcher == launcher) {
			return g, nil
		}
	}
	return retention.Game{}, saveerrors.NewNotFoundError(a.engine.FileName(name),
		fmt.Errorf("%s has no copy in %s", name, a.store.Name())).
		WithSuggestion("Run 'savehaven list' to see the games in the cloud")
}

// restoreTarget picks the folder a game is restored into
func restoreTarget(ctx context.Context, a *app, name string, m *manifest.Manifest) (string, error) {
	if restoreTo != "" {
		return filepath.Abs(restoreTo)
	}
	if row, ok := m.Row(name); ok && row.Path != "" {
		return row.Path, nil
	}
	if path, ok := a.cfg.CustomGames[name]; ok && path != "" {
		return path, nil
	}

	entry, found, err := a.locator().Locate(ctx, name, restoreLauncher)
	if err != nil {
		return "", err
	}
	if !found || entry.Missing() {
		return "", saveerrors.NewLocatorMiss(name).
			WithSuggestion(fmt.Sprintf("Pass --to <folder> or run: savehaven add %q <path>", name))
	}
	return entry.Path, nil
}
