package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/savehaven/savehaven/internal/config"
	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/manifest"
	"github.com/savehaven/savehaven/internal/ui"
)

var addCmd = &cobra.Command{
	Use:   "add <game> <path>",
	Short: "Track a save folder by hand",
	Long: `Adds a custom game whose saves live in <path>. Custom games are synced
with the launcher games and win over a launcher game with the same name.

Adding a game that is already tracked replaces its path and resets its
upload state, so the next sync treats the cloud copy as a conflict.

Example:
  savehaven add "Stardew Valley" ~/.config/StardewValley/Saves`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:     "remove <game>",
	Aliases: []string{"rm"},
	Short:   "Stop tracking a game",
	Long: `Removes a custom game from the config and forgets its upload state. The
cloud copy is left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	path, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	if info, err := os.Stat(path); err != nil {
		ui.PrintWarning("%s does not exist yet, %s is skipped until it does", path, name)
	} else if !info.IsDir() {
		return saveerrors.NewArchiveError(path, fmt.Errorf("not a directory"))
	}

	cfg.CustomGames[name] = path
	if err := saveConfig(cfg); err != nil {
		return err
	}

	m, store, err := loadManifest(cfg)
	if err != nil {
		return err
	}
	m.Put(name, path)
	if err := store.Save(m); err != nil {
		return err
	}

	ui.PrintSuccess("Added %s: %s", name, path)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	_, custom := cfg.CustomGames[name]
	if custom {
		delete(cfg.CustomGames, name)
		if err := saveConfig(cfg); err != nil {
			return err
		}
	}

	m, store, err := loadManifest(cfg)
	if err != nil {
		return err
	}
	tracked := m.Remove(name)
	if tracked {
		if err := store.Save(m); err != nil {
			return err
		}
	}

	if !custom && !tracked {
		return saveerrors.NewNotFoundError(name, fmt.Errorf("%s is not tracked", name)).
			WithSuggestion("Run 'savehaven sync' to see the games found on this machine")
	}
	ui.PrintSuccess("Removed %s", name)
	return nil
}

// loadManifest opens the manifest named by an unexpanded config
func loadManifest(cfg *config.Config) (*manifest.Manifest, *manifest.Store, error) {
	expanded := *cfg
	expanded.CustomGames = nil
	if err := expanded.ExpandPaths(); err != nil {
		return nil, nil, err
	}
	store := manifest.NewStore(afero.NewOsFs(), expanded.ManifestPath)
	return store.Load(), store, nil
}
