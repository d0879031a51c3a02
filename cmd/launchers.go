package cmd

import (
	"errors"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/savehaven/savehaven/internal/config"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/tui"
	"github.com/savehaven/savehaven/internal/ui"
)

const steamWarning = "Steam has its own save sync. Back up Steam games with SaveHaven anyway?"

var (
	launchersSet   []string
	launchersSteam string
)

var launchersCmd = &cobra.Command{
	Use:   "launchers",
	Short: "Choose which launchers to scan",
	Long: `Selects the launchers whose save folders are scanned, and how Steam is
installed (distro package, Flatpak or Snap).

Run without flags for an interactive form, or pass the choice directly:
  savehaven launchers --set Heroic,Steam --steam flatpak`,
	RunE: runLaunchers,
}

func init() {
	rootCmd.AddCommand(launchersCmd)
	launchersCmd.Flags().StringSliceVar(&launchersSet, "set", nil,
		"Launchers to enable ("+strings.Join(config.KnownLaunchers, ", ")+")")
	launchersCmd.Flags().StringVar(&launchersSteam, "steam", "",
		"Steam install type ("+strings.Join(config.SteamInstalls, ", ")+")")
}

func runLaunchers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	hadSteam := cfg.HasLauncher(config.LauncherSteam)

	flagged := cmd.Flags().Changed("set") || cmd.Flags().Changed("steam")
	switch {
	case flagged:
		if cmd.Flags().Changed("set") {
			cfg.Launchers = launchersSet
		}
		if launchersSteam != "" {
			cfg.SteamInstall = launchersSteam
		}
	case tui.IsTerminal():
		choice, err := tui.LaunchersForm(ctx, config.KnownLaunchers, cfg.Launchers,
			config.SteamInstalls, cfg.SteamInstall, config.LauncherSteam)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				ui.PrintInfo("Aborted")
				return nil
			}
			return err
		}

		if !hadSteam && slices.Contains(choice.Launchers, config.LauncherSteam) {
			ok, err := tui.Confirm(ctx, "Steam", steamWarning)
			if err != nil && !errors.Is(err, prompt.ErrAborted) {
				return err
			}
			if !ok {
				choice.Launchers = slices.DeleteFunc(choice.Launchers, func(l string) bool {
					return l == config.LauncherSteam
				})
			}
		}
		cfg.Launchers = choice.Launchers
		cfg.SteamInstall = choice.SteamInstall
	default:
		printLaunchers(cfg)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}

	printLaunchers(cfg)
	return nil
}

func printLaunchers(cfg *config.Config) {
	if len(cfg.Launchers) == 0 {
		ui.PrintInfo("No launchers enabled, only custom games are synced")
		return
	}
	ui.PrintInfo("Launchers: %s", strings.Join(cfg.Launchers, ", "))
	if cfg.HasLauncher(config.LauncherSteam) {
		ui.PrintInfo("Steam (%s): %s", cfg.SteamInstall, locator.SteamRoot(cfg.SteamInstall, cfg.SteamRoot))
	}
}
