package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/savehaven/savehaven/internal/config"
	"github.com/savehaven/savehaven/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit the configuration",
	Long: `Show or edit the SaveHaven configuration file.

The config file controls:
  - Launchers to scan and the Steam install type
  - Custom game folders
  - Cloud provider (s3 or dir) and the root folder name
  - Encryption, auto-overwrite and keep-forever defaults
  - Where backups, the manifest and the log are written

S3 credentials are read from the environment
(SAVEHAVEN_S3_ACCESS_KEY_ID, SAVEHAVEN_S3_SECRET_ACCESS_KEY) or the
default AWS credential chain, never from the file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current configuration",
	Long:  `Displays the configuration in effect, including defaults and environment overrides.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the configuration in your editor",
	Long: `Opens the configuration file in your default editor.

The editor is taken from the EDITOR environment variable,
falling back to 'vim' if not set.`,
	RunE: runConfigEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	out := ui.Output()
	ui.PrintHeader("Current configuration")
	fmt.Fprintln(out, string(data))

	if _, err := os.Stat(configPath()); os.IsNotExist(err) {
		ui.PrintInfo("Using the defaults, no config file at %s", configPath())
		ui.PrintInfo("Create one with: savehaven init")
	} else {
		ui.PrintInfo("Loaded from %s", configPath())
	}
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path := configPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		ui.PrintInfo("No config file yet, creating %s", path)
		if err := saveConfig(config.DefaultConfig()); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vim"
	}

	edit := exec.CommandContext(cmd.Context(), editor, path)
	edit.Stdin = os.Stdin
	edit.Stdout = os.Stdout
	edit.Stderr = os.Stderr
	if err := edit.Run(); err != nil {
		return fmt.Errorf("failed to run %s: %w", editor, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		ui.PrintWarning("The edited config does not load")
		return err
	}
	ui.PrintSuccess("Config is valid (%d launcher(s), %d custom game(s))", len(cfg.Launchers), len(cfg.CustomGames))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(ui.Output(), configPath())
	return nil
}
