package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/savehaven/savehaven/internal/config"
	"github.com/savehaven/savehaven/internal/ui"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "savehaven",
	Short: "Back up game saves to the cloud and keep them in sync",
	Long: `SaveHaven finds the save folders of games installed through Heroic, Steam
(Proton compatdata) or added by hand, and keeps a copy of each one in the
cloud.

Each sync compares the local save, the time of the last upload from this
machine and the cloud copy, then uploads, skips or offers to restore.
Existing local saves are always moved aside before a restore.

Cloud storage is either an S3-compatible bucket (AWS S3, Backblaze B2, MinIO,
Cloudflare R2) with versioning, or a plain directory such as a NAS mount.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintSaveError(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug details")
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// loadConfig reads, expands and validates the configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// saveConfig writes cfg back to the config file. Paths are stored expanded.
func saveConfig(cfg *config.Config) error {
	if err := cfg.Save(configPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
