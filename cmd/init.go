package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/savehaven/savehaven/internal/config"
	"github.com/savehaven/savehaven/internal/crypto"
	"github.com/savehaven/savehaven/internal/ui"
)

var initEncrypt bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file",
	Long: `Creates a default configuration file if none exists.

With --encrypt an age key is generated and encryption is switched on, so
archives are encrypted before they leave this machine. Keep a copy of the
key somewhere safe: without it no encrypted archive can be restored.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initEncrypt, "encrypt", false, "Generate an encryption key and encrypt uploads")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	created := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created = true
	} else {
		ui.PrintSuccess("Config already exists: %s", path)
	}

	if initEncrypt {
		expanded := *cfg
		expanded.CustomGames = nil
		if err := expanded.ExpandPaths(); err != nil {
			return err
		}

		sealer := crypto.NewSealer(expanded.EncryptionKey)
		if sealer.KeyExists() {
			ui.PrintSuccess("Encryption key already exists: %s", sealer.KeyPath())
		} else {
			recipient, err := sealer.GenerateKey()
			if err != nil {
				return err
			}
			ui.PrintSuccess("Generated encryption key: %s", sealer.KeyPath())
			ui.PrintInfo("Public key: %s", recipient)
			ui.PrintWarning("Back up this key. Without it encrypted saves cannot be restored")
		}
		cfg.Encrypt = true
	}

	if created || initEncrypt {
		if err := saveConfig(cfg); err != nil {
			return err
		}
	}
	if created {
		ui.PrintSuccess("Created config: %s", path)
	}

	ui.PrintInfo("Next: 'savehaven launchers' to pick launchers, then 'savehaven sync'")
	return nil
}
