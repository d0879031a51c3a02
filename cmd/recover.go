package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/recovery"
	"github.com/savehaven/savehaven/internal/retention"
	"github.com/savehaven/savehaven/internal/tui"
	"github.com/savehaven/savehaven/internal/ui"
)

var (
	pruneKeep      int
	pruneOlderThan time.Duration
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Inspect and roll back local save backups",
	Long: `Before every restore the existing save folder is moved into the backup
directory. Without a subcommand, recover lists restores that did not finish
and every backup on disk.

Subcommands:
  rollback <game>   put the backup of an unfinished restore back in place
  prune             delete old backups`,
	RunE: runRecoverList,
}

var recoverRollbackCmd = &cobra.Command{
	Use:   "rollback <game>",
	Short: "Move the backup of an unfinished restore back",
	Long: `Moves the save folder that was set aside by an unfinished restore back to
its original location. Anything found at that location is renamed to
<folder>-PARTIAL-<timestamp> first.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecoverRollback,
}

var recoverPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old backups",
	Long: `Deletes backups beyond the newest --keep per game, or older than
--older-than. Backups of unfinished restores are kept; with --older-than,
unfinished restores older than that are forgotten.

Examples:
  savehaven recover prune --keep 3
  savehaven recover prune --older-than 720h`,
	RunE: runRecoverPrune,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.AddCommand(recoverRollbackCmd)
	recoverCmd.AddCommand(recoverPruneCmd)

	recoverPruneCmd.Flags().IntVarP(&pruneKeep, "keep", "k", 5, "Backups to keep per game")
	recoverPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Also delete backups older than this")
}

func newGuard() (*recovery.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return recovery.NewManager(cfg.BackupDir, nil), nil
}

func runRecoverList(cmd *cobra.Command, args []string) error {
	guard, err := newGuard()
	if err != nil {
		return err
	}

	pending, err := guard.Pending()
	if err != nil {
		return err
	}
	out := ui.Output()

	if len(pending) == 0 {
		ui.PrintSuccess("No unfinished restores")
	} else {
		fmt.Fprintln(out, tui.TitleStyle.Render("Unfinished restores"))
		for _, s := range pending {
			fmt.Fprintf(out, "  %s  %s\n", tui.GameStyle.Render(s.Game), tui.DimStyle.Render(s.Timestamp.Local().Format("2006-01-02 15:04:05")))
			fmt.Fprintf(out, "    backup: %s\n", tui.PathStyle.Render(s.BackupPath))
			fmt.Fprintf(out, "    target: %s\n", tui.PathStyle.Render(s.LivePath))
		}
		ui.PrintInfo("Run 'savehaven recover rollback <game>' to put a backup back")
	}

	rotator := retention.NewBackupRotator(guard.BackupDir(), nil)
	backups, err := rotator.Backups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, tui.TitleStyle.Render(fmt.Sprintf("Backups in %s", guard.BackupDir())))
	for _, b := range backups {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			tui.GameStyle.Render(b.Game),
			tui.DimStyle.Render(rotator.Age(b)+" ago"),
			tui.PathStyle.Render(b.Path))
	}
	return nil
}

func runRecoverRollback(cmd *cobra.Command, args []string) error {
	game := args[0]

	guard, err := newGuard()
	if err != nil {
		return err
	}

	state, err := guard.LoadState(game)
	if err != nil {
		return err
	}
	if state == nil {
		return saveerrors.NewNotFoundError(game, fmt.Errorf("no unfinished restore for %s", game)).
			WithSuggestion("Run 'savehaven recover' to list unfinished restores")
	}

	partial, err := guard.Rollback(*state)
	if err != nil {
		return saveerrors.NewRestoreError(game, state.BackupPath, err)
	}

	ui.PrintSuccess("Moved %s back to %s", state.BackupPath, state.LivePath)
	if partial != "" {
		ui.PrintInfo("The incomplete restore was kept at %s", partial)
	}
	return nil
}

func runRecoverPrune(cmd *cobra.Command, args []string) error {
	guard, err := newGuard()
	if err != nil {
		return err
	}

	pending, err := guard.Pending()
	if err != nil {
		return err
	}
	protect := make(map[string]bool, len(pending))
	for _, s := range pending {
		protect[s.BackupPath] = true
	}

	rotator := retention.NewBackupRotator(guard.BackupDir(), nil)
	deleted, err := rotator.RotateByCount(pruneKeep, protect)
	if err != nil {
		return err
	}
	if pruneOlderThan > 0 {
		n, err := rotator.RotateByAge(pruneOlderThan, protect)
		if err != nil {
			return err
		}
		deleted += n

		// Unfinished restores this old are forgotten; their backups stay
		// until the next prune.
		if err := guard.CleanupOldRecoveryStates(pruneOlderThan); err != nil {
			ui.PrintWarning("Failed to clean old recovery states: %v", err)
		}
	}

	ui.PrintSuccess("Deleted %d backup(s)", deleted)
	return nil
}
