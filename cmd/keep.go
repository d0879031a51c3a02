package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/ui"
)

var (
	keepLauncher string
	keepYes      bool
)

var keepCmd = &cobra.Command{
	Use:   "keep <game> [revision-id...]",
	Short: "Mark cloud revisions keep-forever",
	Long: `Marks revisions of a game's cloud archive so they are never pruned.

Without revision IDs you pick revisions from a list; with --yes the latest
revision is marked. Marking a revision twice does nothing.

Examples:
  savehaven keep Hades
  savehaven keep Hades 3f2a9c1e-...
  savehaven keep Hades --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKeep,
}

func init() {
	rootCmd.AddCommand(keepCmd)
	keepCmd.Flags().StringVarP(&keepLauncher, "launcher", "l", "", "Launcher folder of the game")
	keepCmd.Flags().BoolVarP(&keepYes, "yes", "y", false, "Mark the latest revision without asking")
}

func runKeep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	a, err := newApp(ctx, prompt.Auto{})
	if err != nil {
		return err
	}
	defer a.Close()

	game, err := findCloudGame(ctx, a, name, keepLauncher)
	if err != nil {
		return err
	}
	rm := a.retention()

	if len(args) == 1 && !interactive(keepYes) {
		rev, err := rm.MarkLatest(ctx, game.FileID)
		if err != nil {
			return err
		}
		ui.PrintSuccess("Marked the latest revision of %s (%s) keep-forever", name, ui.FormatEpoch(rev.ModifiedAt))
		return nil
	}

	ids := args[1:]
	if len(ids) == 0 {
		labels := make([]string, len(game.Revisions))
		for i, r := range game.Revisions {
			labels[i] = revisionLabel(r.ID, r.ModifiedAt, r.Size, r.KeepForever, r.Latest)
		}
		idx, err := newSelector(false, nil).Select(ctx, fmt.Sprintf("Revisions of %s to keep forever", name), labels)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				ui.PrintInfo("Aborted")
				return nil
			}
			return err
		}
		for _, i := range idx {
			ids = append(ids, game.Revisions[i].ID)
		}
	}

	known := make(map[string]bool, len(game.Revisions))
	for _, r := range game.Revisions {
		known[r.ID] = r.KeepForever
	}

	marked := 0
	for _, id := range ids {
		kept, ok := known[id]
		if !ok {
			ui.PrintWarning("%s has no revision %s", name, id)
			continue
		}
		if kept {
			ui.PrintSkip("%s is already kept forever", id)
			continue
		}
		if err := rm.MarkKeepForever(ctx, game.FileID, id); err != nil {
			ui.PrintSaveError(err)
			continue
		}
		marked++
	}

	ui.PrintSuccess("Marked %d revision(s) of %s keep-forever", marked, name)
	return nil
}
