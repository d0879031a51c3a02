package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/savehaven/savehaven/internal/metadata"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/retention"
	"github.com/savehaven/savehaven/internal/tui"
	"github.com/savehaven/savehaven/internal/ui"
)

var listRevisions bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the games stored in the cloud",
	Long: `Lists every game archive in the cloud, grouped by launcher, with the
number of stored revisions and how many are marked keep-forever.

Use --revisions to show each revision. Mark revisions keep-forever with
'savehaven keep'.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listRevisions, "revisions", "r", false, "Show every revision")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, prompt.Auto{})
	if err != nil {
		return err
	}
	defer a.Close()

	rootID, err := a.rootFolder(ctx)
	if err != nil {
		return err
	}
	games, err := a.retention().ListAll(ctx, rootID)
	if err != nil {
		return err
	}

	out := ui.Output()
	fmt.Fprintln(out, tui.TitleStyle.Render(fmt.Sprintf("Cloud saves in %s", a.store.Name())))
	if len(games) == 0 {
		ui.PrintInfo("No games uploaded yet. Run 'savehaven sync' first")
		return nil
	}

	launcher := "-"
	for _, g := range games {
		if g.Launcher != launcher {
			launcher = g.Launcher
			heading := launcher
			if heading == "" {
				heading = "Uploads"
			}
			fmt.Fprintf(out, "\n%s\n", ui.Bold(heading))
		}
		printGame(g)
	}
	fmt.Fprintln(out)
	return nil
}

func printGame(g retention.Game) {
	out := ui.Output()

	summary := fmt.Sprintf("%d revision(s)", len(g.Revisions))
	if kept := g.Retained(); kept > 0 {
		summary += ", " + tui.KeepStyle.Render(fmt.Sprintf("%d kept forever", kept))
	}
	fmt.Fprintf(out, "  %s  %s  %s\n",
		tui.GameStyle.Render(g.Name),
		tui.DimStyle.Render(ui.FormatEpoch(g.ModifiedAt)),
		summary)

	if !listRevisions {
		return
	}
	for _, r := range g.Revisions {
		fmt.Fprintf(out, "      %s\n", revisionLabel(r.ID, r.ModifiedAt, r.Size, r.KeepForever, r.Latest))
	}
}

func revisionLabel(id string, modified float64, size int64, keep, latest bool) string {
	var tags []string
	if latest {
		tags = append(tags, tui.LatestStyle.Render("latest"))
	}
	if keep {
		tags = append(tags, tui.KeepStyle.Render("keep forever"))
	}
	label := fmt.Sprintf("%s  %s  %s", ui.FormatEpoch(modified), metadata.FormatSize(size), tui.DimStyle.Render(id))
	if len(tags) > 0 {
		label += "  " + strings.Join(tags, " ")
	}
	return label
}
