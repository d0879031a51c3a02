package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/savehaven/savehaven/internal/config"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/sync"
	"github.com/savehaven/savehaven/internal/ui"
)

var (
	syncPersistent bool
	syncOverwrite  bool
	syncYes        bool
	syncGames      []string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Back up changed saves and offer to restore newer cloud copies",
	Long: `Scans the enabled launchers and custom games, lets you pick which games to
process, then for each one:

  - uploads it when the cloud has no copy yet
  - uploads it when the local save changed since the last upload
    (asks whether to replace the cloud copy or add a revision)
  - skips it when nothing changed
  - asks what to do when the cloud copy is newer than the last upload
    from this machine (restore, upload anyway or skip)

Use --yes to run without prompts: every game is selected and every
question takes its default answer.

Examples:
  savehaven sync
  savehaven sync --games Hades --games Celeste
  savehaven sync --yes --overwrite --persistent`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVarP(&syncPersistent, "persistent", "p", false, "Mark uploaded revisions keep-forever")
	syncCmd.Flags().BoolVarP(&syncOverwrite, "overwrite", "o", false, "Replace changed cloud copies without asking")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "Select every game and answer prompts with defaults")
	syncCmd.Flags().StringSliceVarP(&syncGames, "games", "g", nil, "Only sync these games")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, newPrompter(syncYes))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.Apply(config.Overrides{AutoOverwrite: syncOverwrite, KeepForever: syncPersistent}); err != nil {
		return err
	}

	ui.PrintHeader(fmt.Sprintf("SaveHaven sync (%s)", a.store.Name()))

	spinner := ui.NewSpinner("Scanning for save folders")
	spinner.Start()
	loc := a.locator()
	entries, err := loc.Scan(ctx)
	if err != nil {
		spinner.Fail()
		return err
	}
	spinner.Stop()

	for _, miss := range loc.Misses {
		ui.PrintWarning("%v", miss)
	}
	if len(entries) == 0 {
		ui.PrintInfo("No save folders found. Enable launchers with 'savehaven launchers' or add one with 'savehaven add'")
		return nil
	}

	selected, err := selectEntries(cmd, entries)
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			ui.PrintInfo("Aborted")
			return nil
		}
		return err
	}
	if len(selected) == 0 {
		ui.PrintInfo("Nothing selected")
		return nil
	}

	var observe sync.Observer = printOutcome
	var skipped []sync.Outcome
	if syncYes {
		bar := ui.NewBatchBar(len(selected), "Syncing")
		observe = func(o sync.Outcome) {
			bar.Describe(o.Game)
			bar.Add(1)
			// Failures are printed in full by printReport.
			if o.Err == nil && !o.Result.Uploaded {
				skipped = append(skipped, o)
			}
		}
	}

	runner := sync.NewRunner(a.engine, a.manifests, a.cfg.Cloud.Root,
		sync.WithPolicy(a.policy()),
		sync.WithObserver(observe),
		sync.WithRunnerLogger(a.log),
	)

	report, runErr := runner.Run(ctx, selected, a.manifests.Load())
	for _, o := range skipped {
		printOutcome(o)
	}
	printReport(report)

	if report != nil && report.Aborted {
		ui.PrintWarning("Stopped, the remaining games were not synced")
	}
	return runErr
}

// selectEntries asks which of the found games to process
func selectEntries(cmd *cobra.Command, entries []locator.SaveEntry) ([]locator.SaveEntry, error) {
	items := make([]string, len(entries))
	for i, e := range entries {
		if len(syncGames) > 0 {
			items[i] = e.Name
			continue
		}
		label := fmt.Sprintf("%s [%s]", e.Name, e.Launcher)
		if e.Missing() {
			label += " (missing)"
		}
		items[i] = label
	}

	idx, err := newSelector(syncYes, syncGames).Select(cmd.Context(), "Select games to sync", items)
	if err != nil {
		return nil, err
	}

	selected := make([]locator.SaveEntry, 0, len(idx))
	for _, i := range idx {
		selected = append(selected, entries[i])
	}
	return selected, nil
}

func printOutcome(o sync.Outcome) {
	res := o.Result
	switch {
	case o.Err != nil:
		ui.PrintError("%s: %v", o.Game, o.Err)
	case res.Restored && res.BackupPath != "":
		ui.PrintSuccess("%s: restored from the cloud, previous save kept at %s", o.Game, res.BackupPath)
	case res.Restored:
		ui.PrintSuccess("%s: restored from the cloud", o.Game)
	case res.Uploaded:
		ui.PrintSuccess("%s: %s", o.Game, describeAction(res.Action))
	case res.Decision == sync.SkipMissing:
		ui.PrintSkip("%s: save folder not found", o.Game)
	case res.Decision == sync.SkipUpToDate:
		ui.PrintSkip("%s: up to date", o.Game)
	case res.Decision == sync.Conflict:
		ui.PrintWarning("%s: conflict, the cloud copy is newer than the last upload from this machine and was left alone", o.Game)
		ui.PrintInfo("Run 'savehaven restore %s' to use the cloud copy, or sync without --yes to choose", o.Game)
	default:
		ui.PrintSkip("%s: skipped", o.Game)
	}
}

func describeAction(a sync.Action) string {
	switch a {
	case sync.ActionUpload:
		return "uploaded"
	case sync.ActionReplace:
		return "replaced the cloud copy"
	case sync.ActionRevision:
		return "uploaded as a new revision"
	default:
		return string(a)
	}
}

func printReport(report *sync.Report) {
	if report == nil {
		return
	}

	failed := report.Failed()
	fmt.Fprintln(ui.Output())
	ui.PrintSummaryTable(
		[]string{"Uploaded", "Restored", "Skipped", "Failed"},
		map[string]string{
			"Uploaded": strconv.Itoa(report.Uploaded()),
			"Restored": strconv.Itoa(report.Restored()),
			"Skipped":  strconv.Itoa(report.Skipped()),
			"Failed":   strconv.Itoa(len(failed)),
		},
	)

	for _, o := range failed {
		if errors.Is(o.Err, prompt.ErrAborted) {
			continue
		}
		ui.PrintSaveError(o.Err)
	}
}
