package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/locator"
	"github.com/savehaven/savehaven/internal/prompt"
	"github.com/savehaven/savehaven/internal/sync"
	"github.com/savehaven/savehaven/internal/ui"
)

var (
	uploadName       string
	uploadPersistent bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload any folder to the cloud root",
	Long: `Archives a folder and uploads it straight into the cloud root folder,
outside the per-launcher folders used by sync. Uploading the same name again
adds a new revision.

Examples:
  savehaven upload ~/Documents/my-saves
  savehaven upload ./saves -n "Stardew Valley" -p`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVarP(&uploadName, "name", "n", "", "Name in the cloud (default: folder name)")
	uploadCmd.Flags().BoolVarP(&uploadPersistent, "persistent", "p", false, "Mark the uploaded revision keep-forever")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return saveerrors.NewNotFoundError(path, err)
	}
	if !info.IsDir() {
		return saveerrors.NewArchiveError(path, fmt.Errorf("not a directory"))
	}

	name := uploadName
	if name == "" {
		name = filepath.Base(path)
	}

	modified, err := locator.ModifiedAt(path)
	if err != nil {
		return saveerrors.NewArchiveError(path, err)
	}
	entry := locator.SaveEntry{Name: name, Path: path, ModifiedAt: modified}

	a, err := newApp(ctx, prompt.Auto{})
	if err != nil {
		return err
	}
	defer a.Close()

	rootID, err := a.rootFolder(ctx)
	if err != nil {
		return err
	}
	cloud, err := a.cloudFile(ctx, rootID, name)
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Uploading %s", name))
	spinner.Start()

	policy := a.policy()
	policy.KeepForever = policy.KeepForever || uploadPersistent
	res, err := a.engine.ForceUpload(ctx, entry, rootID, cloud, policy)
	if err != nil {
		spinner.Fail()
		if res.Uploaded {
			ui.PrintWarning("%s was uploaded but not marked keep-forever", name)
		}
		return err
	}
	spinner.Stop()

	if res.Action == sync.ActionRevision {
		ui.PrintSuccess("Uploaded %s as a new revision of %s", path, a.engine.FileName(name))
	} else {
		ui.PrintSuccess("Uploaded %s as %s", path, a.engine.FileName(name))
	}
	return nil
}
