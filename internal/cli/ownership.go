package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rflorenc/sisense-workbench/internal/folders"
)

var ownershipCmd = &cobra.Command{
	Use:   "ownership",
	Short: "Folder and dashboard ownership",
}

var ownershipChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Transfer a folder, its parent and their subtrees to a new owner",
	Args:  cobra.NoArgs,
	RunE:  withApp(needEnv, runOwnershipChange),
}

var ownershipReq folders.Request

func init() {
	rootCmd.AddCommand(ownershipCmd)
	ownershipCmd.AddCommand(ownershipChangeCmd)
	f := ownershipChangeCmd.Flags()
	f.StringVar(&ownershipReq.RunningUser, "running-user", "", "Email of the user the token belongs to")
	f.StringVar(&ownershipReq.FolderName, "folder", "", "Folder name")
	f.StringVar(&ownershipReq.NewOwner, "new-owner", "", "Email of the new owner")
	f.StringVar(&ownershipReq.OriginalOwnerRule, "original-owner-rule", "edit", "Rule left to the previous owner: edit or view")
	f.BoolVar(&ownershipReq.ChangeDashboardOwnership, "dashboards", true, "Also change the owner of the dashboards in the folders")
}

func runOwnershipChange(app *App, cmd *cobra.Command, args []string) error {
	res, err := folders.NewOwner(app.tenant(app.Env), app.Log).ChangeOwnership(cmd.Context(), ownershipReq)
	if res != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "folders: %d changed, %d skipped\n", res.TotalFoldersChanged, res.FoldersSkipped)
		fmt.Fprintf(out, "dashboards: %d changed, %d skipped\n", res.TotalDashboardsChanged, res.DashboardsSkipped)
		if res.AccessGranted > 0 {
			fmt.Fprintf(out, "hidden dashboards granted: %d\n", res.AccessGranted)
		}
		for _, f := range res.Failed {
			fmt.Fprintf(out, "  FAILED: %s\n", f)
		}
	}
	if errors.Is(err, folders.ErrFolderNotFound) {
		app.Log.Warnf("Folder %q was not found, nothing changed", ownershipReq.FolderName)
		return nil
	}
	return err
}
