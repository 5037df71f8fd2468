package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"datasync/internal/ui"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync settings and pending changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, appOptions{oneShot: true})
		if err != nil {
			return err
		}
		defer a.close()

		repo, err := a.svc.Status(cmd.Context())
		if err != nil {
			return err
		}

		view := ui.StatusView{
			Config:  a.svc.Config(),
			Repo:    repo,
			Undo:    a.svc.UndoAvailability(),
			Running: a.svc.Schedule().Running,
		}
		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"config": view.Config,
				"git":    view.Repo,
			})
		}

		ui.RenderStatus(cmd.OutOrStdout(), view)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print machine-readable output")
	rootCmd.AddCommand(statusCmd)
}
