package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"datasync/internal/ui"
	"datasync/pkg/models"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the sync settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored settings as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, appOptions{oneShot: true})
		if err != nil {
			return err
		}
		defer a.close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a.svc.Config())
	},
}

var configSetFlags struct {
	repoURL  string
	branch   string
	autoSync bool
	interval int
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the repository URL, branch or auto-sync schedule",
	Long: `Update the sync settings. Flags that are not given keep their stored
value. When the repository exists, origin is pointed at the new URL.`,
	Args: cobra.NoArgs,
	RunE: runConfigSet,
}

func init() {
	f := configSetCmd.Flags()
	f.StringVar(&configSetFlags.repoURL, "repo-url", "", "remote repository URL")
	f.StringVar(&configSetFlags.branch, "branch", "", "branch to sync")
	f.BoolVar(&configSetFlags.autoSync, "auto-sync", false, "push on a schedule while serving")
	f.IntVar(&configSetFlags.interval, "interval", 0, "auto-sync interval in minutes")

	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{oneShot: true})
	if err != nil {
		return err
	}
	defer a.close()

	current := a.store.Get()
	update := models.ConfigUpdate{
		RepoURL:      current.RepoURL,
		Branch:       current.Branch,
		AutoSync:     current.AutoSync,
		SyncInterval: models.FlexibleInt(current.SyncInterval),
	}

	flags := cmd.Flags()
	if flags.Changed("repo-url") {
		update.RepoURL = configSetFlags.repoURL
	}
	if flags.Changed("branch") {
		update.Branch = configSetFlags.branch
	}
	if flags.Changed("auto-sync") {
		update.AutoSync = configSetFlags.autoSync
	}
	if flags.Changed("interval") {
		update.SyncInterval = models.FlexibleInt(configSetFlags.interval)
	}

	result, err := a.svc.UpdateConfig(cmd.Context(), update)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	ui.ShowSuccess(w, fmt.Sprintf("Configuration saved to %s", a.store.Path()))
	if result.RemoteError != "" {
		ui.ShowWarning(w, "configuring the remote failed: "+result.RemoteError)
	}
	return nil
}
