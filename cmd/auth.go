package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"datasync/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the GitHub credential",
}

var authTokenCmd = &cobra.Command{
	Use:   "token [TOKEN]",
	Short: "Validate and store a GitHub personal access token",
	Long: `Validate a GitHub personal access token against the API and store it.
Without an argument the token is read from a hidden prompt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, appOptions{oneShot: true})
		if err != nil {
			return err
		}
		defer a.close()

		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			token, err = ui.Password("GitHub token:", "A personal access token with the repo scope")
			if err != nil {
				return err
			}
		}

		login, err := a.svc.SetToken(cmd.Context(), strings.TrimSpace(token))
		if err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Token saved for %s", login))
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a GitHub token is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, appOptions{oneShot: true})
		if err != nil {
			return err
		}
		defer a.close()

		status := a.svc.AuthStatus()
		w := cmd.OutOrStdout()
		if !status.Authorized {
			ui.ShowWarning(w, "not authorized; run 'datasync auth token'")
			return nil
		}
		ui.ShowInfo(w, fmt.Sprintf("authorized as %s", status.Username))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored GitHub token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, appOptions{oneShot: true})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.store.ClearToken(); err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), "Token removed")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authTokenCmd, authStatusCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
