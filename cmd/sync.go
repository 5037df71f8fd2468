package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"datasync/internal/service"
	"datasync/internal/ui"
	"datasync/pkg/models"
)

// errSyncFailed is returned after a failed outcome has been printed.
var errSyncFailed = errors.New("sync failed")

// defaultServer is where `undo` finds the snapshot it rolls back to.
const defaultServer = "http://localhost:8000"

// syncCommandDef describes one mutating command. local runs it in this
// process; route is the equivalent API call on a running server.
type syncCommandDef struct {
	use      string
	short    string
	long     string
	op       models.Operation
	route    string
	progress string
	confirm  func(a *app) string
	server   string
	local    func(ctx context.Context, svc *service.Service) (*models.Outcome, error)
}

var syncCommands = []syncCommandDef{
	{
		use:      "init",
		short:    "Create the repository in the data directory",
		long:     "Delete any repository in the data directory, initialize a fresh one on the configured branch and point origin at the configured remote.",
		op:       models.OperationInit,
		route:    "/git/init",
		progress: "Initializing repository",
		confirm: func(a *app) string {
			return fmt.Sprintf("This deletes any existing repository in %s. Continue?", a.settings.DataDir)
		},
		local: func(ctx context.Context, svc *service.Service) (*models.Outcome, error) {
			result, err := svc.Init(ctx)
			if err != nil {
				return nil, err
			}
			out := models.Succeeded(models.OperationInit, result.Message)
			out.Warning = result.Warning
			return out, nil
		},
	},
	{
		use:      "push",
		short:    "Commit local changes and push them, merging remote work first",
		op:       models.OperationPush,
		route:    "/git/sync/push",
		progress: "Pushing local changes",
		local:    outcomeOnly((*service.Service).Push),
	},
	{
		use:      "pull",
		short:    "Merge remote changes into the working directory",
		op:       models.OperationPull,
		route:    "/git/sync/pull",
		progress: "Pulling remote changes",
		local:    outcomeOnly((*service.Service).Pull),
	},
	{
		use:      "force-local",
		short:    "Discard local state and reset to the remote branch",
		op:       models.OperationForcePull,
		route:    "/git/sync/force-overwrite-local",
		progress: "Overwriting local state",
		confirm: func(a *app) string {
			return "This discards every local change and resets to the remote branch. Continue?"
		},
		local: outcomeOnly((*service.Service).ForceLocal),
	},
	{
		use:      "force-remote",
		short:    "Commit local state and force-push it over the remote branch",
		op:       models.OperationForcePush,
		route:    "/git/sync/force-overwrite-remote",
		progress: "Overwriting remote branch",
		confirm: func(a *app) string {
			return "This replaces the remote branch history with the local state. Continue?"
		},
		local: outcomeOnly((*service.Service).ForceRemote),
	},
	{
		use:   "undo",
		short: "Roll back the last manual sync",
		long: `Roll the data directory back to the snapshot taken before the last manual
sync. Snapshots live in the serving process, so by default this asks the
server at ` + defaultServer + `.`,
		op:       models.OperationUndo,
		route:    "/undo-sync",
		progress: "Restoring snapshot",
		server:   defaultServer,
		local: func(ctx context.Context, svc *service.Service) (*models.Outcome, error) {
			return svc.Undo(ctx)
		},
	},
}

func outcomeOnly(fn func(*service.Service, context.Context) *models.Outcome) func(context.Context, *service.Service) (*models.Outcome, error) {
	return func(ctx context.Context, svc *service.Service) (*models.Outcome, error) {
		return fn(svc, ctx), nil
	}
}

func init() {
	for _, def := range syncCommands {
		rootCmd.AddCommand(newSyncCommand(def))
	}
}

func newSyncCommand(def syncCommandDef) *cobra.Command {
	var (
		yes       bool
		serverURL string
	)

	c := &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Long:  def.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := runSyncCommand(cmd, def, serverURL, yes)
			if err != nil {
				return err
			}
			if out == nil {
				return nil
			}
			ui.ShowOutcome(cmd.OutOrStdout(), out)
			if !out.Success {
				return errSyncFailed
			}
			return nil
		},
	}

	c.Flags().StringVar(&serverURL, "server", def.server, "run against a DataSync server at this URL instead of in-process")
	if def.confirm != nil {
		c.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	}
	return c
}

// runSyncCommand returns a nil outcome when the user declines the prompt.
func runSyncCommand(cmd *cobra.Command, def syncCommandDef, serverURL string, yes bool) (*models.Outcome, error) {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	var a *app
	if serverURL == "" {
		var err error
		a, err = newApp(cmd, appOptions{oneShot: true})
		if err != nil {
			return nil, err
		}
		defer a.close()
	}

	if def.confirm != nil && !yes {
		prompt := fmt.Sprintf("%s on %s?", def.short, serverURL)
		if a != nil {
			prompt = def.confirm(a)
		}
		ok, err := ui.Confirm(prompt, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			ui.ShowInfo(w, "Aborted, nothing was changed")
			return nil, nil
		}
	}

	start := time.Now()
	spinner := ui.NewSpinner(w, def.progress)
	spinner.Start()

	var (
		out *models.Outcome
		err error
	)
	if a == nil {
		out, err = newRemoteClient(serverURL).post(ctx, def.route, def.op)
	} else {
		out, err = def.local(ctx, a.svc)
		if shutdownErr := a.svc.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			a.logger.WarnWithFields("Failed to restore remote URL", map[string]interface{}{"error": shutdownErr})
		}
	}

	success := err == nil && out != nil && out.Success
	if success {
		spinner.Stop(true, fmt.Sprintf("%s finished in %s", def.use, ui.Elapsed(start)))
	} else {
		spinner.Stop(false, fmt.Sprintf("%s failed after %s", def.use, ui.Elapsed(start)))
	}
	return out, err
}
