package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"datasync/internal/git"
	"datasync/pkg/models"
)

// StatusView collects everything the status command prints.
type StatusView struct {
	Config  models.PublicConfig
	Repo    *models.RepoStatus
	Undo    models.Availability
	Running bool
}

func repoText(url string) string {
	if url == "" {
		return ColorDim("not configured")
	}
	return fmt.Sprintf("%s %s", ColorBold(git.ExtractRepoName(url)), ColorDim("("+url+")"))
}

// RenderStatus writes the settings summary followed by the change table.
func RenderStatus(w io.Writer, view StatusView) {
	ShowHeader(w, "DataSync Status")

	summary := tablewriter.NewWriter(w)
	summary.SetBorder(false)
	summary.SetAutoWrapText(false)
	summary.SetAlignment(tablewriter.ALIGN_LEFT)
	summary.SetColumnSeparator("")
	summary.AppendBulk([][]string{
		{"Repository", repoText(view.Config.RepoURL)},
		{"Branch", view.Config.Branch},
		{"Auto-sync", autoSyncText(view)},
		{"Last sync", lastSyncText(view.Config.LastSync)},
		{"Authorized", authText(view.Config)},
		{"Undo", undoText(view.Undo)},
	})
	summary.Render()
	fmt.Fprintln(w)

	if view.Repo == nil || !view.Repo.Initialized {
		ShowWarning(w, "repository not initialized")
		return
	}
	if len(view.Repo.Changes) == 0 {
		ShowInfo(w, "working tree clean")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Status", "Path"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, line := range view.Repo.Changes {
		code, path := splitPorcelain(line)
		table.Append([]string{fmt.Sprintf("%d", i+1), colorStatus(code), path})
	}
	table.Render()
}

// splitPorcelain separates the two-letter status code from the path of a
// `git status --porcelain` line.
func splitPorcelain(line string) (string, string) {
	if len(line) < 4 {
		return strings.TrimSpace(line), ""
	}
	return strings.TrimSpace(line[:2]), line[3:]
}

func colorStatus(code string) string {
	switch {
	case code == "??":
		return ColorInfo("untracked")
	case strings.Contains(code, "U"):
		return ColorError("conflict")
	case strings.Contains(code, "D"):
		return ColorError("deleted")
	case strings.Contains(code, "A"):
		return ColorSuccess("added")
	case strings.Contains(code, "R"):
		return ColorWarning("renamed")
	case strings.Contains(code, "M"):
		return ColorWarning("modified")
	default:
		return code
	}
}

func autoSyncText(view StatusView) string {
	if !view.Config.AutoSync {
		return ColorDim("off")
	}
	text := fmt.Sprintf("every %d min", view.Config.SyncInterval)
	if view.Running {
		return ColorSuccess(text)
	}
	return text
}

func lastSyncText(ts *time.Time) string {
	if ts == nil {
		return ColorDim("never")
	}
	return ts.Local().Format(time.RFC3339)
}

func authText(cfg models.PublicConfig) string {
	if !cfg.IsAuthorized {
		return ColorWarning("no")
	}
	if cfg.Username != "" {
		return ColorSuccess("yes") + " (" + cfg.Username + ")"
	}
	return ColorSuccess("yes")
}

func undoText(a models.Availability) string {
	if !a.Available {
		return ColorDim("none")
	}
	if a.Timestamp != nil {
		return fmt.Sprintf("%s at %s", a.Operation, a.Timestamp.Local().Format(time.Kitchen))
	}
	return string(a.Operation)
}
