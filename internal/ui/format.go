package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"datasync/pkg/models"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess  = colorFunc(color.FgGreen)
	ColorError    = colorFunc(color.FgRed)
	ColorWarning  = colorFunc(color.FgYellow)
	ColorInfo     = colorFunc(color.FgCyan)
	ColorProgress = colorFunc(color.FgBlue)
	ColorBold     = colorFunc(color.Bold)
	ColorDim      = colorFunc(color.Faint)
)

// colorFunc returns a function that colors text if supported
func colorFunc(attrs ...color.Attribute) func(string) string {
	c := color.New(attrs...)
	c.EnableColor()
	return func(text string) string {
		if supportsColor {
			return c.Sprint(text)
		}
		return text
	}
}

// SetColor forces colored output on or off.
func SetColor(enabled bool) {
	supportsColor = enabled
}

// ShowHeader writes a boxed title.
func ShowHeader(w io.Writer, title string) {
	width := 50
	padding := (width - len(title) - 2) / 2
	if padding < 0 {
		padding = 0
	}
	right := width - 2 - padding - len(title)
	if right < 0 {
		right = 0
	}

	fmt.Fprintln(w, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(w, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", right),
	)
	fmt.Fprintln(w, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowSuccess displays a success message
func ShowSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorInfo("INFO:"), message)
}

// ShowFailure displays a failed operation with an optional tip.
func ShowFailure(w io.Writer, message, details string) {
	fmt.Fprintf(w, "%s %s\n", ColorError("FAILED:"), message)
	if details != "" {
		for _, line := range strings.Split(strings.TrimSpace(details), "\n") {
			fmt.Fprintf(w, "  %s\n", ColorDim(line))
		}
	}
	if suggestion := getSuggestion(message + "\n" + details); suggestion != "" {
		fmt.Fprintf(w, "\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(suggestion))
	}
}

// ShowOutcome renders a sync or undo result.
func ShowOutcome(w io.Writer, out *models.Outcome) {
	if out == nil {
		return
	}
	if !out.Success {
		ShowFailure(w, out.Message, out.Details)
		return
	}
	ShowSuccess(w, out.Message)
	if out.Warning != "" {
		ShowWarning(w, warningText(out.Warning))
	}
}

func warningText(warning string) string {
	if warning == models.WarningLocalStateNotRestored {
		return "local changes could not be restored after the sync; they remain in the stash"
	}
	return warning
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "not initialized"):
		return "Run 'datasync init' to create the repository"
	case strings.Contains(lower, "authentication failed"), strings.Contains(lower, "invalid username or password"):
		return "Set a new token with 'datasync auth token'"
	case strings.Contains(lower, "merge conflict"):
		return "Resolve with 'datasync force-local' or 'datasync force-remote'"
	case strings.Contains(lower, "fetch first"), strings.Contains(lower, "non-fast-forward"):
		return "Pull the remote changes first with 'datasync pull'"
	case strings.Contains(lower, "could not resolve host"):
		return "Check the repository URL and your network connectivity"
	case strings.Contains(lower, "in progress"):
		return "Wait for the running sync to finish and retry"
	default:
		return ""
	}
}
