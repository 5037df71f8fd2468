package errors

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
)

// Display writes a user-facing rendering of err to w. AppErrors get their
// code, context and suggestions; anything else is printed plainly.
func Display(w io.Writer, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(w, "%s %v\n", color.RedString("Error:"), err)
		return
	}

	fmt.Fprintf(w, "\n%s\n", severityColor(appErr.Severity).Sprintf("[%s] %s", appErr.Code, appErr.Message))
	if appErr.Cause != nil {
		fmt.Fprintf(w, "  caused by: %v\n", appErr.Cause)
	}

	if len(appErr.Context) > 0 {
		keys := make([]string, 0, len(appErr.Context))
		for k := range appErr.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "\nContext:")
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %v\n", key, appErr.Context[key])
		}
	}

	if len(appErr.Suggestions) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")
		for i, suggestion := range appErr.Suggestions {
			fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
		}
	}

	if appErr.Severity == SeverityCritical {
		fmt.Fprintln(w, "\nFor support, please include:")
		fmt.Fprintf(w, "  - Error code: %s\n", appErr.Code)
		fmt.Fprintf(w, "  - Timestamp: %s\n", appErr.Timestamp.Format(time.RFC3339))
	}
}

func severityColor(severity ErrorSeverity) *color.Color {
	switch severity {
	case SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case SeverityError:
		return color.New(color.FgHiRed)
	case SeverityWarning:
		return color.New(color.FgYellow)
	case SeverityInfo:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}
