package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"
)

// CommandResult is the captured outcome of one git invocation. Args,
// Stdout and Stderr are already redacted.
type CommandResult struct {
	Args     []string       `json:"args"`
	Success  bool           `json:"success"`
	Stdout   string         `json:"stdout"`
	Stderr   string         `json:"stderr"`
	ExitCode int            `json:"exitCode"`
	Kind     apperrors.Kind `json:"kind,omitempty"`
}

// Output returns stdout with surrounding whitespace removed.
func (r *CommandResult) Output() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Stdout)
}

// Combined joins stderr and stdout for error reporting.
func (r *CommandResult) Combined() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Stderr + "\n" + r.Stdout)
}

// Executor runs git in a directory.
type Executor interface {
	Run(ctx context.Context, dir string, args ...string) (*CommandResult, error)
}

// Runner executes the git binary.
type Runner struct {
	// Binary defaults to "git" resolved through PATH.
	Binary string
	// Env is appended to the inherited environment.
	Env    []string
	logger *observability.Logger
}

// NewRunner creates a runner that logs each command at debug level.
func NewRunner(logger *observability.Logger) *Runner {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Runner{Binary: "git", logger: logger.WithField("component", "git")}
}

// Run executes git args in dir. A nonzero exit, a missing directory and a
// missing git binary all come back as Success=false; only an unexpected
// spawn failure is returned as an error.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) (*CommandResult, error) {
	result := &CommandResult{Args: RedactArgs(args), ExitCode: -1}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		result.Stderr = fmt.Sprintf("working directory does not exist: %s", dir)
		return result, nil
	}

	binary := r.Binary
	if binary == "" {
		binary = "git"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		result.Stderr = fmt.Sprintf("git executable not found: %v", err)
		return result, nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, r.Env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()

	result.Stdout = Redact(stdout.String())
	result.Stderr = Redact(stderr.String())

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		result.Success = true
		result.ExitCode = 0
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, apperrors.Wrap(runErr, apperrors.ErrCodeGitCommand, "failed to start git").
			WithContext("args", strings.Join(result.Args, " "))
	}

	r.logger.DebugWithFields("git command finished", map[string]interface{}{
		"args":        strings.Join(result.Args, " "),
		"dir":         dir,
		"exit_code":   result.ExitCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}
