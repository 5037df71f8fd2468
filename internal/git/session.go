package git

import (
	"context"
	"sync"

	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"

	"go.uber.org/multierr"
)

// DefaultRemote is the only remote the service manages.
const DefaultRemote = "origin"

// networkCommands contact the remote and get the credential.
var networkCommands = map[string]bool{
	"fetch":     true,
	"push":      true,
	"pull":      true,
	"ls-remote": true,
}

// TokenSource returns the current credential, or "" when none is held.
type TokenSource func() string

// Session runs every git command for one working directory. Network
// commands temporarily carry the token in the remote URL.
type Session struct {
	exec    Executor
	dir     string
	remote  string
	token   TokenSource
	logger  *observability.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	pendingURL string
	hasPending bool
}

// NewSession binds exec to dir. token and metrics may be nil.
func NewSession(exec Executor, dir string, token TokenSource, logger *observability.Logger, metrics *observability.Metrics) *Session {
	if token == nil {
		token = func() string { return "" }
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Session{
		exec:    exec,
		dir:     dir,
		remote:  DefaultRemote,
		token:   token,
		logger:  logger.WithField("component", "session"),
		metrics: metrics,
	}
}

// Dir returns the working directory.
func (s *Session) Dir() string {
	return s.dir
}

// Git runs one git command in the working directory.
func (s *Session) Git(ctx context.Context, args ...string) (*CommandResult, error) {
	if len(args) > 0 && networkCommands[args[0]] {
		if token := s.token(); token != "" {
			return s.withCredential(ctx, token, args)
		}
	}
	return s.exec.Run(ctx, s.dir, args...)
}

func (s *Session) withCredential(ctx context.Context, token string, args []string) (result *CommandResult, err error) {
	current, err := s.exec.Run(ctx, s.dir, "config", "--get", "remote."+s.remote+".url")
	if err != nil {
		return nil, err
	}
	original := current.Output()
	if !current.Success || original == "" {
		return s.run(ctx, token, args)
	}

	injected, ok := InjectCredential(original, token)
	if !ok {
		return s.run(ctx, token, args)
	}

	set, err := s.exec.Run(ctx, s.dir, "remote", "set-url", s.remote, injected)
	if err != nil {
		return nil, err
	}
	if !set.Success {
		s.logger.WarnWithFields("Could not inject credential, running without it", map[string]interface{}{
			"stderr": RedactSecret(set.Stderr, token),
		})
		return s.run(ctx, token, args)
	}
	s.setPending(original)

	// Runs on success, failure, error and panic; the panic keeps unwinding.
	defer func() {
		err = multierr.Append(err, s.restore(context.WithoutCancel(ctx), original))
	}()

	return s.run(ctx, token, args)
}

func (s *Session) run(ctx context.Context, token string, args []string) (*CommandResult, error) {
	result, err := s.exec.Run(ctx, s.dir, args...)
	if result != nil {
		result.Stdout = RedactSecret(result.Stdout, token)
		result.Stderr = RedactSecret(result.Stderr, token)
		for i, a := range result.Args {
			result.Args[i] = RedactSecret(a, token)
		}
	}
	return result, err
}

func (s *Session) restore(ctx context.Context, original string) error {
	result, err := s.exec.Run(ctx, s.dir, "remote", "set-url", s.remote, original)
	if err == nil && !result.Success {
		err = apperrors.New(apperrors.ErrCodeRemoteConfigFailed, "failed to restore remote URL").
			WithOutput(result.Stderr)
	}
	s.metrics.ObserveCredentialRestore(err)
	if err != nil {
		s.logger.ErrorWithFields("Remote URL still carries the credential", map[string]interface{}{
			"error": err,
		})
		return err
	}
	s.clearPending()
	return nil
}

func (s *Session) setPending(original string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingURL = original
	s.hasPending = true
}

func (s *Session) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingURL = ""
	s.hasPending = false
}

// RestorePending puts back a remote URL whose restore did not run, for
// use during shutdown.
func (s *Session) RestorePending(ctx context.Context) error {
	s.mu.Lock()
	original, ok := s.pendingURL, s.hasPending
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.logger.Warn("Restoring remote URL left in credential form")
	return s.restore(ctx, original)
}
