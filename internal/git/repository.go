package git

import (
	"context"
	"os"
	"strings"

	"datasync/internal/common"
	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"

	gogit "github.com/go-git/go-git/v5"
)

// Local identity written when the repository has none, so sync commits
// never fail for lack of an author.
const (
	IdentityName  = "datasync"
	IdentityEmail = "datasync@localhost"
)

// Repository manages the lifecycle of the working directory's repository.
type Repository struct {
	session *Session
	branch  func() string
	logger  *observability.Logger
}

// NewRepository wraps session. branch returns the configured branch.
func NewRepository(session *Session, branch func() string, logger *observability.Logger) *Repository {
	if branch == nil {
		branch = func() string { return models.DefaultBranch }
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Repository{session: session, branch: branch, logger: logger.WithField("component", "repository")}
}

// Session returns the command session for the working directory.
func (r *Repository) Session() *Session {
	return r.session
}

// Dir returns the working directory.
func (r *Repository) Dir() string {
	return r.session.Dir()
}

// Branch returns the configured branch, or the default.
func (r *Repository) Branch() string {
	if b := strings.TrimSpace(r.branch()); b != "" {
		return b
	}
	return models.DefaultBranch
}

// IsInitialized reports whether the working directory is itself the root
// of a repository. A directory nested inside another repository is not.
func (r *Repository) IsInitialized(ctx context.Context) bool {
	result, err := r.session.Git(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || !result.Success || result.Output() != "true" {
		return false
	}
	_, err = gogit.PlainOpen(r.Dir())
	return err == nil
}

// Initialize creates the repository. With force, any existing .git is
// removed first.
func (r *Repository) Initialize(ctx context.Context, force bool) (*CommandResult, error) {
	dir := r.Dir()
	if force {
		gitDir, err := common.JoinPath(dir, ".git")
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeRepoInitFailed, "invalid working directory").
				WithContext("dir", dir)
		}
		if err := os.RemoveAll(gitDir); err != nil && !os.IsNotExist(err) {
			r.logger.WarnWithFields("Could not remove existing repository, initializing over it", map[string]interface{}{
				"dir":   dir,
				"error": err,
			})
		}
	}

	if err := common.EnsureDir(dir, common.DirPermissionNormal); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRepoInitFailed, "failed to create working directory").
			WithContext("dir", dir)
	}

	result, err := r.session.Git(ctx, "init")
	if err != nil || !result.Success {
		return result, err
	}

	head, err := r.session.Git(ctx, "symbolic-ref", "HEAD", "refs/heads/"+r.Branch())
	if err != nil || !head.Success {
		return head, err
	}

	r.logger.InfoWithFields("Repository initialized", map[string]interface{}{
		"dir":    dir,
		"branch": r.Branch(),
		"force":  force,
	})
	return result, nil
}

// ConfigureRemote points origin at url, adding it when missing.
func (r *Repository) ConfigureRemote(ctx context.Context, url string) (*CommandResult, error) {
	list, err := r.session.Git(ctx, "remote")
	if err != nil {
		return nil, err
	}

	exists := false
	if list.Success {
		for _, name := range strings.Fields(list.Stdout) {
			if name == DefaultRemote {
				exists = true
				break
			}
		}
	}

	if exists {
		return r.session.Git(ctx, "remote", "set-url", DefaultRemote, url)
	}
	return r.session.Git(ctx, "remote", "add", DefaultRemote, url)
}

// Status returns the porcelain status lines.
func (r *Repository) Status(ctx context.Context) ([]string, error) {
	result, err := r.session.Git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, apperrors.New(apperrors.ErrCodeGitCommand, "git status failed").WithOutput(result.Stderr)
	}

	var lines []string
	for _, line := range strings.Split(result.Stdout, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// CurrentBranch returns the checked out branch, or fallback when git
// cannot name one.
func (r *Repository) CurrentBranch(ctx context.Context, fallback string) string {
	result, err := r.session.Git(ctx, "branch", "--show-current")
	if err != nil || !result.Success || result.Output() == "" {
		return fallback
	}
	return result.Output()
}

// HeadCommit returns the full id of HEAD.
func (r *Repository) HeadCommit(ctx context.Context) (string, error) {
	result, err := r.session.Git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", apperrors.New(apperrors.ErrCodeGitCommand, "HEAD does not name a commit").WithOutput(result.Stderr)
	}
	return result.Output(), nil
}

// HasCommits reports whether HEAD names a commit.
func (r *Repository) HasCommits(ctx context.Context) bool {
	result, err := r.session.Git(ctx, "rev-parse", "--verify", "-q", "HEAD")
	return err == nil && result.Success
}

// RemoteURL reads the persisted origin URL without running git.
func (r *Repository) RemoteURL() (string, error) {
	repo, err := gogit.PlainOpen(r.Dir())
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeRepoNotInitialized, "repository not initialized")
	}
	remote, err := repo.Remote(DefaultRemote)
	if err != nil {
		return "", nil
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", nil
	}
	return Redact(urls[0]), nil
}

// EnsureIdentity sets a local author when none is configured.
func (r *Repository) EnsureIdentity(ctx context.Context) error {
	email, err := r.session.Git(ctx, "config", "--get", "user.email")
	if err != nil {
		return err
	}
	if email.Success && email.Output() != "" {
		return nil
	}

	for _, kv := range [][2]string{{"user.name", IdentityName}, {"user.email", IdentityEmail}} {
		result, err := r.session.Git(ctx, "config", kv[0], kv[1])
		if err != nil {
			return err
		}
		if !result.Success {
			return apperrors.New(apperrors.ErrCodeGitCommand, "failed to set "+kv[0]).WithOutput(result.Stderr)
		}
	}
	r.logger.Debug("Configured local commit identity")
	return nil
}

// AbortMerge abandons an in-progress merge.
func (r *Repository) AbortMerge(ctx context.Context) (*CommandResult, error) {
	return r.session.Git(ctx, "merge", "--abort")
}
