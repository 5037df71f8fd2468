// Package syncer reconciles the working directory with its remote branch.
package syncer

import (
	"context"
	"strings"
	"time"

	"datasync/internal/git"
	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"
)

const (
	StashMessage  = "datasync: automatic stash before sync"
	MergeMessage  = "Temporary merge for sync"
	CommitMessage = "Sync data from datasync"

	noLocalChanges = "No local changes to save"
	stashedMessage = "Synced to remote, but failed to restore local state. Your changes are in the stash."
)

// Engine runs the four sync operations against one repository. It holds
// no lock; callers serialize operations.
type Engine struct {
	repo    *git.Repository
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(repo *git.Repository, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Engine{repo: repo, logger: logger.WithField("component", "engine"), metrics: metrics}
}

// Repository returns the repository the engine operates on.
func (e *Engine) Repository() *git.Repository {
	return e.repo
}

func (e *Engine) git(ctx context.Context, args ...string) (*git.CommandResult, error) {
	return e.repo.Session().Git(ctx, args...)
}

func (e *Engine) branch(ctx context.Context) string {
	return e.repo.CurrentBranch(ctx, e.repo.Branch())
}

// Push uploads local state while keeping remote history: stash, merge the
// remote branch when it differs, commit, push, then bring the stash back.
func (e *Engine) Push(ctx context.Context) (out *models.Outcome) {
	const op = models.OperationPush
	defer e.observe(ctx, op, time.Now(), &out)

	if err := e.repo.EnsureIdentity(ctx); err != nil {
		e.logger.WarnWithFields("Could not configure commit identity", map[string]interface{}{"error": err})
	}

	stashed := false
	if e.repo.HasCommits(ctx) {
		stash, err := e.git(ctx, "stash", "push", "-u", "-m", StashMessage)
		if err != nil {
			return runnerFailure(op, err)
		}
		stashed = stash.Success && !strings.Contains(stash.Stdout, noLocalChanges)
	}

	// preMerge is set once a temporary merge commit exists.
	preMerge := ""
	restored := false
	defer func() {
		if stashed && !restored {
			out = e.restoreLocal(ctx, out, preMerge)
		}
	}()

	branch := e.branch(ctx)
	remoteBranch := git.DefaultRemote + "/" + branch

	fetch, err := e.git(ctx, "fetch", git.DefaultRemote, branch)
	if err != nil {
		return runnerFailure(op, err)
	}
	remoteExists := true
	if !fetch.Success {
		if !git.IsMissingRemoteRef(fetch.Stderr) {
			return models.Failed(op, git.ClassifyFetch(fetch), "Failed to fetch from remote", fetch.Combined())
		}
		e.logger.InfoWithFields("Remote branch does not exist yet, pushing without merge", map[string]interface{}{
			"branch": branch,
		})
		remoteExists = false
	}

	if remoteExists {
		diff, err := e.git(ctx, "diff", "HEAD", remoteBranch)
		if err != nil {
			return runnerFailure(op, err)
		}
		if diff.Success && diff.Output() != "" {
			head, err := e.repo.HeadCommit(ctx)
			if err != nil {
				return models.Failed(op, apperrors.KindGeneral, "Failed to read HEAD before merge", err.Error())
			}

			merge, err := e.git(ctx, "merge", remoteBranch, "--no-ff", "-m", MergeMessage)
			if err != nil {
				return runnerFailure(op, err)
			}
			if !merge.Success {
				e.bestEffort(ctx, "merge", "--abort")
				if stashed {
					e.bestEffort(ctx, "stash", "pop")
				}
				restored = true
				return models.Failed(op, apperrors.KindMergeConflict, "Merge failed during push. Please resolve.", merge.Combined())
			}
			preMerge = head
		}
	}

	add, err := e.git(ctx, "add", ".")
	if err != nil {
		return runnerFailure(op, err)
	}
	if !add.Success {
		return models.Failed(op, apperrors.KindGeneral, "Failed to add files", add.Combined())
	}

	status, err := e.git(ctx, "status", "--porcelain")
	if err != nil {
		return runnerFailure(op, err)
	}
	if status.Output() != "" {
		commit, err := e.git(ctx, "commit", "-m", CommitMessage)
		if err != nil {
			return runnerFailure(op, err)
		}
		if !commit.Success {
			return models.Failed(op, apperrors.KindGeneral, "Failed to commit changes", commit.Combined())
		}
	}

	push, err := e.git(ctx, "push", git.DefaultRemote, branch)
	if err != nil {
		return runnerFailure(op, err)
	}
	if !push.Success {
		kind := git.ClassifyPush(push)
		message := "Failed to push to remote"
		if kind == apperrors.KindNonFastForward {
			message = "Push rejected: Remote contains changes that need to be merged first"
		}
		return models.Failed(op, kind, message, push.Combined())
	}

	return models.Succeeded(op, "Successfully synced to remote")
}

// restoreLocal rewinds a temporary merge and pops the stash. A failed pop
// never turns the outcome into a failure.
func (e *Engine) restoreLocal(ctx context.Context, out *models.Outcome, preMerge string) *models.Outcome {
	if preMerge != "" {
		e.bestEffort(ctx, "reset", "--hard", preMerge)
	}

	pop, err := e.git(ctx, "stash", "pop")
	if err == nil && pop.Success {
		return out
	}

	fields := map[string]interface{}{"operation": out.Operation}
	if err != nil {
		fields["error"] = err
	} else {
		fields["stderr"] = strings.TrimSpace(pop.Stderr)
	}
	e.logger.WarnWithFields("Failed to restore stashed local changes", fields)

	out.Warning = models.WarningLocalStateNotRestored
	if out.Success {
		out.Message = stashedMessage
	} else {
		out.Message += ". Your local changes are still in the stash."
	}
	return out
}

// Pull merges the remote branch into the local one. A conflict leaves the
// repository mid-merge.
func (e *Engine) Pull(ctx context.Context) (out *models.Outcome) {
	const op = models.OperationPull
	defer e.observe(ctx, op, time.Now(), &out)

	if err := e.repo.EnsureIdentity(ctx); err != nil {
		e.logger.WarnWithFields("Could not configure commit identity", map[string]interface{}{"error": err})
	}

	branch := e.branch(ctx)
	if failed := e.fetch(ctx, op, branch); failed != nil {
		return failed
	}

	merge, err := e.git(ctx, "merge", git.DefaultRemote+"/"+branch, "--no-edit")
	if err != nil {
		return runnerFailure(op, err)
	}
	if !merge.Success {
		return models.Failed(op, apperrors.KindMergeConflict, "Merge failed during pull. Please resolve.", merge.Combined())
	}
	return models.Succeeded(op, "Successfully merged changes from remote")
}

// ForceLocal makes the working directory an exact copy of the remote branch.
func (e *Engine) ForceLocal(ctx context.Context) (out *models.Outcome) {
	const op = models.OperationForcePull
	defer e.observe(ctx, op, time.Now(), &out)

	branch := e.branch(ctx)
	if failed := e.fetch(ctx, op, branch); failed != nil {
		return failed
	}

	reset, err := e.git(ctx, "reset", "--hard", git.DefaultRemote+"/"+branch)
	if err != nil {
		return runnerFailure(op, err)
	}
	if !reset.Success {
		return models.Failed(op, apperrors.KindGeneral, "Failed to reset local branch to remote state", reset.Combined())
	}

	e.bestEffort(ctx, "clean", "-fdx")
	return models.Succeeded(op, "Successfully forced local state to match remote")
}

// ForceRemote replaces the remote branch with local history.
func (e *Engine) ForceRemote(ctx context.Context) (out *models.Outcome) {
	const op = models.OperationForcePush
	defer e.observe(ctx, op, time.Now(), &out)

	branch := e.branch(ctx)
	push, err := e.git(ctx, "push", "-f", git.DefaultRemote, branch)
	if err != nil {
		return runnerFailure(op, err)
	}
	if !push.Success {
		return models.Failed(op, git.ClassifyForcePush(push), "Failed to force push to remote", push.Combined())
	}
	return models.Succeeded(op, "Successfully forced remote to match local")
}

func (e *Engine) fetch(ctx context.Context, op models.Operation, branch string) *models.Outcome {
	fetch, err := e.git(ctx, "fetch", git.DefaultRemote, branch)
	if err != nil {
		return runnerFailure(op, err)
	}
	if !fetch.Success {
		return models.Failed(op, git.ClassifyFetch(fetch), "Failed to fetch from remote", fetch.Combined())
	}
	return nil
}

// bestEffort runs a cleanup command and only logs its failure.
func (e *Engine) bestEffort(ctx context.Context, args ...string) {
	result, err := e.git(ctx, args...)
	if err == nil && result.Success {
		return
	}
	fields := map[string]interface{}{"args": strings.Join(args, " ")}
	if err != nil {
		fields["error"] = err
	} else {
		fields["stderr"] = strings.TrimSpace(result.Stderr)
	}
	e.logger.WarnWithFields("Cleanup command failed", fields)
}

func (e *Engine) observe(ctx context.Context, op models.Operation, start time.Time, out **models.Outcome) {
	outcome := *out
	result := ResultLabel(outcome)
	e.metrics.ObserveSync(string(op), result, start)

	fields := map[string]interface{}{
		"operation":   string(op),
		"result":      result,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if outcome != nil && outcome.Warning != "" {
		fields["warning"] = outcome.Warning
	}
	logger := e.logger.WithContext(ctx)
	if outcome != nil && outcome.Success {
		logger.InfoWithFields("Sync operation finished", fields)
		return
	}
	logger.WarnWithFields("Sync operation failed", fields)
}

// ResultLabel is "success" or the outcome's error kind.
func ResultLabel(out *models.Outcome) string {
	if out == nil {
		return string(apperrors.KindGeneral)
	}
	if out.Success {
		return "success"
	}
	return out.Kind.String()
}

func runnerFailure(op models.Operation, err error) *models.Outcome {
	return models.Failed(op, apperrors.KindGeneral, "Sync error: "+err.Error(), "")
}
