package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datasync/internal/git"
	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"

	"github.com/google/uuid"
)

const (
	// SnapshotRef pins the captured stash commit against garbage collection.
	SnapshotRef = "refs/datasync/snapshot"

	snapshotStashMessage = "SYNC_SNAPSHOT_STASH"
)

// Snapshot is the pre-operation state an undo returns to.
type Snapshot struct {
	ID          string
	Head        string
	StashCommit string // empty when the working tree was clean
	Timestamp   time.Time
	Operation   models.Operation
}

// HasChanges reports whether uncommitted changes were captured.
func (s *Snapshot) HasChanges() bool {
	return s.StashCommit != ""
}

// SnapshotManager holds at most one snapshot, in memory.
type SnapshotManager struct {
	repo    *git.Repository
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewSnapshotManager creates a snapshot manager for repo. metrics may be nil.
func NewSnapshotManager(repo *git.Repository, logger *observability.Logger, metrics *observability.Metrics) *SnapshotManager {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &SnapshotManager{repo: repo, logger: logger.WithField("component", "snapshot"), metrics: metrics}
}

// Capture records HEAD and any uncommitted changes without touching the
// working tree or index. It replaces the previous snapshot and reports
// whether a new one is held.
func (sm *SnapshotManager) Capture(ctx context.Context, op models.Operation) bool {
	session := sm.repo.Session()
	if err := sm.repo.EnsureIdentity(ctx); err != nil {
		sm.logger.DebugWithFields("No commit identity for snapshot", map[string]interface{}{"error": err})
	}

	head, err := sm.repo.HeadCommit(ctx)
	if err != nil {
		sm.logger.WarnWithFields("Cannot snapshot without a HEAD commit", map[string]interface{}{
			"operation": string(op),
			"error":     err,
		})
		sm.Clear(ctx)
		return false
	}

	stash, err := session.Git(ctx, "stash", "create", snapshotStashMessage)
	if err != nil || !stash.Success {
		sm.logger.WarnWithFields("stash create failed, no snapshot held", map[string]interface{}{
			"operation": string(op),
			"stderr":    stash.Combined(),
		})
		sm.Clear(ctx)
		return false
	}

	snapshot := &Snapshot{
		ID:          uuid.NewString(),
		Head:        head,
		StashCommit: stash.Output(),
		Timestamp:   time.Now().UTC(),
		Operation:   op,
	}

	if snapshot.HasChanges() {
		pin, err := session.Git(ctx, "update-ref", SnapshotRef, snapshot.StashCommit)
		if err != nil || !pin.Success {
			// The object stays reachable from this process; only GC protection is lost.
			sm.logger.WarnWithFields("Could not pin snapshot stash", map[string]interface{}{
				"stash": snapshot.StashCommit,
			})
		}
	} else {
		sm.unpin(ctx)
	}

	sm.mu.Lock()
	sm.snapshot = snapshot
	sm.mu.Unlock()
	sm.metrics.SetSnapshotAvailable(true)

	sm.logger.InfoWithFields("Snapshot created", map[string]interface{}{
		"snapshot_id": snapshot.ID,
		"operation":   string(op),
		"head":        head,
		"has_changes": snapshot.HasChanges(),
	})
	return true
}

// Restore returns the repository to the held snapshot. Without one it
// returns an ErrCodeSnapshotUnavailable error. A failed reapply of the
// captured changes keeps the snapshot so it can be retried.
func (sm *SnapshotManager) Restore(ctx context.Context) (*models.Outcome, error) {
	snapshot := sm.Current()
	if snapshot == nil {
		return nil, apperrors.New(apperrors.ErrCodeSnapshotUnavailable, "no snapshot available").
			WithSeverity(apperrors.SeverityWarning).
			WithSuggestions("Undo is only possible right after a sync operation")
	}

	session := sm.repo.Session()
	op := snapshot.Operation

	reset, err := session.Git(ctx, "reset", "--hard", snapshot.Head)
	if err != nil {
		return models.Failed(op, apperrors.KindGeneral, "Error during undo: "+err.Error(), ""), nil
	}
	if !reset.Success {
		return models.Failed(op, apperrors.KindGeneral, "Failed to reset to snapshot commit", reset.Combined()), nil
	}

	if snapshot.HasChanges() {
		apply, err := session.Git(ctx, "stash", "apply", snapshot.StashCommit)
		if err != nil {
			return models.Failed(op, apperrors.KindGeneral, "Error during undo: "+err.Error(), ""), nil
		}
		if !apply.Success {
			sm.logger.WarnWithFields("Snapshot changes could not be reapplied", map[string]interface{}{
				"snapshot_id": snapshot.ID,
				"stash":       snapshot.StashCommit,
			})
			return models.Failed(op, apperrors.KindStashApplyFailed,
				"Restored to previous commit, but failed to automatically restore working changes (possible conflicts). "+
					fmt.Sprintf("Changes are still in the stash commit %s. Please resolve manually.", shortID(snapshot.StashCommit)),
				apply.Combined()), nil
		}
	}

	sm.Clear(ctx)
	sm.logger.InfoWithFields("Snapshot restored", map[string]interface{}{
		"snapshot_id": snapshot.ID,
		"operation":   string(op),
	})
	return models.Succeeded(op, fmt.Sprintf("Successfully undid the last %s operation", op)), nil
}

// Current returns a copy of the held snapshot, or nil.
func (sm *SnapshotManager) Current() *Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.snapshot == nil {
		return nil
	}
	s := *sm.snapshot
	return &s
}

// Availability reports whether an undo is possible.
func (sm *SnapshotManager) Availability() models.Availability {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.snapshot == nil {
		return models.Availability{}
	}
	ts := sm.snapshot.Timestamp
	return models.Availability{Available: true, Operation: sm.snapshot.Operation, Timestamp: &ts}
}

// Clear drops the snapshot and its pin.
func (sm *SnapshotManager) Clear(ctx context.Context) {
	sm.mu.Lock()
	had := sm.snapshot != nil
	sm.snapshot = nil
	sm.mu.Unlock()

	if had {
		sm.unpin(ctx)
	}
	sm.metrics.SetSnapshotAvailable(false)
}

func (sm *SnapshotManager) unpin(ctx context.Context) {
	// Deleting a missing ref fails harmlessly.
	_, _ = sm.repo.Session().Git(ctx, "update-ref", "-d", SnapshotRef)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
