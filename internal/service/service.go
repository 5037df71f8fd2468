// Package service ties the sync engine, snapshots, schedule and stored
// configuration together behind the single in-flight operation guard.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"datasync/internal/auth"
	"datasync/internal/config"
	"datasync/internal/git"
	"datasync/internal/observability"
	"datasync/internal/rollback"
	"datasync/internal/scheduler"
	"datasync/internal/syncer"
	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"
)

const (
	triggerManual   = "manual"
	triggerSchedule = "schedule"
)

// IdentityProvider validates tokens and runs the OAuth web flow.
type IdentityProvider interface {
	Configured() bool
	AuthorizeURL(state string) string
	ValidateToken(ctx context.Context, token string) (*auth.Identity, error)
	Exchange(ctx context.Context, code string) (string, *auth.Identity, error)
}

// Options configures a Service. Store and DataDir are required.
type Options struct {
	DataDir  string
	Store    *config.Store
	Executor git.Executor
	Provider IdentityProvider
	Events   Publisher
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// SchedulerUnit is one sync_interval step, a minute by default.
	SchedulerUnit time.Duration
}

// Service is the long-lived owner of one synced working directory.
type Service struct {
	store     *config.Store
	session   *git.Session
	repo      *git.Repository
	engine    *syncer.Engine
	snapshots *rollback.SnapshotManager
	scheduler *scheduler.Scheduler
	provider  IdentityProvider
	states    *auth.StateStore
	guard     *Guard
	events    Publisher
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// New wires a service from opts.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "service requires a config store")
	}
	if opts.DataDir == "" {
		return nil, apperrors.ConfigError("data directory is not set", "data-dir")
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	executor := opts.Executor
	if executor == nil {
		executor = git.NewRunner(logger)
	}
	provider := opts.Provider
	if provider == nil {
		provider = auth.NewGitHub(auth.SettingsFromEnv(), logger)
	}
	events := opts.Events
	if events == nil {
		events = nopPublisher{}
	}

	store := opts.Store
	session := git.NewSession(executor, opts.DataDir, store.Token, logger, opts.Metrics)
	repo := git.NewRepository(session, func() string { return store.Get().EffectiveBranch() }, logger)

	s := &Service{
		store:     store,
		session:   session,
		repo:      repo,
		engine:    syncer.NewEngine(repo, logger, opts.Metrics),
		snapshots: rollback.NewSnapshotManager(repo, logger, opts.Metrics),
		provider:  provider,
		states:    auth.NewStateStore(auth.DefaultStateTTL),
		guard:     NewGuard(),
		events:    events,
		logger:    logger.WithField("component", "service"),
		metrics:   opts.Metrics,
		now:       time.Now,
	}

	var schedOpts []scheduler.Option
	if opts.SchedulerUnit > 0 {
		schedOpts = append(schedOpts, scheduler.WithUnit(opts.SchedulerUnit))
	}
	s.scheduler = scheduler.New(s.AutoSync, logger, schedOpts...)
	return s, nil
}

// Start applies the stored schedule.
func (s *Service) Start() {
	s.ApplySchedule(s.store.Get())
}

// Shutdown stops the schedule and puts back a remote URL still carrying
// the credential.
func (s *Service) Shutdown(ctx context.Context) error {
	s.scheduler.Stop()
	return s.session.RestorePending(ctx)
}

// Repository returns the managed repository.
func (s *Service) Repository() *git.Repository {
	return s.repo
}

// Store returns the config store.
func (s *Service) Store() *config.Store {
	return s.store
}

// Schedule reports the scheduler state.
func (s *Service) Schedule() scheduler.State {
	return s.scheduler.State()
}

// ApplySchedule starts or stops auto-sync to match cfg.
func (s *Service) ApplySchedule(cfg *models.Config) {
	if cfg.ScheduleEnabled() {
		s.scheduler.Start(cfg.SyncInterval)
		return
	}
	s.scheduler.Stop()
}

// OnConfigChange reacts to an external edit of the config file.
func (s *Service) OnConfigChange(cfg *models.Config) {
	s.logger.InfoWithFields("Config file changed on disk", map[string]interface{}{
		"auto_sync":     cfg.AutoSync,
		"sync_interval": cfg.SyncInterval,
	})
	s.ApplySchedule(cfg)
}

// HealthChecks returns the checks the service depends on.
func (s *Service) HealthChecks() []observability.HealthCheck {
	return []observability.HealthCheck{
		observability.GitBinaryCheck{},
		observability.DirectoryCheck{Label: "data_dir", Path: s.repo.Dir()},
		observability.FileCheck{Label: "config", Path: s.store.Path()},
	}
}

// Config returns the public view of the stored record.
func (s *Service) Config() models.PublicConfig {
	return s.store.Get().Public()
}

// ConfigResult reports a saved configuration.
type ConfigResult struct {
	Config      models.PublicConfig
	RemoteError string // set when the remote could not be reconfigured
}

// UpdateConfig saves the editable fields, points origin at the new URL
// when the repository exists, and reapplies the schedule.
func (s *Service) UpdateConfig(ctx context.Context, update models.ConfigUpdate) (*ConfigResult, error) {
	if url := strings.TrimSpace(update.RepoURL); url != "" {
		if err := git.ValidateGitURL(url); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid repository URL").
				WithContext("field", "repoUrl")
		}
	}
	if int(update.SyncInterval) > models.MaxSyncInterval {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("sync interval must be at most %d minutes", models.MaxSyncInterval)).
			WithContext("field", "syncInterval")
	}

	cfg, err := s.store.Update(update.Apply)
	if err != nil {
		return nil, err
	}
	result := &ConfigResult{Config: cfg.Public()}

	if cfg.RepoURL != "" {
		if err := s.configureRemote(ctx, cfg.RepoURL); err != nil {
			result.RemoteError = err.Error()
			s.logger.WarnWithFields("Config saved but remote not configured", map[string]interface{}{"error": err})
		}
	}

	s.ApplySchedule(cfg)
	return result, nil
}

// configureRemote waits for any running sync so its credential scope
// cannot restore a stale URL over the new one.
func (s *Service) configureRemote(ctx context.Context, url string) error {
	release, err := s.guard.Acquire(ctx, models.OperationInit)
	if err != nil {
		return err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	if !s.repo.IsInitialized(ctx) {
		return nil
	}
	result, err := s.repo.ConfigureRemote(ctx, url)
	if err != nil {
		return err
	}
	if !result.Success {
		return apperrors.New(apperrors.ErrCodeRemoteConfigFailed, "failed to configure remote").WithOutput(result.Stderr)
	}
	return nil
}

// Status reports whether the repository exists and its pending changes.
func (s *Service) Status(ctx context.Context) (*models.RepoStatus, error) {
	if !s.repo.IsInitialized(ctx) {
		return &models.RepoStatus{Initialized: false, Changes: []string{}}, nil
	}
	changes, err := s.repo.Status(ctx)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		changes = []string{}
	}
	return &models.RepoStatus{Initialized: true, Changes: changes}, nil
}

// InitResult reports a forced initialization.
type InitResult struct {
	Message string
	Warning string
}

// Init recreates the repository and configures origin from the stored URL.
func (s *Service) Init(ctx context.Context) (*InitResult, error) {
	release, err := s.guard.TryAcquire(models.OperationInit)
	if err != nil {
		return nil, err
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	result, err := s.repo.Initialize(ctx, true)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRepoInitFailed, "failed to initialize repository")
	}
	if !result.Success {
		return nil, apperrors.New(apperrors.ErrCodeRepoInitFailed, "failed to initialize repository").
			WithOutput(result.Combined())
	}
	// The old history is gone, so is anything an undo could return to.
	s.snapshots.Clear(ctx)
	if err := s.repo.EnsureIdentity(ctx); err != nil {
		s.logger.WarnWithFields("Could not configure commit identity", map[string]interface{}{"error": err})
	}

	out := &InitResult{Message: "Repository initialized"}
	if url := s.store.Get().RepoURL; url != "" {
		remote, err := s.repo.ConfigureRemote(ctx, url)
		switch {
		case err != nil:
			out.Warning = err.Error()
		case !remote.Success:
			out.Warning = remote.Combined()
		}
		if out.Warning != "" {
			out.Message = "Repository initialized, but configuring the remote failed"
		}
	}

	s.events.Publish(newEvent(models.OperationInit, models.Succeeded(models.OperationInit, out.Message), triggerManual))
	return out, nil
}

// Push captures a snapshot and uploads local state, keeping remote history.
func (s *Service) Push(ctx context.Context) *models.Outcome {
	return s.sync(ctx, models.OperationPush, s.engine.Push)
}

// Pull captures a snapshot and merges the remote branch.
func (s *Service) Pull(ctx context.Context) *models.Outcome {
	return s.sync(ctx, models.OperationPull, s.engine.Pull)
}

// ForceLocal captures a snapshot and replaces local state with the remote.
func (s *Service) ForceLocal(ctx context.Context) *models.Outcome {
	return s.sync(ctx, models.OperationForcePull, s.engine.ForceLocal)
}

// ForceRemote captures a snapshot and replaces the remote branch.
func (s *Service) ForceRemote(ctx context.Context) *models.Outcome {
	return s.sync(ctx, models.OperationForcePush, s.engine.ForceRemote)
}

func (s *Service) sync(ctx context.Context, op models.Operation, action func(context.Context) *models.Outcome) *models.Outcome {
	release, err := s.guard.TryAcquire(op)
	if err != nil {
		return s.busy(op, err)
	}
	defer release()
	// A client disconnect must not abandon a half-finished sync.
	ctx = context.WithoutCancel(ctx)

	if !s.repo.IsInitialized(ctx) {
		return models.Failed(op, apperrors.KindGeneral, "Repository not initialized", "Run init first")
	}

	s.snapshots.Capture(ctx, op)
	out := action(ctx)
	if out.Success {
		s.markSynced()
	}
	s.events.Publish(newEvent(op, out, triggerManual))
	return out
}

func (s *Service) busy(op models.Operation, err error) *models.Outcome {
	return models.Failed(op, apperrors.KindOperationInProgress, "Another sync operation is in progress", err.Error())
}

func (s *Service) markSynced() {
	if err := s.store.MarkSynced(s.now()); err != nil {
		s.logger.WarnWithFields("Could not record last sync time", map[string]interface{}{"error": err})
	}
}

// Undo returns the repository to the snapshot taken before the last sync.
// Without a snapshot it returns an ErrCodeSnapshotUnavailable error.
func (s *Service) Undo(ctx context.Context) (*models.Outcome, error) {
	release, err := s.guard.TryAcquire(models.OperationUndo)
	if err != nil {
		return s.busy(models.OperationUndo, err), nil
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	out, err := s.snapshots.Restore(ctx)
	if err != nil {
		return nil, err
	}
	s.events.Publish(newEvent(models.OperationUndo, out, triggerManual))
	return out, nil
}

// UndoAvailability reports whether a snapshot is held.
func (s *Service) UndoAvailability() models.Availability {
	return s.snapshots.Availability()
}

// AutoSync runs one scheduled push and reacts to its outcome. A manual
// operation in flight makes the tick a no-op.
func (s *Service) AutoSync(ctx context.Context) {
	const op = models.OperationAutoSync
	release, err := s.guard.TryAcquire(op)
	if err != nil {
		s.logger.DebugWithFields("Auto-sync skipped, operation in progress", map[string]interface{}{
			"running": string(s.guard.Current()),
		})
		s.metrics.ObserveTick("skipped")
		return
	}
	defer release()

	if !s.repo.IsInitialized(ctx) {
		s.logger.Warn("Auto-sync skipped, repository not initialized")
		s.metrics.ObserveTick("not_initialized")
		return
	}

	out := s.engine.Push(ctx)
	fields := map[string]interface{}{
		"message": out.Message,
		"kind":    out.Kind.String(),
	}

	switch {
	case out.Success:
		s.markSynced()
		s.logger.InfoWithFields("Auto-sync succeeded", fields)
	case out.Kind == apperrors.KindMergeConflict:
		s.logger.WarnWithFields("Auto-sync hit a merge conflict, aborting merge", fields)
		abort, err := s.repo.AbortMerge(ctx)
		if err != nil || !abort.Success {
			s.logger.DebugWithFields("No merge left to abort", map[string]interface{}{"stderr": abort.Combined()})
		}
	case out.Kind == apperrors.KindNonFastForward:
		s.logger.WarnWithFields("Auto-sync cannot resolve a non-fast-forward rejection", fields)
	default:
		s.logger.ErrorWithFields("Auto-sync failed", fields)
	}

	s.metrics.ObserveTick(syncer.ResultLabel(out))
	s.events.Publish(newEvent(op, out, triggerSchedule))
}
