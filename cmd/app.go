package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"datasync/internal/common"
	"datasync/internal/config"
	"datasync/internal/observability"
	"datasync/internal/server"
	"datasync/internal/service"
	apperrors "datasync/pkg/errors"
)

// app holds the components shared by every command.
type app struct {
	settings settings
	logger   *observability.Logger
	system   *observability.System
	store    *config.Store
	svc      *service.Service
	hub      *server.Hub
}

type appOptions struct {
	// withHub publishes sync events to a websocket hub.
	withHub bool
	oneShot bool
	origins []string
}

// newApp resolves settings and wires the service. One-shot commands log
// at warn unless a level was asked for explicitly.
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}

	level := s.LogLevel
	if opts.oneShot && !cmd.Flags().Changed("log-level") && os.Getenv(envPrefix+"_LOG_LEVEL") == "" {
		level = "warn"
	}
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:   observability.LogLevelFromString(level),
		Format:  s.LogFormat,
		File:    s.LogFile,
		Service: "datasync",
		Version: Version,
	})

	dataDir, err := common.CleanPath(s.DataDir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "invalid data directory").
			WithContext("data-dir", s.DataDir)
	}
	if err := common.EnsureDir(dataDir, common.DirPermissionNormal); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigPermission, "cannot create data directory")
	}

	store := config.NewStore(s.StateFile, config.NewVault(), logger)
	if err := store.Load(); err != nil {
		return nil, err
	}

	system := observability.NewSystem(logger, 5*time.Second)
	system.Health.SetMetadata("version", Version)

	var hub *server.Hub
	var events service.Publisher
	if opts.withHub {
		hub = server.NewHub(logger, opts.origins...)
		events = hub
	}

	svc, err := service.New(service.Options{
		DataDir: dataDir,
		Store:   store,
		Events:  events,
		Logger:  logger,
		Metrics: system.Metrics,
	})
	if err != nil {
		return nil, err
	}
	for _, check := range svc.HealthChecks() {
		system.Health.RegisterCheck(check)
	}

	s.DataDir = dataDir
	logger.DebugWithFields("Application wired", map[string]interface{}{
		"data_dir":   dataDir,
		"state_file": store.Path(),
	})

	return &app{settings: s, logger: logger, system: system, store: store, svc: svc, hub: hub}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
