package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus int

const (
	HealthStatusUp HealthStatus = iota
	HealthStatusDown
	HealthStatusDegraded
	HealthStatusUnknown
)

var statusNames = map[HealthStatus]string{
	HealthStatusUp:       "UP",
	HealthStatusDown:     "DOWN",
	HealthStatusDegraded: "DEGRADED",
	HealthStatusUnknown:  "UNKNOWN",
}

func (s HealthStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalJSON renders the status by name.
func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// HealthCheck represents a health check
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) HealthResult
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Duration  time.Duration          `json:"duration_ms"`
	Timestamp time.Time              `json:"timestamp"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     HealthStatus            `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Duration   time.Duration           `json:"duration_ms"`
	Components map[string]HealthResult `json:"components"`
	Metadata   map[string]interface{}  `json:"metadata,omitempty"`
}

// HealthManager manages health checks
type HealthManager struct {
	mu       sync.RWMutex
	checks   map[string]HealthCheck
	timeout  time.Duration
	metadata map[string]interface{}
	logger   *Logger
}

// NewHealthManager creates a new health manager
func NewHealthManager(timeout time.Duration, logger *Logger) *HealthManager {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &HealthManager{
		checks:   make(map[string]HealthCheck),
		timeout:  timeout,
		metadata: make(map[string]interface{}),
		logger:   logger,
	}
}

// RegisterCheck registers a health check
func (hm *HealthManager) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[check.Name()] = check
}

// SetMetadata sets metadata for the health report
func (hm *HealthManager) SetMetadata(key string, value interface{}) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.metadata[key] = value
}

type namedResult struct {
	name   string
	result HealthResult
}

// CheckHealth runs every registered check concurrently and folds the
// results into one report. Any DOWN component makes the report DOWN.
func (hm *HealthManager) CheckHealth(ctx context.Context) HealthReport {
	start := time.Now()

	hm.mu.RLock()
	checks := make(map[string]HealthCheck, len(hm.checks))
	for name, check := range hm.checks {
		checks[name] = check
	}
	metadata := make(map[string]interface{}, len(hm.metadata))
	for k, v := range hm.metadata {
		metadata[k] = v
	}
	hm.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	results := make(chan namedResult, len(checks))
	for name, check := range checks {
		go func(name string, check HealthCheck) {
			checkStart := time.Now()
			result := check.Check(ctx)
			result.Duration = time.Since(checkStart)
			result.Timestamp = time.Now()
			results <- namedResult{name, result}
		}(name, check)
	}

	components := make(map[string]HealthResult, len(checks))
	overall := HealthStatusUp
	for i := 0; i < len(checks); i++ {
		r := <-results
		components[r.name] = r.result

		switch r.result.Status {
		case HealthStatusDown:
			overall = HealthStatusDown
		case HealthStatusDegraded, HealthStatusUnknown:
			if overall == HealthStatusUp {
				overall = r.result.Status
			}
		}
	}

	report := HealthReport{
		Status:     overall,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Components: components,
		Metadata:   metadata,
	}

	hm.logger.DebugWithFields("Health check completed", map[string]interface{}{
		"status":      overall.String(),
		"duration_ms": report.Duration.Milliseconds(),
		"components":  len(components),
	})

	return report
}

// HealthHandler returns an HTTP handler for health checks
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		switch report.Status {
		case HealthStatusUp, HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(report)
	}
}

// GitBinaryCheck verifies the git executable can be run.
type GitBinaryCheck struct {
	Binary string
}

func (g GitBinaryCheck) Name() string { return "git" }

func (g GitBinaryCheck) Check(ctx context.Context) HealthResult {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}
	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return HealthResult{
			Status:  HealthStatusDown,
			Message: fmt.Sprintf("git is not runnable: %v", err),
		}
	}
	return HealthResult{
		Status:  HealthStatusUp,
		Message: strings.TrimSpace(string(out)),
	}
}

// DirectoryCheck reports whether the working directory exists.
// A missing directory is DEGRADED since init creates it.
type DirectoryCheck struct {
	Label string
	Path  string
}

func (d DirectoryCheck) Name() string { return d.Label }

func (d DirectoryCheck) Check(ctx context.Context) HealthResult {
	details := map[string]interface{}{"path": d.Path}
	info, err := os.Stat(d.Path)
	switch {
	case os.IsNotExist(err):
		return HealthResult{Status: HealthStatusDegraded, Message: "directory does not exist yet", Details: details}
	case err != nil:
		return HealthResult{Status: HealthStatusDown, Message: err.Error(), Details: details}
	case !info.IsDir():
		return HealthResult{Status: HealthStatusDown, Message: "path is not a directory", Details: details}
	}
	return HealthResult{Status: HealthStatusUp, Details: details}
}

// FileCheck reports whether a file is readable. Missing is DEGRADED.
type FileCheck struct {
	Label string
	Path  string
}

func (f FileCheck) Name() string { return f.Label }

func (f FileCheck) Check(ctx context.Context) HealthResult {
	details := map[string]interface{}{"path": f.Path}
	fh, err := os.Open(f.Path)
	if os.IsNotExist(err) {
		return HealthResult{Status: HealthStatusDegraded, Message: "file not written yet", Details: details}
	}
	if err != nil {
		return HealthResult{Status: HealthStatusDown, Message: err.Error(), Details: details}
	}
	_ = fh.Close()
	return HealthResult{Status: HealthStatusUp, Details: details}
}
