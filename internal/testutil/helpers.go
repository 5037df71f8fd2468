package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"datasync/internal/common"
	"datasync/internal/observability"

	"go.uber.org/zap/zaptest"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), common.FilePermissionNormal); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile returns the content of dir/filename, or "" when it is missing.
func (h *TestHelper) ReadFile(dir, filename string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		h.t.Fatalf("Failed to read %s: %v", filename, err)
	}
	return string(data)
}

// CaptureOutput captures stdout and stderr during function execution
func (h *TestHelper) CaptureOutput(f func()) (stdout, stderr string) {
	oldStdout, oldStderr := os.Stdout, os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout, os.Stderr = wOut, wErr

	outCh := make(chan string)
	errCh := make(chan string)
	go func() { b, _ := io.ReadAll(rOut); outCh <- string(b) }()
	go func() { b, _ := io.ReadAll(rErr); errCh <- string(b) }()

	defer func() {
		os.Stdout, os.Stderr = oldStdout, oldStderr
	}()
	f()

	wOut.Close()
	wErr.Close()
	return <-outCh, <-errCh
}

// WaitFor waits for a condition to be true within a timeout
func (h *TestHelper) WaitFor(condition func() bool, timeout time.Duration, message string) {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		<-ticker.C
		if time.Now().After(deadline) {
			h.t.Fatalf("Timeout waiting for: %s", message)
		}
	}
}

// NewTestLogger returns a logger that writes through t.Log. Only use it
// where nothing logs after the test returns.
func NewTestLogger(t *testing.T) *observability.Logger {
	return observability.FromZap(zaptest.NewLogger(t))
}
