package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Identity used for every commit made by fixtures.
const (
	TestUserName  = "Fixture User"
	TestUserEmail = "fixture@example.com"
)

// RequireGit skips the test when no git executable is on PATH and
// isolates it from the user's and the system's git configuration.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not available")
	}
	t.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_TERMINAL_PROMPT", "0")
}

// Git runs git in dir with the fixture identity and fails the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := GitOutput(dir, args...)
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(out)
}

// GitOutput runs git in dir and returns combined output.
func GitOutput(dir string, args ...string) (string, error) {
	full := append([]string{"-c", "user.name=" + TestUserName, "-c", "user.email=" + TestUserEmail}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Remote is a bare repository standing in for the hosted remote.
type Remote struct {
	Dir    string
	Branch string
}

// NewRemote creates an empty bare repository whose HEAD names branch.
func NewRemote(t *testing.T, branch string) *Remote {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote.git")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	Git(t, dir, "init", "--bare")
	Git(t, dir, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	return &Remote{Dir: dir, Branch: branch}
}

// Seed pushes one commit per file to the remote through a scratch clone.
func (r *Remote) Seed(t *testing.T, files map[string]string) {
	t.Helper()
	clone := r.Clone(t)
	h := NewTestHelper(t)
	for name, content := range files {
		h.WriteFile(clone, name, content)
		Git(t, clone, "add", name)
		Git(t, clone, "commit", "-m", "seed "+name)
	}
	Git(t, clone, "push", "origin", "HEAD:refs/heads/"+r.Branch)
}

// Clone checks the remote out into a fresh directory, creating the branch
// locally when the remote is still empty.
func (r *Remote) Clone(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clone")
	Git(t, filepath.Dir(dir), "clone", r.Dir, dir)
	if _, err := GitOutput(dir, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		Git(t, dir, "symbolic-ref", "HEAD", "refs/heads/"+r.Branch)
	}
	return dir
}

// Head returns the commit id the remote branch points at, or "".
func (r *Remote) Head(t *testing.T) string {
	t.Helper()
	out, err := GitOutput(r.Dir, "rev-parse", "--verify", "-q", "refs/heads/"+r.Branch)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// CommitFile writes a file in dir and commits it.
func CommitFile(t *testing.T, dir, name, content, message string) string {
	t.Helper()
	NewTestHelper(t).WriteFile(dir, name, content)
	Git(t, dir, "add", name)
	Git(t, dir, "commit", "-m", message)
	return Git(t, dir, "rev-parse", "HEAD")
}

// PushFromClone makes a commit on the remote from an independent clone.
func (r *Remote) PushFromClone(t *testing.T, name, content string) string {
	t.Helper()
	clone := r.Clone(t)
	id := CommitFile(t, clone, name, content, "remote change "+name)
	Git(t, clone, "push", "origin", "HEAD:refs/heads/"+r.Branch)
	return id
}
