package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := CleanPath("~/.datasync/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".datasync", "config.yaml"), got)

	got, err = CleanPath("/tmp/./data/")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/data", got)

	_, err = CleanPath("../outside")
	assert.Error(t, err)

	_, err = CleanPath("")
	assert.Error(t, err)

	got, err = CleanPath("/tmp/a..b")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a..b", got)
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()

	got, err := ValidatePath(filepath.Join(base, ".git"), base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, ".git"), got)

	_, err = ValidatePath(base+"-sibling", base)
	assert.Error(t, err)

	_, err = ValidatePath("/etc/passwd", base)
	assert.Error(t, err)
}

func TestJoinPath(t *testing.T) {
	base := t.TempDir()

	got, err := JoinPath(base, ".git")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, ".git"), got)

	_, err = JoinPath(base, "..", "escape")
	assert.Error(t, err)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir, DirPermissionSecure))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(DirPermissionSecure), info.Mode().Perm())
}
