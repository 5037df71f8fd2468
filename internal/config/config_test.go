package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"datasync/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

func fileVault() *Vault {
	return &Vault{UseKeyring: false}
}

func newTestStore(t *testing.T, vault *Vault) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "config.yaml")
	return NewStore(path, vault, nil)
}

func TestGetConfigFile(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".datasync", "config.yaml"), GetConfigFile())
	assert.Equal(t, filepath.Join(home, ".datasync"), GetConfigPath())

	custom := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(EnvConfigFile, custom)
	assert.Equal(t, custom, GetConfigFile())
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	store := newTestStore(t, fileVault())
	require.NoError(t, store.Load())

	cfg := store.Get()
	assert.Equal(t, models.DefaultBranch, cfg.Branch)
	assert.False(t, cfg.AutoSync)
	assert.Empty(t, cfg.Token)
	assert.False(t, Exists(store.Path()))
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t, fileVault())
	require.NoError(t, store.Load())

	_, err := store.Update(func(cfg *models.Config) {
		cfg.RepoURL = "https://github.com/acme/data.git"
		cfg.Branch = "trunk"
		cfg.AutoSync = true
		cfg.SyncInterval = 15
	})
	require.NoError(t, err)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	reopened := NewStore(store.Path(), fileVault(), nil)
	require.NoError(t, reopened.Load())
	cfg := reopened.Get()
	assert.Equal(t, "https://github.com/acme/data.git", cfg.RepoURL)
	assert.Equal(t, "trunk", cfg.Branch)
	assert.True(t, cfg.ScheduleEnabled())
	assert.Equal(t, 15, cfg.SyncInterval)
}

func TestTokenIsNeverPlaintextOnDisk(t *testing.T) {
	store := newTestStore(t, fileVault())
	require.NoError(t, store.Load())
	require.NoError(t, store.SetToken("ghp_secret123", "octocat"))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ghp_secret123")

	var raw models.Config
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.True(t, IsEncrypted(raw.Token))
	assert.True(t, raw.IsAuthorized)
	assert.Equal(t, "octocat", raw.Username)

	assert.Equal(t, "ghp_secret123", store.Token())

	reopened := NewStore(store.Path(), fileVault(), nil)
	require.NoError(t, reopened.Load())
	assert.Equal(t, "ghp_secret123", reopened.Token())
}

func TestLegacyPlaintextTokenAccepted(t *testing.T) {
	store := newTestStore(t, fileVault())
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("repo_url: https://x/y.git\ngithub_token: legacy-token\n"), 0o600))

	require.NoError(t, store.Load())
	assert.Equal(t, "legacy-token", store.Token())
	assert.Equal(t, models.DefaultBranch, store.Get().Branch)
}

func TestClearToken(t *testing.T) {
	store := newTestStore(t, fileVault())
	require.NoError(t, store.Load())
	require.NoError(t, store.SetToken("tok", "me"))
	require.NoError(t, store.ClearToken())

	cfg := store.Get()
	assert.Empty(t, cfg.Token)
	assert.False(t, cfg.IsAuthorized)
	assert.Empty(t, cfg.Username)
}

func TestKeyringVault(t *testing.T) {
	keyring.MockInit()
	vault := &Vault{UseKeyring: true}

	store := newTestStore(t, vault)
	require.NoError(t, store.Load())
	require.NoError(t, store.SetToken("kr-token", "octocat"))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), KeyringMarker)
	assert.NotContains(t, string(data), "kr-token")

	stored, err := keyring.Get(keyringService, keyringAccount)
	require.NoError(t, err)
	assert.Equal(t, "kr-token", stored)

	reopened := NewStore(store.Path(), vault, nil)
	require.NoError(t, reopened.Load())
	assert.Equal(t, "kr-token", reopened.Token())

	require.NoError(t, reopened.ClearToken())
	_, err = keyring.Get(keyringService, keyringAccount)
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestEncryptDecryptSecret(t *testing.T) {
	t.Setenv(EnvEncryptionKey, "test-passphrase")

	enc, err := EncryptSecret("hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "ENC["))

	again, err := EncryptSecret(enc)
	require.NoError(t, err)
	assert.Equal(t, enc, again, "already encrypted values pass through")

	dec, err := DecryptSecret(enc)
	require.NoError(t, err)
	assert.Equal(t, "hello", dec)

	plain, err := DecryptSecret("not-encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not-encrypted", plain)

	_, err = DecryptSecret("ENC[%%%]")
	assert.Error(t, err)

	t.Setenv(EnvEncryptionKey, "another-passphrase")
	_, err = DecryptSecret(enc)
	assert.Error(t, err)
}

func TestUpdateFailureKeepsRecord(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// The parent of the record is a regular file, so the save must fail.
	store := NewStore(filepath.Join(blocker, "config.yaml"), fileVault(), nil)
	_, err := store.Update(func(cfg *models.Config) { cfg.RepoURL = "https://x/y.git" })
	require.Error(t, err)
	assert.Empty(t, store.Get().RepoURL)
}

func TestMarkSynced(t *testing.T) {
	store := newTestStore(t, fileVault())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkSynced(now))
	require.NotNil(t, store.Get().LastSync)
	assert.True(t, now.Equal(*store.Get().LastSync))

	changed, err := store.Reload()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReloadDetectsExternalEdit(t *testing.T) {
	store := newTestStore(t, fileVault())
	_, err := store.Update(func(cfg *models.Config) { cfg.SyncInterval = 5 })
	require.NoError(t, err)

	changed, err := store.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(store.Path(), []byte("branch: main\nauto_sync: true\nsync_interval: 30\n"), 0o600))
	changed, err = store.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 30, store.Get().SyncInterval)
}

func TestWatcherFiresOnExternalEdit(t *testing.T) {
	store := newTestStore(t, fileVault())
	_, err := store.Update(func(cfg *models.Config) { cfg.SyncInterval = 5 })
	require.NoError(t, err)

	changes := make(chan *models.Config, 4)
	watcher := NewWatcher(store, func(cfg *models.Config) { changes <- cfg })
	watcher.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(store.Path(), []byte("branch: main\nauto_sync: true\nsync_interval: 45\n"), 0o600))

	select {
	case cfg := <-changes:
		assert.Equal(t, 45, cfg.SyncInterval)
		assert.True(t, cfg.AutoSync)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
