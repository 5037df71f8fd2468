package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"datasync/internal/common"
	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"

	"gopkg.in/yaml.v3"
)

// Store owns the sync record. The in-memory copy holds the plaintext
// token; the file never does.
type Store struct {
	path   string
	vault  *Vault
	logger *observability.Logger

	mu  sync.RWMutex
	cfg *models.Config
}

// NewStore creates a store for the record at path. Call Load before use.
func NewStore(path string, vault *Vault, logger *observability.Logger) *Store {
	if vault == nil {
		vault = NewVault()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Store{
		path:   path,
		vault:  vault,
		logger: logger.WithField("component", "config"),
		cfg:    models.DefaultConfig(),
	}
}

// Path returns the record file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. A missing file yields defaults.
func (s *Store) Load() error {
	cfg, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Store) read() (*models.Config, error) {
	cleaned, err := common.CleanPath(s.path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "invalid config file path")
	}

	data, err := os.ReadFile(cleaned) // #nosec G304 - path is validated
	if os.IsNotExist(err) {
		return models.DefaultConfig(), nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigPermission, "failed to read config file").
			WithContext("path", cleaned)
	}

	cfg := models.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to parse config file").
			WithContext("path", cleaned)
	}
	if cfg.Branch == "" {
		cfg.Branch = models.DefaultBranch
	}

	token, err := s.vault.Open(cfg.Token)
	if err != nil {
		// Keep the rest of the record usable; the user can set a new token.
		s.logger.WarnWithFields("Stored token could not be opened", map[string]interface{}{"error": err})
		token = ""
	}
	cfg.Token = token
	return cfg, nil
}

// Get returns a copy of the current record.
func (s *Store) Get() *models.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Token returns the plaintext credential, empty when none is held.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Token
}

// Update applies fn to a copy, persists it, then publishes it. On a save
// failure the in-memory record is unchanged.
func (s *Store) Update(fn func(cfg *models.Config)) (*models.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	fn(next)
	if err := s.save(next); err != nil {
		return nil, err
	}
	s.cfg = next
	return next.Clone(), nil
}

// SetToken stores an authorized credential and the owning username.
func (s *Store) SetToken(token, username string) error {
	_, err := s.Update(func(cfg *models.Config) {
		cfg.Token = token
		cfg.IsAuthorized = token != ""
		cfg.Username = username
	})
	return err
}

// ClearToken forgets the credential.
func (s *Store) ClearToken() error {
	return s.SetToken("", "")
}

// MarkSynced records a successful sync at t.
func (s *Store) MarkSynced(t time.Time) error {
	_, err := s.Update(func(cfg *models.Config) {
		ts := t.UTC()
		cfg.LastSync = &ts
	})
	return err
}

// Reload re-reads the file and reports whether the record changed.
func (s *Store) Reload() (bool, error) {
	cfg, err := s.read()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sameRecord(s.cfg, cfg) {
		return false, nil
	}
	s.cfg = cfg
	return true, nil
}

func (s *Store) save(cfg *models.Config) error {
	out := cfg.Clone()
	sealed, err := s.vault.Seal(cfg.Token)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeEncryptionFailed, "failed to protect token")
	}
	out.Token = sealed

	data, err := yaml.Marshal(out)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to marshal config")
	}

	dir := filepath.Dir(s.path)
	if err := common.EnsureDir(dir, common.DirPermissionSecure); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigPermission, "failed to create config directory").
			WithContext("dir", dir)
	}
	if err := writeFileAtomic(s.path, data, common.FilePermissionSecure); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigPermission, "failed to write config file").
			WithContext("path", s.path)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// sameRecord compares the plaintext YAML form, so timestamps that went
// through a file round trip still compare equal.
func sameRecord(a, b *models.Config) bool {
	ad, errA := yaml.Marshal(a)
	bd, errB := yaml.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ad, bd)
}
