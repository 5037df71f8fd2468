package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "datasync"
	keyringAccount = "github-token"

	// KeyringMarker is persisted in place of a token held by the OS keyring.
	KeyringMarker = "keyring:"

	// EnvUseKeyring set to "false" forces file encryption.
	EnvUseKeyring = "DATASYNC_USE_KEYRING"
)

// Vault turns a plaintext token into its at-rest form and back.
type Vault struct {
	UseKeyring bool
	Account    string
}

// NewVault picks the keyring when the platform offers one.
func NewVault() *Vault {
	return &Vault{UseKeyring: isKeyringAvailable(), Account: keyringAccount}
}

// Seal stores token and returns the value to persist in the record.
// A keyring failure falls back to ENC[...].
func (v *Vault) Seal(token string) (string, error) {
	if token == "" {
		v.forget()
		return "", nil
	}
	if v.UseKeyring {
		if err := keyring.Set(keyringService, v.account(), token); err == nil {
			return KeyringMarker + v.account(), nil
		}
	}
	return EncryptSecret(token)
}

// Open resolves a persisted value. Plaintext is accepted for records
// written before encryption existed.
func (v *Vault) Open(stored string) (string, error) {
	switch {
	case stored == "":
		return "", nil
	case strings.HasPrefix(stored, KeyringMarker):
		account := strings.TrimPrefix(stored, KeyringMarker)
		if account == "" {
			account = v.account()
		}
		token, err := keyring.Get(keyringService, account)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to read token from keyring: %w", err)
		}
		return token, nil
	case IsEncrypted(stored):
		return DecryptSecret(stored)
	default:
		return stored, nil
	}
}

func (v *Vault) forget() {
	if v.UseKeyring {
		_ = keyring.Delete(keyringService, v.account())
	}
}

func (v *Vault) account() string {
	if v.Account == "" {
		return keyringAccount
	}
	return v.Account
}

func isKeyringAvailable() bool {
	if os.Getenv(EnvUseKeyring) == "false" {
		return false
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// Secret Service needs a session bus
		return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != ""
	}
	return false
}
