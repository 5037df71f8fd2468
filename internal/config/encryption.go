package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptedPrefix = "ENC["
	encryptedSuffix = "]"

	// EnvEncryptionKey supplies the passphrase for ENC[...] values.
	EnvEncryptionKey = "DATASYNC_ENCRYPTION_KEY"

	pbkdf2Iterations = 100000
	keySize          = 32
)

// keySalt is fixed so values written by one process open in the next.
var keySalt = []byte("datasync-token-at-rest-v1")

var (
	keyCacheMu sync.Mutex
	keyCache   = map[string][]byte{}
)

// getEncryptionKey derives the AES key from the env passphrase or the
// machine identity.
func getEncryptionKey() []byte {
	secret := os.Getenv(EnvEncryptionKey)
	if secret == "" {
		secret = getMachineID()
	}

	keyCacheMu.Lock()
	defer keyCacheMu.Unlock()
	if key, ok := keyCache[secret]; ok {
		return key
	}
	key := pbkdf2.Key([]byte(secret), keySalt, pbkdf2Iterations, keySize, sha256.New)
	keyCache[secret] = key
	return key
}

func getMachineID() string {
	hostname, _ := os.Hostname()
	homeDir, _ := os.UserHomeDir()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return fmt.Sprintf("%s-%s-%s-%s-datasync", hostname, homeDir, user, runtime.GOOS)
}

// EncryptSecret encrypts a value using AES-256-GCM
func EncryptSecret(plaintext string) (string, error) {
	if plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}

	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext) + encryptedSuffix, nil
}

// DecryptSecret reverses EncryptSecret. Values without the ENC[...] wrapper
// are returned unchanged.
func DecryptSecret(encrypted string) (string, error) {
	if !IsEncrypted(encrypted) {
		return encrypted, nil
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(encrypted, encryptedPrefix), encryptedSuffix)
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted value: %w", err)
	}

	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return string(plaintext), nil
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(getEncryptionKey())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// IsEncrypted checks if a string is encrypted
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix) && strings.HasSuffix(value, encryptedSuffix)
}
