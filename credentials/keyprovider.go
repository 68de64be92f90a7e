package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

const (
	keyringService = "penf-live"
	keyringAccount = "encryption-key"

	// keyLength is an AES-256 key.
	keyLength  = 32
	saltLength = 16
	saltFile   = "credentials.salt"

	// EncryptionKeyEnv holds a hex-encoded key, for CI and headless hosts.
	EncryptionKeyEnv = "PENF_LIVE_ENCRYPTION_KEY"
	// PassphraseEnv holds a passphrase the key is derived from.
	PassphraseEnv = "PENF_LIVE_PASSPHRASE"
)

// Argon2id cost for passphrase-derived keys.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider supplies the key that seals the credentials file.
type KeyProvider interface {
	GetKey() ([]byte, error)
	// Description names the key's storage for 'penf-live auth status'.
	Description() string
}

// decodeKey parses a hex key and checks its length.
func decodeKey(raw, source string) ([]byte, error) {
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid key in %s: %w", source, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("key in %s must be %d bytes, got %d", source, keyLength, len(key))
	}
	return key, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// KeyringKeyProvider keeps a generated key in the OS keyring. The key is
// created on first use and cached for the life of the provider.
type KeyringKeyProvider struct {
	mu  sync.Mutex
	key []byte
}

func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{}
}

func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}

	stored, err := keyring.Get(keyringService, keyringAccount)
	switch {
	case err == nil:
		if key, decErr := decodeKey(stored, "keyring"); decErr == nil {
			p.key = key
			return key, nil
		}
		// A corrupt entry is replaced below.
	case !errors.Is(err, keyring.ErrNotFound):
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	key, err := randomBytes(keyLength)
	if err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringAccount, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	p.key = key
	return key, nil
}

func (p *KeyringKeyProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// PassphraseKeyProvider derives the key from a passphrase with Argon2id.
type PassphraseKeyProvider struct {
	passphrase string
	salt       []byte
}

func NewPassphraseKeyProvider(passphrase string, salt []byte) *PassphraseKeyProvider {
	return &PassphraseKeyProvider{passphrase: passphrase, salt: salt}
}

func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	switch {
	case p.passphrase == "":
		return nil, errors.New("passphrase is required")
	case len(p.salt) == 0:
		return nil, errors.New("salt is required")
	}
	return argon2.IDKey([]byte(p.passphrase), p.salt, argon2Time, argon2Memory, argon2Threads, keyLength), nil
}

func (p *PassphraseKeyProvider) Description() string {
	return "Passphrase-derived key (Argon2id)"
}

// GenerateSalt returns a fresh random salt for passphrase derivation.
func GenerateSalt() ([]byte, error) {
	salt, err := randomBytes(saltLength)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// LoadOrCreateSalt returns the salt kept next to the credentials in dir,
// writing a new one the first time.
func LoadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		salt, decErr := hex.DecodeString(string(data))
		if decErr != nil || len(salt) == 0 {
			return nil, fmt.Errorf("invalid salt in %s", path)
		}
		return salt, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading salt: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)), 0600); err != nil {
		return nil, fmt.Errorf("writing salt: %w", err)
	}
	return salt, nil
}

// EnvKeyProvider reads a hex key from an environment variable.
type EnvKeyProvider struct {
	envVar string
}

func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	raw := os.Getenv(p.envVar)
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s not set", p.envVar)
	}
	return decodeKey(raw, p.envVar)
}

func (p *EnvKeyProvider) Description() string {
	return fmt.Sprintf("Environment variable (%s)", p.envVar)
}

// GetDefaultKeyProvider picks the key source for a credentials directory:
// PENF_LIVE_ENCRYPTION_KEY, then PENF_LIVE_PASSPHRASE (salt kept in dir),
// then the OS keyring.
func GetDefaultKeyProvider(dir string) (KeyProvider, error) {
	if os.Getenv(EncryptionKeyEnv) != "" {
		return NewEnvKeyProvider(EncryptionKeyEnv), nil
	}

	if passphrase := os.Getenv(PassphraseEnv); passphrase != "" {
		salt, err := LoadOrCreateSalt(dir)
		if err != nil {
			return nil, err
		}
		return NewPassphraseKeyProvider(passphrase, salt), nil
	}

	provider := NewKeyringKeyProvider()
	if _, err := provider.GetKey(); err != nil {
		if errors.Is(err, ErrKeyringUnavailable) {
			return nil, fmt.Errorf("set %s or %s instead: %w", EncryptionKeyEnv, PassphraseEnv, err)
		}
		return nil, err
	}
	return provider, nil
}
