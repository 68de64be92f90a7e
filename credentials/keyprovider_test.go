package credentials

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const testKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEnvKeyProvider_GetKey(t *testing.T) {
	envVar := "TEST_PENF_LIVE_ENCRYPTION_KEY"

	t.Run("valid key", func(t *testing.T) {
		t.Setenv(envVar, testKeyHex)

		key, err := NewEnvKeyProvider(envVar).GetKey()
		require.NoError(t, err)
		expected, _ := hex.DecodeString(testKeyHex)
		assert.Equal(t, expected, key)
	})

	t.Run("missing env var", func(t *testing.T) {
		t.Setenv(envVar, "")
		_, err := NewEnvKeyProvider(envVar).GetKey()
		assert.Error(t, err)
	})

	t.Run("invalid hex", func(t *testing.T) {
		t.Setenv(envVar, "not-valid-hex")
		_, err := NewEnvKeyProvider(envVar).GetKey()
		assert.Error(t, err)
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Setenv(envVar, "0123456789abcdef")
		_, err := NewEnvKeyProvider(envVar).GetKey()
		assert.ErrorContains(t, err, "must be 32 bytes")
	})
}

func TestPassphraseKeyProvider_GetKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	key1, err := NewPassphraseKeyProvider("correct horse", salt).GetKey()
	require.NoError(t, err)
	assert.Len(t, key1, keyLength)

	key2, err := NewPassphraseKeyProvider("correct horse", salt).GetKey()
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "same passphrase and salt derive the same key")

	key3, err := NewPassphraseKeyProvider("battery staple", salt).GetKey()
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	_, err = NewPassphraseKeyProvider("", salt).GetKey()
	assert.Error(t, err)
	_, err = NewPassphraseKeyProvider("x", nil).GetKey()
	assert.Error(t, err)
}

func TestLoadOrCreateSalt(t *testing.T) {
	dir := t.TempDir()

	salt, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	assert.Len(t, salt, 16)

	again, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	assert.Equal(t, salt, again)

	info, err := os.Stat(filepath.Join(dir, saltFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(filepath.Join(dir, saltFile), []byte("zz"), 0600))
	_, err = LoadOrCreateSalt(dir)
	assert.Error(t, err)
}

func TestKeyringKeyProvider(t *testing.T) {
	keyring.MockInit()

	p := NewKeyringKeyProvider()
	key, err := p.GetKey()
	require.NoError(t, err)
	assert.Len(t, key, keyLength)

	again, err := p.GetKey()
	require.NoError(t, err)
	assert.Equal(t, key, again, "key persists in the keyring")
	assert.NotEmpty(t, p.Description())
}

func TestGetDefaultKeyProvider(t *testing.T) {
	t.Run("env key wins", func(t *testing.T) {
		t.Setenv(EncryptionKeyEnv, testKeyHex)
		t.Setenv(PassphraseEnv, "ignored")

		p, err := GetDefaultKeyProvider(t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &EnvKeyProvider{}, p)
	})

	t.Run("passphrase", func(t *testing.T) {
		t.Setenv(EncryptionKeyEnv, "")
		t.Setenv(PassphraseEnv, "correct horse")
		dir := t.TempDir()

		p, err := GetDefaultKeyProvider(dir)
		require.NoError(t, err)
		assert.IsType(t, &PassphraseKeyProvider{}, p)
		assert.FileExists(t, filepath.Join(dir, saltFile))
	})

	t.Run("keyring", func(t *testing.T) {
		t.Setenv(EncryptionKeyEnv, "")
		t.Setenv(PassphraseEnv, "")
		keyring.MockInit()

		p, err := GetDefaultKeyProvider(t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &KeyringKeyProvider{}, p)
	})
}

func TestKeyringKeyProvider_ReplacesCorruptEntry(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(keyringService, keyringAccount, "not-a-key"))

	key, err := NewKeyringKeyProvider().GetKey()
	require.NoError(t, err)
	assert.Len(t, key, keyLength)

	stored, err := keyring.Get(keyringService, keyringAccount)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(key), stored)
}
