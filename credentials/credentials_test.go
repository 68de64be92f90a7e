package credentials

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("TEST_CRED_KEY", testKeyHex)
	store, err := NewStoreAt(t.TempDir(), NewEnvKeyProvider("TEST_CRED_KEY"))
	require.NoError(t, err)
	return store
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	assert.False(t, store.Exists())

	require.NoError(t, store.Save(&Credentials{Provider: "openai", APIKey: "sk-test-1234567890"}))
	assert.True(t, store.Exists())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-test-1234567890", "key is encrypted at rest")

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", creds.Provider)
	assert.Equal(t, "sk-test-1234567890", creds.APIKey)
	assert.False(t, creds.LastUpdated.IsZero())
}

func TestStore_LoadNoCredentials(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(&Credentials{APIKey: "k"}))
	require.NoError(t, store.Delete())
	assert.False(t, store.Exists())
	require.NoError(t, store.Delete(), "deleting twice is fine")
}

func TestStore_WrongKeyFailsToDecrypt(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(&Credentials{APIKey: "sk-secret"}))

	t.Setenv("OTHER_KEY", strings.Repeat("ab", 32))
	other, err := NewStoreAt(store.credentialsDir, NewEnvKeyProvider("OTHER_KEY"))
	require.NoError(t, err)

	_, err = other.Load()
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestActiveAPIKey(t *testing.T) {
	store := newTestStore(t)

	t.Setenv(APIKeyEnv, "")
	key, err := ActiveAPIKey(store)
	require.NoError(t, err)
	assert.Empty(t, key, "no stored key is not an error")

	require.NoError(t, store.Save(&Credentials{APIKey: "stored-key"}))
	key, err = ActiveAPIKey(store)
	require.NoError(t, err)
	assert.Equal(t, "stored-key", key)

	t.Setenv(APIKeyEnv, "env-key")
	key, err = ActiveAPIKey(store)
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)

	key, err = ActiveAPIKey(nil)
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"sk-abcdefghijklmnop", "sk-a********mnop"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskAPIKey(tt.in))
	}
}

func TestAPIKeyID(t *testing.T) {
	id := APIKeyID("sk-abc")
	assert.Len(t, id, 8)
	assert.Equal(t, id, APIKeyID("sk-abc"))
	assert.NotEqual(t, id, APIKeyID("sk-abd"))
}
