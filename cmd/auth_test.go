package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/config"
)

func TestAuthCommand_HasSubcommands(t *testing.T) {
	cmd := NewAuthCommand(testDeps(t, testConfig()))

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["set-key"], "auth should have set-key")
	assert.True(t, names["status"], "auth should have status")
	assert.True(t, names["clear"], "auth should have clear")
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{"valid", "sk-test-12345678", ""},
		{"empty", "", "empty"},
		{"too short", "abc", "too short"},
		{"whitespace", "sk-test 12345678", "whitespace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAPIKey(tt.key)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadAPIKey_FromReader(t *testing.T) {
	key, err := readAPIKey(strings.NewReader("  sk-piped-key-1234 \n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "sk-piped-key-1234", key)

	key, err = readAPIKey(strings.NewReader("no-trailing-newline"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "no-trailing-newline", key)
}

func TestAuth_SetKeyStatusClear(t *testing.T) {
	deps := testDeps(t, testConfig())

	// set-key reads the key from stdin.
	set := NewAuthCommand(deps)
	var out bytes.Buffer
	set.SetOut(&out)
	set.SetIn(strings.NewReader("sk-stored-key-abcdef\n"))
	set.SetArgs([]string{"set-key", "--provider", "openai"})
	require.NoError(t, set.Execute())
	assert.Contains(t, out.String(), "API key stored.")
	assert.NotContains(t, out.String(), "sk-stored-key-abcdef", "key must be masked")

	st, err := resolveAuthStatus(deps)
	require.NoError(t, err)
	assert.Equal(t, "stored", st.Source)
	assert.Equal(t, "openai", st.Provider)
	assert.NotEmpty(t, st.KeyID)

	key, err := deps.apiKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-stored-key-abcdef", key)

	clearCmd := NewAuthCommand(deps)
	out.Reset()
	clearCmd.SetOut(&out)
	clearCmd.SetArgs([]string{"clear"})
	require.NoError(t, clearCmd.Execute())
	assert.Contains(t, out.String(), "Stored API key deleted.")

	st, err = resolveAuthStatus(deps)
	require.NoError(t, err)
	assert.Equal(t, "none", st.Source)
}

func TestAuth_SetKeyRejectsInvalid(t *testing.T) {
	cmd := NewAuthCommand(testDeps(t, testConfig()))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"set-key", "--api-key", "short"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestAuth_StatusEnvironmentWins(t *testing.T) {
	cfg := testConfig()
	cfg.OutputFormat = config.OutputFormatJSON
	deps := testDeps(t, cfg)
	t.Setenv("PENF_LIVE_API_KEY", "sk-from-env-123456")

	cmd := NewAuthCommand(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status"})
	require.NoError(t, cmd.Execute())

	var st authStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, "environment (PENF_LIVE_API_KEY)", st.Source)
	assert.NotContains(t, st.Key, "from-env")
}

func TestAuth_StatusHintsWhenKeyMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Enhancement.Provider = config.ProviderOpenAI
	cmd := NewAuthCommand(testDeps(t, cfg))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"status"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Source:   none")
	assert.Contains(t, out.String(), "penf-live auth set-key")
}
