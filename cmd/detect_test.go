package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

func TestRunDetect_Text(t *testing.T) {
	deps := testDeps(t, testConfig())

	var out bytes.Buffer
	require.NoError(t, runDetect(&out, deps, "I'll follow up with finance by Friday", 12000, "Dana"))

	s := out.String()
	assert.Contains(t, s, "[00:12] action_item")
	assert.Contains(t, s, "I'll follow up with finance by Friday")
	assert.Contains(t, s, "speaker: Dana")
	assert.Contains(t, s, "due: Friday")
}

func TestRunDetect_JSON(t *testing.T) {
	cfg := testConfig()
	cfg.OutputFormat = config.OutputFormatJSON
	deps := testDeps(t, cfg)

	var out bytes.Buffer
	require.NoError(t, runDetect(&out, deps, "We decided to ship Monday", 0, ""))

	var res detectResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Len(t, res.Phrases, 1)
	assert.Equal(t, phrases.CategoryDecision, res.Phrases[0].Category)
}

func TestRunDetect_NothingFound(t *testing.T) {
	cfg := testConfig()
	deps := testDeps(t, cfg)

	var out bytes.Buffer
	require.NoError(t, runDetect(&out, deps, "the weather is nice", 0, ""))
	assert.Equal(t, "No phrases detected.\n", out.String())

	cfg.OutputFormat = config.OutputFormatJSON
	out.Reset()
	require.NoError(t, runDetect(&out, deps, "the weather is nice", 0, ""))
	assert.JSONEq(t, `{"phrases": []}`, out.String(), "an empty result is an empty list, not null")
}

func TestDetectCommand_ReadsStdin(t *testing.T) {
	cmd := NewDetectCommand(testDeps(t, testConfig()))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("let's table that for now\n"))
	cmd.SetArgs([]string{"--timestamp", "65000"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "[01:05] deferred")
}
