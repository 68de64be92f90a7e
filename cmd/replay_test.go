package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

const standupTranscript = `0:05 : Dana : I'll send the deck by Friday
0:12 : Lee : We decided to ship Monday
0:20 : Dana : let's table that for now
0:25 : Lee : nice weather today
`

func writeTranscript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunReplay_JSON(t *testing.T) {
	cfg := testConfig()
	cfg.OutputFormat = config.OutputFormatJSON
	deps := testDeps(t, cfg)
	path := writeTranscript(t, "standup.txt", standupTranscript)

	var out bytes.Buffer
	require.NoError(t, runReplay(context.Background(), &out, deps, path, 0, "", 5*time.Second, false))

	var res replayResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "standup.txt", res.Session.Title)
	assert.Equal(t, 4, res.Segments)
	assert.Equal(t, 3, res.Stats.Total)
	assert.Equal(t, 3, res.Stats.Enhanced, "offline provider enhances every item")

	var cats []phrases.Category
	for _, g := range res.Groups {
		cats = append(cats, g.Category)
		for _, it := range g.Items {
			assert.True(t, it.IsEnhanced)
			assert.False(t, it.IsEnhancing)
		}
	}
	assert.Equal(t, []phrases.Category{phrases.CategoryActionItem, phrases.CategoryDecision, phrases.CategoryDeferred}, cats)

	speakers := map[string]bool{}
	for _, g := range res.Groups {
		for _, it := range g.Items {
			speakers[it.Phrase.Speaker] = true
		}
	}
	assert.True(t, speakers["Dana"])
	assert.True(t, speakers["Lee"])
}

func TestRunReplay_TextVerbose(t *testing.T) {
	deps := testDeps(t, testConfig())
	path := writeTranscript(t, "standup.txt", standupTranscript)

	var out bytes.Buffer
	require.NoError(t, runReplay(context.Background(), &out, deps, path, 0, "", 5*time.Second, true))

	s := out.String()
	assert.Contains(t, s, "+ [00:05] Action Items: I'll send the deck by Friday")
	assert.Contains(t, s, "4 segments, 3 items (3 enhanced)")
	assert.Contains(t, s, "Action Items (1)")
	assert.Contains(t, s, "Decisions (1)")
	assert.Contains(t, s, "Deferred (1)")
}

func TestRunReplay_MissingFile(t *testing.T) {
	deps := testDeps(t, testConfig())

	err := runReplay(context.Background(), &bytes.Buffer{}, deps, filepath.Join(t.TempDir(), "nope.txt"), 0, "", time.Second, false)
	require.Error(t, err)
}

func TestOpenLocalSession_DatabaseError(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Enabled = true
	cfg.Database.URL = "postgres://localhost/live"
	deps := testDeps(t, cfg)

	_, err := openLocalSession(context.Background(), deps, cfg, "standup")
	require.ErrorIs(t, err, errNoTestDB)
}

func TestWatch_ReadsExistingLinesAndSummarizes(t *testing.T) {
	deps := testDeps(t, testConfig())
	path := writeTranscript(t, "live.txt", standupTranscript)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, runWatch(ctx, &out, deps, path, 5*time.Second))

	s := out.String()
	assert.Contains(t, s, "Watching "+path)
	assert.Contains(t, s, "+ [00:12] Decisions: We decided to ship Monday")
	assert.Contains(t, s, "4 segments, 3 items (3 enhanced)")
}
