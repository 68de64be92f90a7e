package buildinfo

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReturnsCorrectDefaults(t *testing.T) {
	info := Get("test-svc")

	assert.Equal(t, "test-svc", info.ServiceName)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.Commit)
	assert.Equal(t, "unknown", info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestString_DefaultFormat(t *testing.T) {
	assert.Equal(t, "dev (unknown, unknown)", String())
}

func TestString_CustomValues(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "v0.3.0"
	Commit = "4c1e9a2"
	BuildTime = "2026-10-01T09:00:00Z"

	assert.Equal(t, "v0.3.0 (4c1e9a2, 2026-10-01T09:00:00Z)", String())
	assert.Equal(t, "v0.3.0", Get("penf-live").Version)
}

func TestInfo_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Get("penf-live"))
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"service_name", "version", "commit", "build_time", "go_version"} {
		assert.Contains(t, m, key)
	}
}
