package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stamp(t *testing.T, v, commit, built string, settings map[string]string) {
	t.Helper()
	oldVersion, oldCommit, oldTime, oldRead := Version, GitCommit, BuildTime, readSettings
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readSettings = oldVersion, oldCommit, oldTime, oldRead
	})
	Version, GitCommit, BuildTime = v, commit, built
	readSettings = func() map[string]string { return settings }
}

func TestVersionFromLdflags(t *testing.T) {
	stamp(t, "v1.2.3", "0123456789abcdef", "2025-03-01T10:00:00Z", nil)

	assert.Equal(t, "v1.2.3", GetVersion())
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())

	info := GetBuildInfo()
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime.UTC())
	assert.Contains(t, GetDetailedVersion(), "Commit: 0123456789abcdef")
	assert.Contains(t, GetDetailedVersion(), "Built: 2025-03-01T10:00:00Z")
}

func TestVersionFromBuildSettings(t *testing.T) {
	stamp(t, "dev", "unknown", "unknown", map[string]string{
		"vcs.revision": "fedcba9876543210",
		"vcs.modified": "true",
	})

	assert.Equal(t, "dev-fedcba9", GetVersion())
	assert.Equal(t, "fedcba9876543210", GetGitCommit())
	assert.Equal(t, "dev-fedcba9", GetShortVersion())
	assert.False(t, IsRelease())
	assert.True(t, IsDirty())
	assert.True(t, GetBuildInfo().BuildTime.IsZero())
}

func TestVersionUnknown(t *testing.T) {
	stamp(t, "dev", "unknown", "not a time", map[string]string{})

	assert.Equal(t, "dev", GetVersion())
	assert.Equal(t, "dev", GetShortVersion())
	assert.False(t, IsDirty())
	assert.NotContains(t, GetDetailedVersion(), "Commit:")
	assert.NotContains(t, GetDetailedVersion(), "Built:")
}
