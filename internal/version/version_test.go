package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	b := Get()
	assert.Equal(t, GetVersion(), b.Version)
	assert.Equal(t, runtime.Version(), b.GoVersion)
	assert.NotEmpty(t, b.Commit)
	assert.NotEmpty(t, b.Date)
}

func TestFillFromVCS(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
	}

	b := Build{Commit: unknown, Date: unknown}
	fillFromVCS(&b, settings)
	assert.Equal(t, "abc123", b.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", b.Date)

	pinned := Build{Commit: "from-ldflags", Date: "2025-12-31"}
	fillFromVCS(&pinned, settings)
	assert.Equal(t, "from-ldflags", pinned.Commit)
	assert.Equal(t, "2025-12-31", pinned.Date)
}

func TestBuildString(t *testing.T) {
	b := Build{Version: "v1.4.0", Commit: "abc123", Date: "2026-01-02", GoVersion: "go1.24.0"}
	assert.Equal(t, "v1.4.0 (commit abc123, built 2026-01-02, go1.24.0)", b.String())
}

func TestFields(t *testing.T) {
	fields := Fields()
	b := Get()
	assert.Equal(t, b.Version, fields["version"])
	assert.Equal(t, b.Commit, fields["commit"])
	assert.Equal(t, b.Date, fields["build_date"])
	assert.Equal(t, b.GoVersion, fields["go"])
}
