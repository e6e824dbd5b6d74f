package version_test

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/streaming/internal/version"
)

func TestFromBuildInfo(t *testing.T) {
	r := require.New(t)

	info, err := version.FromBuildInfo(&debug.BuildInfo{
		GoVersion: "go1.26.1",
		Main:      debug.Module{Version: "v0.3.1-20250101120000-abcdef123456"},
	})
	r.NoError(err)
	r.Equal("0", info.Major)
	r.Equal("3", info.Minor)
	r.Equal("1", info.Patch)
	r.Equal("20250101120000", info.BuildDate)
	r.Equal("abcdef123456", info.GitCommit)
	r.Equal("v0.3.1-20250101120000-abcdef123456", info.GitVersion)

	info, err = version.FromBuildInfo(&debug.BuildInfo{
		Main:     debug.Module{Version: "v1.2.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123abc"}},
	})
	r.NoError(err)
	r.Equal("0123abc", info.GitCommit)
	r.Empty(info.BuildDate)

	_, err = version.FromBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	r.ErrorContains(err, "could not parse version")
}
