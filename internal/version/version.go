// Package version reports the version the binary was built from.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Info describes a build.
type Info struct {
	Major      string `json:"major"`
	Minor      string `json:"minor"`
	Patch      string `json:"patch"`
	PreRelease string `json:"prerelease"`
	Meta       string `json:"meta"`
	GitVersion string `json:"gitVersion"`
	GitCommit  string `json:"gitCommit"`
	BuildDate  string `json:"buildDate"`
	GoVersion  string `json:"goVersion"`
	Compiler   string `json:"compiler"`
	Platform   string `json:"platform"`
}

// Get reads the version from the build info of the binary.
func Get() (Info, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return Info{}, fmt.Errorf("could not read build info")
	}
	return FromBuildInfo(bi)
}

// FromBuildInfo derives Info from bi. A pseudo version such as
// v0.0.0-20250101120000-abcdef123456 carries the build date and commit.
func FromBuildInfo(bi *debug.BuildInfo) (Info, error) {
	v, err := semver.NewVersion(bi.Main.Version)
	if err != nil {
		return Info{}, fmt.Errorf("could not parse version %q: %w", bi.Main.Version, err)
	}

	var gitCommit, buildDate string
	if prerelease := v.Prerelease(); prerelease != "" {
		buildDate, gitCommit, _ = strings.Cut(prerelease, "-")
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && gitCommit == "" {
			gitCommit = s.Value
		}
	}

	return Info{
		Major:      strconv.FormatUint(v.Major(), 10),
		Minor:      strconv.FormatUint(v.Minor(), 10),
		Patch:      strconv.FormatUint(v.Patch(), 10),
		PreRelease: v.Prerelease(),
		Meta:       strings.TrimPrefix(v.Metadata(), "+"),
		GitVersion: v.Original(),
		GitCommit:  gitCommit,
		BuildDate:  buildDate,
		GoVersion:  bi.GoVersion,
		Compiler:   runtime.Compiler,
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}, nil
}
