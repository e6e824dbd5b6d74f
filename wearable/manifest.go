package wearable

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Manifest describes the platform bundles built for an entity.
type Manifest struct {
	Version  string   `json:"version"`
	Files    []string `json:"files"`
	ExitCode int      `json:"exitCode,omitempty"`
	Date     string   `json:"date,omitempty"`
}

// NewManifestFromVersion creates a manifest for a definition that carries its
// bundle version itself. The file list is unknown, Has accepts every file.
func NewManifestFromVersion(version string) *Manifest {
	return &Manifest{Version: version}
}

// Has reports whether the manifest lists file. A manifest without files
// lists everything.
func (m *Manifest) Has(file string) bool {
	if len(m.Files) == 0 {
		return true
	}
	return slices.ContainsFunc(m.Files, func(f string) bool { return strings.EqualFold(f, file) })
}

// SemVer parses the manifest version. Markers such as "v16" are accepted.
func (m *Manifest) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest version %q: %w", m.Version, err)
	}
	return v, nil
}

// CheckMinimumVersion fails if the manifest was built with a version older than minimum.
func (m *Manifest) CheckMinimumVersion(minimum *semver.Version) error {
	if minimum == nil {
		return nil
	}
	v, err := m.SemVer()
	if err != nil {
		return err
	}
	if v.LessThan(minimum) {
		return fmt.Errorf("manifest version %s is older than the supported minimum %s", m.Version, minimum.Original())
	}
	return nil
}
