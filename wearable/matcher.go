package wearable

import (
	"fmt"

	"github.com/gobwas/glob"
)

// PointerMatcher matches URNs against glob patterns, ':' separates segments.
type PointerMatcher struct {
	globs []glob.Glob
}

// NewPointerMatcher compiles patterns such as "urn:decentraland:off-chain:base-avatars:*".
func NewPointerMatcher(patterns ...string) (*PointerMatcher, error) {
	m := &PointerMatcher{}
	for _, pattern := range patterns {
		g, err := glob.Compile(string(NewURN(pattern)), ':')
		if err != nil {
			return nil, fmt.Errorf("failed to compile glob pattern %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether urn matches any pattern. A nil matcher matches nothing.
func (m *PointerMatcher) Match(urn URN) bool {
	if m == nil {
		return false
	}
	for _, g := range m.globs {
		if g.Match(string(urn)) {
			return true
		}
	}
	return false
}
