package wearable

import (
	"fmt"
	"strings"
)

// Source is a set of places asset payloads may come from.
type Source uint8

const (
	// SourceEmbedded serves payloads shipped with the client.
	SourceEmbedded Source = 1 << iota
	// SourceWeb serves payloads from the content servers.
	SourceWeb
)

// SourceAll permits every source.
const SourceAll = SourceEmbedded | SourceWeb

// Has reports whether every source of other is permitted.
func (s Source) Has(other Source) bool { return s&other == other }

func (s Source) String() string {
	var parts []string
	if s.Has(SourceEmbedded) {
		parts = append(parts, "embedded")
	}
	if s.Has(SourceWeb) {
		parts = append(parts, "web")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseSources parses source names such as "embedded" and "web".
func ParseSources(names []string) (Source, error) {
	var s Source
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "embedded":
			s |= SourceEmbedded
		case "web":
			s |= SourceWeb
		default:
			return 0, fmt.Errorf("unknown content source %q", name)
		}
	}
	return s, nil
}
