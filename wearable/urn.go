package wearable

import "strings"

// URN identifies a wearable definition. URNs are compared in lower case.
type URN string

const urnPrefix = "urn:"

// NewURN normalizes s into a URN.
func NewURN(s string) URN {
	return URN(strings.ToLower(strings.TrimSpace(s)))
}

// IsValid reports whether the URN is well formed.
func (u URN) IsValid() bool {
	return len(u) > len(urnPrefix) && strings.HasPrefix(string(u), urnPrefix)
}

// Shorten strips the token id of a collectible so that every token of an item
// resolves to the same definition:
//
//	urn:decentraland:matic:collections-v2:0xabc:1:105312291668557186697918131... → urn:decentraland:matic:collections-v2:0xabc:1
func (u URN) Shorten() URN {
	parts := strings.Split(string(u), ":")
	if len(parts) == 7 && (parts[3] == "collections-v2" || parts[3] == "collections-v1") {
		return URN(strings.Join(parts[:6], ":"))
	}
	return u
}

func (u URN) String() string { return string(u) }
