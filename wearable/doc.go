// Package wearable holds the wearable domain model: definitions and manifests
// as they arrive on the wire, the per URN Entry the resolution driver writes
// into, the shared Storage of entries and the category hiding rules.
//
// Entries are written by a single goroutine (the resolution loop). Storage
// itself is safe for concurrent use so that other goroutines may read.
package wearable
