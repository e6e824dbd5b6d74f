// Package resolution drives batches of wearable pointers to renderable assets.
//
// A Driver is ticked from a single control loop. Each tick it advances every
// pending Batch a little without ever blocking:
//
//	Request ──► definitions ──► hiding rules ──► per visible item:
//	                                                manifest ──► bundle(s)
//	                                                   │            │
//	                                                   └── failure ─┴──► defaults
//
// Items are marked resolved in a per-batch bitmask. A batch publishes its
// Outcome once, on the first tick every visible item is marked. A reference
// on every payload of an item is taken before its bit is set and given back
// by Outcome.Release or by cancellation.
//
// All Entry mutations happen on the loop goroutine. Request and Batch.Cancel
// are safe to call from anywhere; use Loop.Do to read driver state from
// outside the loop.
package resolution
