// Package streamable implements budget limited, deduplicating and cancellable
// asynchronous loads that are observed through non-blocking polls.
//
//	Input: Loader.Create(ctx, intention, partition)
//		↓
//	Loader.Create
//		├─ Check irrecoverable failures → resolved Failure promise
//		├─ Check cache (fast path) → resolved Success promise, reference added
//		└─ Otherwise → Created promise
//		  ↓
//	Promise.TryConsume (every tick, never blocks)
//		├─ Created: join an in-flight load of the same key (no budget)
//		│           or acquire a budget slot and start a new load
//		├─ Loading: check cancellation → Forgotten
//		│           check completion → Resolved
//		└─ Resolved: hand the result out exactly once → Consumed
//		  ↓
//	load goroutine
//		├─ Strategy.Fetch → release budget slot as soon as bytes arrived
//		├─ Strategy.Decode (optionally on the DecodePool)
//		└─ Write the result into the cache
//
// The budget slot is released between Fetch and Decode. A parent load therefore
// never holds a slot while a child load that depends on its payload waits for one.
package streamable
