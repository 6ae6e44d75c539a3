// Package memory defines the working-memory entry model and the contract
// its persistence backends implement.
//
// An entry is a key/value fact grouped into a scope (a logical namespace):
// keys are unique within a scope, and the (scope, key) pair is the entry's
// identity. Each entry carries a TTL controlling how long it stays fresh and
// an importance weight used as a ranking tie-break.
//
// # Entries and TTL
//
// Entries expire lazily. No background sweep exists; instead every read path
// re-evaluates freshness and deletes expired entries as a side effect:
//
//	entry := memory.Entry{
//	    Scope:      "prefs",
//	    Key:        "theme",
//	    Value:      "dark",
//	    TTL:        5 * time.Minute,
//	    Importance: 0.8,
//	    InsertedAt: time.Now(),
//	}
//
//	// Later, on any read:
//	if entry.IsExpired(time.Now()) {
//	    // the read deletes the entry and reports it as absent
//	}
//
// A TTL of memory.NoExpiry (zero) disables expiry. Storing to an existing
// (scope, key) replaces the entry wholesale and resets InsertedAt, which
// restarts the TTL countdown.
//
// # Values
//
// Values are opaque JSON-shaped payloads. NormalizeValue converts arbitrary
// Go values into that shape at the store boundary and rejects anything that
// cannot be represented as JSON:
//
//	v, err := memory.NormalizeValue(map[string]int{"count": 3})
//	if err != nil {
//	    // errors.Is(err, memory.ErrInvalidValue)
//	}
//
// Because of normalization, a value reads back identically whether or not
// the process restarted in between.
//
// # Backends
//
// Backend is the pluggable persistence strategy:
//
//   - memory/filestore: a single-node JSON snapshot table that survives
//     restarts, with corruption repair on open and periodic flushing.
//   - memory/etcdstore: a table replicated through etcd; writes are
//     acknowledged after cluster commit.
//   - memory/redistore: a table shared through Redis; writes are
//     acknowledged once the server commits them.
//
// All backends implement the same lazy-expiry, error-surfacing contract, so
// they are interchangeable behind the coordinating facade.
//
// # Error Handling
//
// Operations return sentinel errors that wrap cleanly:
//
//	_, err := backend.Retrieve(ctx, "prefs", "missing")
//	if errors.Is(err, memory.ErrNotFound) {
//	    // expected miss, fully recoverable
//	}
//
// Backend failures are never collapsed into empty results; callers can
// always distinguish "no entries" from "backend unavailable".
package memory
