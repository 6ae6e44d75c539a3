package memory

import (
	"context"
	"errors"
	"sort"
)

// Common errors returned by memory operations.
var (
	// ErrNotFound is returned when a requested entry does not exist or has
	// already expired.
	ErrNotFound = errors.New("memory: entry not found")

	// ErrInvalidScope is returned when a scope name is empty.
	ErrInvalidScope = errors.New("memory: invalid scope")

	// ErrInvalidKey is returned when a key is empty.
	ErrInvalidKey = errors.New("memory: invalid key")

	// ErrInvalidValue is returned when a value cannot be stored (e.g., not
	// JSON-serializable).
	ErrInvalidValue = errors.New("memory: invalid value")

	// ErrInvalidImportance is returned when an importance weight falls
	// outside [0,1].
	ErrInvalidImportance = errors.New("memory: importance out of range")

	// ErrInvalidTTL is returned when a negative TTL is supplied.
	ErrInvalidTTL = errors.New("memory: invalid ttl")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("memory: store is closed")

	// ErrCorrupted is returned when persisted data cannot be decoded.
	ErrCorrupted = errors.New("memory: store data corrupted")

	// ErrUnavailable is returned when a remote backend cannot be reached.
	ErrUnavailable = errors.New("memory: backend unavailable")
)

// Backend is the persistence strategy behind a memory instance, selected at
// construction time. Implementations divide into a local durable table
// (single node, survives restarts) and replicated tables shared across
// cluster nodes; the coordinating facade is generic over this interface.
//
// Contract, beyond the per-method documentation:
//
//   - Lazy expiry: every read path (Retrieve, Entries, Search) re-checks
//     freshness against a clock sampled once per call, deletes expired
//     entries it encounters, and treats them as absent. There is no
//     background sweep.
//   - Errors are never swallowed into an empty result; a failing backend
//     reports the failure so callers can tell "no results" from
//     "backend unavailable".
//   - Implementations are safe for concurrent use. Read paths may delete
//     expired entries and therefore need the implementation's own locking.
//
// Example usage:
//
//	backend := filestore.New(filestore.Options{Path: "recall.json"})
//	if err := backend.Open(ctx); err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err := backend.Store(ctx, memory.Entry{
//	    Scope: "prefs", Key: "theme", Value: "dark",
//	    Importance: 0.8, InsertedAt: now, UpdatedAt: now,
//	})
type Backend interface {
	// Open initializes the backend, including any repair protocol, and must
	// complete before traffic is served. A permanent failure here is fatal
	// to the owning facade's startup.
	Open(ctx context.Context) error

	// Store upserts the entry by (Scope, Key), replacing value, TTL,
	// importance and timestamps. On replicated backends the call blocks
	// until the backend's own commit completes.
	Store(ctx context.Context, entry Entry) error

	// Retrieve looks up an entry by (scope, key).
	// Returns ErrNotFound if the entry does not exist; an expired entry is
	// deleted and reported as ErrNotFound.
	Retrieve(ctx context.Context, scope, key string) (Entry, error)

	// Entries returns all live entries in the scope, sorted descending by
	// (InsertedAt, Importance). Expired entries encountered during the
	// scan are deleted and excluded.
	Entries(ctx context.Context, scope string) ([]Entry, error)

	// Delete removes the stored entry regardless of freshness.
	// Returns ErrNotFound if no entry exists under (scope, key).
	Delete(ctx context.Context, scope, key string) error

	// Clear removes every entry in the scope. Clearing an empty or unknown
	// scope is not an error.
	Clear(ctx context.Context, scope string) error

	// Search returns live entries whose value matches the query as a
	// case-insensitive substring. Results are unordered candidates;
	// scoring and ranking happen above this layer. Local backends match
	// textual values only, replicated backends stringify every value.
	Search(ctx context.Context, query string) ([]Entry, error)

	// Close releases the backend's resources. It must be idempotent.
	Close() error
}

// SortEntries orders entries descending by InsertedAt, breaking ties by
// descending Importance. This is the listing order every backend returns.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].InsertedAt.Equal(entries[j].InsertedAt) {
			return entries[i].InsertedAt.After(entries[j].InsertedAt)
		}
		return entries[i].Importance > entries[j].Importance
	})
}
