package memory

import (
	"encoding/json"
	"math"
	"time"
)

// NoExpiry is the TTL value for entries that never expire.
const NoExpiry time.Duration = 0

// DefaultImportance is assigned to entries stored without an explicit
// importance weight.
const DefaultImportance = 0.5

// Entry is a single fact held in working memory. Entries are identified by
// the (Scope, Key) pair: keys are unique within a scope, and a second store
// to the same pair replaces the entry wholesale.
type Entry struct {
	// Scope is the namespace the entry belongs to. A scope holds an
	// unbounded number of entries.
	Scope string `json:"scope"`

	// Key identifies the entry within its scope.
	Key string `json:"key"`

	// Value is the stored data. Values are normalized to their JSON shape
	// before storage, so any JSON-serializable value is accepted and reads
	// back identically across process restarts.
	Value any `json:"value"`

	// TTL is the entry's lifetime relative to InsertedAt. NoExpiry (zero)
	// disables expiry.
	TTL time.Duration `json:"ttl"`

	// Importance is a ranking tie-break in [0,1]. Higher sorts first among
	// entries inserted at the same instant.
	Importance float64 `json:"importance"`

	// InsertedAt is when the entry was last written. A replacing store
	// resets it, which restarts the TTL countdown.
	InsertedAt time.Time `json:"inserted_at"`

	// UpdatedAt tracks the same write instant; it is kept distinct from
	// InsertedAt because the replicated record layout carries both.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the entry's TTL has elapsed at the given
// instant. Callers sample the clock once and pass it in, so a batch of
// checks sees one consistent "now". An entry exactly at its deadline is
// still live.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.InsertedAt) > e.TTL
}

// ExpiresAt returns the instant the entry expires, or false if it never
// does.
func (e *Entry) ExpiresAt() (time.Time, bool) {
	if e.TTL <= 0 {
		return time.Time{}, false
	}
	return e.InsertedAt.Add(e.TTL), true
}

// Validate checks the identity and metadata fields, returning the first
// violated sentinel error.
func (e *Entry) Validate() error {
	if e.Scope == "" {
		return ErrInvalidScope
	}
	if e.Key == "" {
		return ErrInvalidKey
	}
	if math.IsNaN(e.Importance) || e.Importance < 0 || e.Importance > 1 {
		return ErrInvalidImportance
	}
	if e.TTL < 0 {
		return ErrInvalidTTL
	}
	return nil
}

// Clone creates a deep copy of the entry. The value is copied through its
// JSON form, which is lossless for normalized values.
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Value = cloneValue(e.Value)
	return &clone
}

// String returns a human-readable representation of the entry.
func (e *Entry) String() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// cloneValue deep-copies a value using JSON marshaling.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var clone any
	if err := json.Unmarshal(data, &clone); err != nil {
		return v
	}

	return clone
}
