package memory

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry Entry
		now   time.Time
		want  bool
	}{
		{
			name:  "no expiry never expires",
			entry: Entry{TTL: NoExpiry, InsertedAt: base},
			now:   base.Add(1000 * time.Hour),
			want:  false,
		},
		{
			name:  "before deadline",
			entry: Entry{TTL: time.Minute, InsertedAt: base},
			now:   base.Add(30 * time.Second),
			want:  false,
		},
		{
			name:  "exactly at deadline is still live",
			entry: Entry{TTL: time.Minute, InsertedAt: base},
			now:   base.Add(time.Minute),
			want:  false,
		},
		{
			name:  "past deadline",
			entry: Entry{TTL: time.Minute, InsertedAt: base},
			now:   base.Add(time.Minute + time.Nanosecond),
			want:  true,
		},
		{
			name:  "same instant as insertion",
			entry: Entry{TTL: 50 * time.Millisecond, InsertedAt: base},
			now:   base,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.IsExpired(tt.now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_ExpiresAt(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e := Entry{TTL: time.Hour, InsertedAt: base}
	deadline, ok := e.ExpiresAt()
	if !ok {
		t.Fatal("ExpiresAt() ok = false, want true")
	}
	if !deadline.Equal(base.Add(time.Hour)) {
		t.Errorf("ExpiresAt() = %v, want %v", deadline, base.Add(time.Hour))
	}

	e = Entry{TTL: NoExpiry, InsertedAt: base}
	if _, ok := e.ExpiresAt(); ok {
		t.Error("ExpiresAt() ok = true for NoExpiry, want false")
	}
}

func TestEntry_Validate(t *testing.T) {
	valid := Entry{Scope: "prefs", Key: "theme", Importance: 0.5}

	tests := []struct {
		name    string
		mutate  func(*Entry)
		wantErr error
	}{
		{
			name:    "valid entry",
			mutate:  func(e *Entry) {},
			wantErr: nil,
		},
		{
			name:    "empty scope",
			mutate:  func(e *Entry) { e.Scope = "" },
			wantErr: ErrInvalidScope,
		},
		{
			name:    "empty key",
			mutate:  func(e *Entry) { e.Key = "" },
			wantErr: ErrInvalidKey,
		},
		{
			name:    "importance below range",
			mutate:  func(e *Entry) { e.Importance = -0.1 },
			wantErr: ErrInvalidImportance,
		},
		{
			name:    "importance above range",
			mutate:  func(e *Entry) { e.Importance = 1.1 },
			wantErr: ErrInvalidImportance,
		},
		{
			name:    "importance NaN",
			mutate:  func(e *Entry) { e.Importance = math.NaN() },
			wantErr: ErrInvalidImportance,
		},
		{
			name:    "importance boundaries allowed",
			mutate:  func(e *Entry) { e.Importance = 1.0 },
			wantErr: nil,
		},
		{
			name:    "negative ttl",
			mutate:  func(e *Entry) { e.TTL = -time.Second },
			wantErr: ErrInvalidTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)

			err := e.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEntry_Clone(t *testing.T) {
	original := &Entry{
		Scope:      "session",
		Key:        "state",
		Value:      map[string]any{"step": float64(2), "tags": []any{"a", "b"}},
		TTL:        time.Minute,
		Importance: 0.7,
		InsertedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	clone := original.Clone()

	if clone == original {
		t.Fatal("Clone() returned the same pointer")
	}
	if clone.Scope != original.Scope || clone.Key != original.Key {
		t.Errorf("Clone() identity = (%s,%s), want (%s,%s)",
			clone.Scope, clone.Key, original.Scope, original.Key)
	}

	// Mutating the clone's value must not leak into the original.
	clone.Value.(map[string]any)["step"] = float64(99)
	if original.Value.(map[string]any)["step"] != float64(2) {
		t.Error("Clone() value shares state with the original")
	}
}

func TestSortEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Key: "old", InsertedAt: base.Add(-time.Hour), Importance: 0.9},
		{Key: "new-low", InsertedAt: base, Importance: 0.2},
		{Key: "new-high", InsertedAt: base, Importance: 0.8},
		{Key: "middle", InsertedAt: base.Add(-time.Minute), Importance: 0.5},
	}

	SortEntries(entries)

	want := []string{"new-high", "new-low", "middle", "old"}
	for i, k := range want {
		if entries[i].Key != k {
			t.Fatalf("SortEntries() order[%d] = %s, want %s", i, entries[i].Key, k)
		}
	}
}
