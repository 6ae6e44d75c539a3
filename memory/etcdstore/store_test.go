package etcdstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/corvid-ai/recall/memory"
)

func TestNew_RequiresEndpoints(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoints")
}

// TestWrapErr_Classification pins which transport failures read as the
// cluster being unreachable.
func TestWrapErr_Classification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{
			name:        "grpc unavailable",
			err:         status.Error(codes.Unavailable, "connection refused"),
			unavailable: true,
		},
		{
			name:        "grpc deadline exceeded",
			err:         status.Error(codes.DeadlineExceeded, "request timed out"),
			unavailable: true,
		},
		{
			name:        "plain context deadline",
			err:         context.DeadlineExceeded,
			unavailable: true,
		},
		{
			name: "server rejection wraps verbatim",
			err:  errors.New("etcdserver: permission denied"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapErr("read entry", tt.err)
			require.Error(t, got)
			assert.Contains(t, got.Error(), "read entry")

			if tt.unavailable {
				assert.ErrorIs(t, got, memory.ErrUnavailable)
				return
			}
			assert.NotErrorIs(t, got, memory.ErrUnavailable)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

// TestKeyEscaping guards the /namespace/scope/key layout: names carrying the
// separator must not collide with another (scope, key) pair or land inside a
// sibling scope's prefix range.
func TestKeyEscaping(t *testing.T) {
	s := &Store{namespace: "recall"}

	assert.NotEqual(t, s.entryPath("a/b", "c"), s.entryPath("a", "b/c"))

	assert.True(t, strings.HasPrefix(s.entryPath("session-1", "goal"), s.scopePrefix("session-1")))
	assert.False(t, strings.HasPrefix(s.entryPath("session-10", "goal"), s.scopePrefix("session-1")))
	assert.False(t, strings.HasPrefix(s.entryPath("session-1/x", "goal"), s.scopePrefix("session-1")))
}

func TestDecodeRecord_Corrupted(t *testing.T) {
	_, err := decodeRecord([]byte("{not json"))
	require.ErrorIs(t, err, memory.ErrCorrupted)
}

// TestRecordRoundTrip pins the stored JSON layout: the value plus a metadata
// block carrying ttl_ms, importance and both timestamps.
func TestRecordRoundTrip(t *testing.T) {
	want := memory.Entry{
		Scope:      "session-1",
		Key:        "prefs",
		Value:      map[string]any{"theme": "dark", "retries": float64(3)},
		TTL:        30 * time.Minute,
		Importance: 0.8,
		InsertedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
	}

	data, err := json.Marshal(toRecord(want))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metadata"`)
	assert.Contains(t, string(data), `"ttl_ms":1800000`)

	got, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, want.Scope, got.Scope)
	assert.Equal(t, want.Key, got.Key)
	assert.Equal(t, want.Value, got.Value)
	assert.Equal(t, want.TTL, got.TTL)
	assert.Equal(t, want.Importance, got.Importance)
	assert.True(t, got.InsertedAt.Equal(want.InsertedAt))
	assert.True(t, got.UpdatedAt.Equal(want.UpdatedAt))
}
