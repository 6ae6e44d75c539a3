// Package redistore implements the replicated memory backend on Redis.
//
// Every mutation commits synchronously before returning, so any process
// sharing the same Redis deployment observes it on its next read. Entries
// live in one hash per (scope, key) pair; two sets index the known scopes
// and the keys within each scope. Expiry is enforced by the read paths, not
// by Redis key TTLs, because an expired entry must stay addressable for
// explicit deletion semantics until a read sweeps it.
package redistore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corvid-ai/recall/memory"
)

// Options configures the Redis connection and key layout.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// KeyPrefix namespaces every key this store writes. Defaults to "recall".
	KeyPrefix string

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// Store is a memory.Backend backed by Redis.
type Store struct {
	client         *redis.Client
	prefix         string
	connectTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// New creates a Store from the given options. The connection is not probed
// until Open.
func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "recall"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	return &Store{
		client:         redis.NewClient(redisOpts),
		prefix:         opts.KeyPrefix,
		connectTimeout: opts.ConnectTimeout,
	}, nil
}

// Open verifies the connection with a bounded ping.
func (s *Store) Open(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("%w: %v", memory.ErrUnavailable, err)
	}
	return nil
}

// Store upserts the entry, replacing any hash already stored under the same
// (scope, key) and committing before it returns.
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if err := s.usable(); err != nil {
		return err
	}

	value, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", memory.ErrInvalidValue, err)
	}

	fields := map[string]string{
		"scope":       entry.Scope,
		"key":         entry.Key,
		"value":       string(value),
		"ttl_ms":      strconv.FormatInt(entry.TTL.Milliseconds(), 10),
		"importance":  strconv.FormatFloat(entry.Importance, 'g', -1, 64),
		"inserted_at": entry.InsertedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	// Build flat field-value pairs for HSET - all values must be strings
	// for go-redis.
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	entryKey := s.entryKey(entry.Scope, entry.Key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Delete first so the upsert replaces the hash instead of merging
		// into leftover fields.
		pipe.Del(ctx, entryKey)
		pipe.HSet(ctx, entryKey, args...)
		pipe.SAdd(ctx, s.scopeKey(entry.Scope), entry.Key)
		pipe.SAdd(ctx, s.scopesKey(), entry.Scope)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

// Retrieve returns the entry under (scope, key). An expired entry is
// removed from Redis and reported as memory.ErrNotFound.
func (s *Store) Retrieve(ctx context.Context, scope, key string) (memory.Entry, error) {
	if err := s.usable(); err != nil {
		return memory.Entry{}, err
	}

	fields, err := s.client.HGetAll(ctx, s.entryKey(scope, key)).Result()
	if err != nil {
		return memory.Entry{}, fmt.Errorf("failed to read entry: %w", err)
	}
	if len(fields) == 0 {
		return memory.Entry{}, memory.ErrNotFound
	}

	entry, err := entryFromFields(fields)
	if err != nil {
		return memory.Entry{}, fmt.Errorf("%w: %v", memory.ErrCorrupted, err)
	}

	if entry.IsExpired(time.Now()) {
		if _, err := s.remove(ctx, scope, key); err != nil {
			return memory.Entry{}, err
		}
		return memory.Entry{}, memory.ErrNotFound
	}

	return entry, nil
}

// Entries returns the scope's live entries sorted newest first. Expired
// entries encountered during the listing are removed.
func (s *Store) Entries(ctx context.Context, scope string) ([]memory.Entry, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	entries, err := s.liveEntries(ctx, scope, time.Now())
	if err != nil {
		return nil, err
	}

	memory.SortEntries(entries)
	return entries, nil
}

// Delete removes the entry under (scope, key), expired or not.
func (s *Store) Delete(ctx context.Context, scope, key string) error {
	if err := s.usable(); err != nil {
		return err
	}

	removed, err := s.remove(ctx, scope, key)
	if err != nil {
		return err
	}
	if !removed {
		return memory.ErrNotFound
	}
	return nil
}

// Clear removes every entry in the scope along with its key index.
func (s *Store) Clear(ctx context.Context, scope string) error {
	if err := s.usable(); err != nil {
		return err
	}

	keys, err := s.client.SMembers(ctx, s.scopeKey(scope)).Result()
	if err != nil {
		return fmt.Errorf("failed to list scope keys: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, s.entryKey(scope, key))
		}
		pipe.Del(ctx, s.scopeKey(scope))
		pipe.SRem(ctx, s.scopesKey(), scope)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear scope: %w", err)
	}
	return nil
}

// Search folds over every scope and returns live entries whose stringified
// value contains the query, case-insensitively. Non-string values are
// rendered as compact JSON before matching, so structured values are
// searchable here.
func (s *Store) Search(ctx context.Context, query string) ([]memory.Entry, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	scopes, err := s.client.SMembers(ctx, s.scopesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}

	needle := strings.ToLower(query)
	now := time.Now()

	var out []memory.Entry
	for _, scope := range scopes {
		entries, err := s.liveEntries(ctx, scope, now)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if strings.Contains(strings.ToLower(memory.Stringify(e.Value)), needle) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// Close closes the Redis connection. It is idempotent; operations after
// Close return memory.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *Store) usable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return memory.ErrClosed
	}
	return nil
}

// liveEntries reads every entry indexed under the scope, removing the
// expired ones as it goes. Read and decode failures are returned, never
// folded into a shorter result.
func (s *Store) liveEntries(ctx context.Context, scope string, now time.Time) ([]memory.Entry, error) {
	keys, err := s.client.SMembers(ctx, s.scopeKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scope keys: %w", err)
	}

	entries := make([]memory.Entry, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, s.entryKey(scope, key)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry: %w", err)
		}
		if len(fields) == 0 {
			// Index member without a hash: a concurrent delete won the
			// race. Treat it as already gone.
			continue
		}

		entry, err := entryFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", memory.ErrCorrupted, err)
		}

		if entry.IsExpired(now) {
			if _, err := s.remove(ctx, scope, key); err != nil {
				return nil, err
			}
			continue
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// remove deletes the entry hash and its index memberships. It reports
// whether the hash existed.
func (s *Store) remove(ctx context.Context, scope, key string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.entryKey(scope, key))
		pipe.SRem(ctx, s.scopeKey(scope), key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}

	// Scope index cleanup is best effort; a stale member only costs an
	// extra SMEMBERS on later searches.
	if n, err := s.client.SCard(ctx, s.scopeKey(scope)).Result(); err == nil && n == 0 {
		s.client.SRem(ctx, s.scopesKey(), scope)
	}

	return del.Val() > 0, nil
}

func (s *Store) scopesKey() string {
	return s.prefix + ":scopes"
}

func (s *Store) scopeKey(scope string) string {
	return s.prefix + ":scope:" + url.QueryEscape(scope)
}

// entryKey escapes both components so scopes or keys containing the
// separator cannot alias another pair's hash.
func (s *Store) entryKey(scope, key string) string {
	return s.prefix + ":entry:" + url.QueryEscape(scope) + ":" + url.QueryEscape(key)
}

func entryFromFields(fields map[string]string) (memory.Entry, error) {
	raw, ok := fields["value"]
	if !ok {
		return memory.Entry{}, errors.New("missing value field")
	}

	var e memory.Entry
	e.Scope = fields["scope"]
	e.Key = fields["key"]

	if err := json.Unmarshal([]byte(raw), &e.Value); err != nil {
		return memory.Entry{}, fmt.Errorf("invalid value encoding: %w", err)
	}

	ttlMillis, err := strconv.ParseInt(fields["ttl_ms"], 10, 64)
	if err != nil {
		return memory.Entry{}, fmt.Errorf("invalid ttl_ms: %w", err)
	}
	e.TTL = time.Duration(ttlMillis) * time.Millisecond

	e.Importance, err = strconv.ParseFloat(fields["importance"], 64)
	if err != nil {
		return memory.Entry{}, fmt.Errorf("invalid importance: %w", err)
	}

	e.InsertedAt, err = time.Parse(time.RFC3339Nano, fields["inserted_at"])
	if err != nil {
		return memory.Entry{}, fmt.Errorf("invalid inserted_at: %w", err)
	}

	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return memory.Entry{}, fmt.Errorf("invalid updated_at: %w", err)
	}

	return e, nil
}
