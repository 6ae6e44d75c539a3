// Package etcdstore implements the replicated memory backend on etcd.
//
// Each entry is one etcd key holding a JSON record, so every mutation is a
// single linearizable put or delete and any process sharing the cluster
// observes committed writes on its next read. Expiry stays the caller-facing
// lazy model rather than etcd leases: an expired entry must remain
// addressable until a read path sweeps it.
package etcdstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/corvid-ai/recall/memory"
)

// Options configures the etcd connection and key namespace.
type Options struct {
	// Endpoints lists the etcd cluster members (e.g., "localhost:2379").
	Endpoints []string

	// Namespace prefixes every key this store writes. Defaults to "recall".
	Namespace string

	// TLS configuration for secure connections
	TLS *tls.Config

	// DialTimeout is the maximum time to wait for connection establishment.
	// Defaults to 5 seconds.
	DialTimeout time.Duration
}

// Store implements memory.Backend on an etcd cluster.
//
// Keys follow /namespace/scope/key with both the scope and key path-escaped,
// so names containing the separator cannot collide with another pair.
//
// Example usage:
//
//	store, err := etcdstore.New(etcdstore.Options{
//	    Endpoints: []string{"localhost:2379"},
//	    Namespace: "recall",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Thread-safety: All methods are safe for concurrent use.
type Store struct {
	client    *clientv3.Client
	namespace string

	mu     sync.RWMutex
	closed bool
}

// New creates a Store from the provided options.
//
// This builds the etcd client but does not contact the cluster; Open
// performs the connectivity probe. The store must be closed using Close()
// when no longer needed to release the underlying connection.
//
// Parameters:
//   - opts: Options containing endpoints, namespace, and TLS settings
//
// Returns:
//   - *Store: A store ready for Open
//   - error: Configuration error if no endpoints were given or the client
//     could not be constructed
func New(opts Options) (*Store, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "recall"
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: dialTimeout,
	}
	if opts.TLS != nil {
		clientCfg.TLS = opts.TLS
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return &Store{
		client:    cli,
		namespace: namespace,
	}, nil
}

// Open verifies connectivity with a quick bounded read of the namespace
// root. An unreachable cluster is reported as memory.ErrUnavailable.
func (s *Store) Open(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := s.client.Get(probeCtx, s.keyPrefix()); err != nil {
		return fmt.Errorf("%w: %v", memory.ErrUnavailable, err)
	}
	return nil
}

// Store upserts the entry as a single linearizable put.
//
// Parameters:
//   - ctx: Context for the etcd operation
//   - entry: Entry to write; it replaces whatever was stored under the
//     same (scope, key)
//
// Returns:
//   - error: Write error if the cluster is unavailable or the value cannot
//     be encoded
func (s *Store) Store(ctx context.Context, entry memory.Entry) error {
	if err := s.usable(); err != nil {
		return err
	}

	data, err := json.Marshal(toRecord(entry))
	if err != nil {
		return fmt.Errorf("%w: %v", memory.ErrInvalidValue, err)
	}

	if _, err := s.client.Put(ctx, s.entryPath(entry.Scope, entry.Key), string(data)); err != nil {
		return wrapErr("store entry", err)
	}
	return nil
}

// Retrieve returns the entry under (scope, key).
//
// An expired entry is deleted from the cluster and reported as
// memory.ErrNotFound. A record that no longer decodes is reported as
// memory.ErrCorrupted rather than skipped, so storage damage is never
// mistaken for absence.
func (s *Store) Retrieve(ctx context.Context, scope, key string) (memory.Entry, error) {
	if err := s.usable(); err != nil {
		return memory.Entry{}, err
	}

	path := s.entryPath(scope, key)
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return memory.Entry{}, wrapErr("read entry", err)
	}
	if len(resp.Kvs) == 0 {
		return memory.Entry{}, memory.ErrNotFound
	}

	entry, err := decodeRecord(resp.Kvs[0].Value)
	if err != nil {
		return memory.Entry{}, err
	}

	if entry.IsExpired(time.Now()) {
		if _, err := s.client.Delete(ctx, path); err != nil {
			return memory.Entry{}, wrapErr("delete expired entry", err)
		}
		return memory.Entry{}, memory.ErrNotFound
	}

	return entry, nil
}

// Entries returns the scope's live entries sorted newest first, breaking
// insertion-time ties by importance. Expired entries found during the range
// read are deleted.
func (s *Store) Entries(ctx context.Context, scope string) ([]memory.Entry, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	entries, err := s.rangeEntries(ctx, s.scopePrefix(scope), time.Now())
	if err != nil {
		return nil, err
	}

	memory.SortEntries(entries)
	return entries, nil
}

// Delete removes the entry under (scope, key), expired or not.
//
// Returns:
//   - error: memory.ErrNotFound if no entry was stored there, or a write
//     error if the cluster is unavailable
func (s *Store) Delete(ctx context.Context, scope, key string) error {
	if err := s.usable(); err != nil {
		return err
	}

	resp, err := s.client.Delete(ctx, s.entryPath(scope, key))
	if err != nil {
		return wrapErr("delete entry", err)
	}
	if resp.Deleted == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Clear removes every entry in the scope with one ranged delete. Clearing a
// scope that holds nothing is not an error.
func (s *Store) Clear(ctx context.Context, scope string) error {
	if err := s.usable(); err != nil {
		return err
	}

	if _, err := s.client.Delete(ctx, s.scopePrefix(scope), clientv3.WithPrefix()); err != nil {
		return wrapErr("clear scope", err)
	}
	return nil
}

// Search folds over the whole namespace and returns live entries whose
// stringified value contains the query, case-insensitively. Non-string
// values are rendered as compact JSON before matching.
func (s *Store) Search(ctx context.Context, query string) ([]memory.Entry, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	entries, err := s.rangeEntries(ctx, s.keyPrefix(), time.Now())
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	out := entries[:0]
	for _, e := range entries {
		if strings.Contains(strings.ToLower(memory.Stringify(e.Value)), needle) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close releases the etcd connection. It is idempotent; operations after
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

// rangeEntries reads every record under the prefix, deleting expired ones
// as it goes. Decode failures abort the whole read.
func (s *Store) rangeEntries(ctx context.Context, prefix string, now time.Time) ([]memory.Entry, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, wrapErr("read entries", err)
	}

	entries := make([]memory.Entry, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		entry, err := decodeRecord(kv.Value)
		if err != nil {
			return nil, err
		}

		if entry.IsExpired(now) {
			if _, err := s.client.Delete(ctx, string(kv.Key)); err != nil {
				return nil, wrapErr("delete expired entry", err)
			}
			continue
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) keyPrefix() string {
	return "/" + s.namespace + "/"
}

func (s *Store) scopePrefix(scope string) string {
	return s.keyPrefix() + url.PathEscape(scope) + "/"
}

func (s *Store) entryPath(scope, key string) string {
	return s.scopePrefix(scope) + url.PathEscape(key)
}

// wrapErr classifies transport failures as memory.ErrUnavailable and wraps
// everything else verbatim.
func wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", memory.ErrUnavailable, op, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s: %v", memory.ErrUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// record is the stored JSON layout: the value plus bookkeeping metadata.
type record struct {
	Scope    string   `json:"scope"`
	Key      string   `json:"key"`
	Value    any      `json:"value"`
	Metadata metadata `json:"metadata"`
}

type metadata struct {
	TTLMillis  int64     `json:"ttl_ms"`
	Importance float64   `json:"importance"`
	InsertedAt time.Time `json:"inserted_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toRecord(e memory.Entry) record {
	return record{
		Scope: e.Scope,
		Key:   e.Key,
		Value: e.Value,
		Metadata: metadata{
			TTLMillis:  e.TTL.Milliseconds(),
			Importance: e.Importance,
			InsertedAt: e.InsertedAt.UTC(),
			UpdatedAt:  e.UpdatedAt.UTC(),
		},
	}
}

func decodeRecord(data []byte) (memory.Entry, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return memory.Entry{}, fmt.Errorf("%w: %v", memory.ErrCorrupted, err)
	}
	return memory.Entry{
		Scope:      r.Scope,
		Key:        r.Key,
		Value:      r.Value,
		TTL:        time.Duration(r.Metadata.TTLMillis) * time.Millisecond,
		Importance: r.Metadata.Importance,
		InsertedAt: r.Metadata.InsertedAt,
		UpdatedAt:  r.Metadata.UpdatedAt,
	}, nil
}
