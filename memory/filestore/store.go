// Package filestore implements the local durable memory backend: a
// single-node table persisted to one JSON snapshot file that survives
// process restarts.
//
// Writes land in memory immediately; a background flusher persists dirty
// state on a fixed interval, so the durability horizon of the latest writes
// is bounded by that interval until Close performs the final flush.
// Snapshot writes are atomic (temp file plus rename). A snapshot that fails
// to decode during Open is treated as corrupt: the file is deleted and the
// open retried, bounded at three attempts before the failure becomes
// permanent.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/corvid-ai/recall/memory"
)

// DefaultFlushInterval bounds how long an in-memory write can stay
// unpersisted.
const DefaultFlushInterval = 60 * time.Second

// openAttempts bounds the delete-and-retry repair loop during Open.
const openAttempts = 3

// snapshotVersion guards the on-disk schema. A snapshot with any other
// version is a corruption signal.
const snapshotVersion = 1

var errNotOpen = errors.New("filestore: store not opened")

// Options configures a Store.
type Options struct {
	// Path is the snapshot file location. Required.
	Path string

	// FlushInterval overrides the periodic persistence interval.
	// Defaults to DefaultFlushInterval.
	FlushInterval time.Duration

	// Logger receives repair and flush diagnostics.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

type entryKey struct {
	scope string
	key   string
}

// Store is a memory.Backend over a JSON snapshot file. The in-memory table
// is the source of truth between flushes; read paths delete expired entries
// they encounter and therefore take the write lock.
type Store struct {
	path     string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[entryKey]*memory.Entry
	dirty   bool
	opened  bool
	closed  bool

	// flushMu serializes snapshot writers so a slow flush cannot clobber
	// the file with state older than a later flush already wrote.
	flushMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Store. Open must be called before any other operation.
func New(opts Options) *Store {
	interval := opts.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:     opts.Path,
		interval: interval,
		logger:   logger,
		entries:  make(map[entryKey]*memory.Entry),
		done:     make(chan struct{}),
	}
}

// Open loads the snapshot, repairing a corrupt file by deleting it and
// retrying up to the attempt bound, then starts the periodic flusher.
// A missing or empty snapshot starts the store empty. Exhausting the repair
// attempts, or any plain I/O failure, is returned to the caller and leaves
// the store unusable.
func (s *Store) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return memory.ErrClosed
	}
	if s.opened {
		return nil
	}
	if s.path == "" {
		return errors.New("filestore: path is required")
	}

	entries, err := s.load()
	if err != nil {
		return err
	}

	s.entries = entries
	s.opened = true

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Debug("snapshot loaded",
		slog.String("path", s.path),
		slog.Int("entries", len(entries)))

	return nil
}

func (s *Store) load() (map[entryKey]*memory.Entry, error) {
	for attempt := 1; attempt <= openAttempts; attempt++ {
		data, err := os.ReadFile(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				return make(map[entryKey]*memory.Entry), nil
			}
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}

		if len(data) == 0 {
			return make(map[entryKey]*memory.Entry), nil
		}

		entries, err := decodeSnapshot(data)
		if err == nil {
			return entries, nil
		}

		s.logger.Warn("snapshot corrupt, deleting and retrying",
			slog.String("path", s.path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to remove corrupt snapshot: %w", rmErr)
		}
	}

	return nil, fmt.Errorf("%w: snapshot unreadable after %d attempts",
		memory.ErrCorrupted, openAttempts)
}

// Store upserts the entry. The write is visible immediately; durability
// follows at the next flush.
func (s *Store) Store(_ context.Context, entry memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}

	e := entry
	s.entries[entryKey{entry.Scope, entry.Key}] = &e
	s.dirty = true
	return nil
}

// Retrieve returns the entry under (scope, key). An expired entry is
// deleted and reported as memory.ErrNotFound.
func (s *Store) Retrieve(_ context.Context, scope, key string) (memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return memory.Entry{}, err
	}

	k := entryKey{scope, key}
	e, ok := s.entries[k]
	if !ok {
		return memory.Entry{}, memory.ErrNotFound
	}

	if e.IsExpired(time.Now()) {
		delete(s.entries, k)
		s.dirty = true
		return memory.Entry{}, memory.ErrNotFound
	}

	return *e.Clone(), nil
}

// Entries returns the scope's live entries sorted newest first, breaking
// insertion-time ties by importance. Expired entries found during the scan
// are deleted.
func (s *Store) Entries(_ context.Context, scope string) ([]memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}

	now := time.Now()
	var out []memory.Entry
	for k, e := range s.entries {
		if k.scope != scope {
			continue
		}
		if e.IsExpired(now) {
			delete(s.entries, k)
			s.dirty = true
			continue
		}
		out = append(out, *e.Clone())
	}

	memory.SortEntries(out)
	return out, nil
}

// Delete removes the entry under (scope, key), expired or not.
func (s *Store) Delete(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}

	k := entryKey{scope, key}
	if _, ok := s.entries[k]; !ok {
		return memory.ErrNotFound
	}

	delete(s.entries, k)
	s.dirty = true
	return nil
}

// Clear removes every entry in the scope.
func (s *Store) Clear(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}

	for k := range s.entries {
		if k.scope == scope {
			delete(s.entries, k)
			s.dirty = true
		}
	}
	return nil
}

// Search folds over the whole table and returns live entries whose textual
// value contains the query, case-insensitively. Values that are not strings
// never match locally. Expired entries are purged inline.
func (s *Store) Search(_ context.Context, query string) ([]memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	now := time.Now()

	var out []memory.Entry
	for k, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, k)
			s.dirty = true
			continue
		}

		text, ok := e.Value.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(text), needle) {
			out = append(out, *e.Clone())
		}
	}

	return out, nil
}

// Flush compacts expired entries and persists the table if anything changed
// since the last snapshot. The periodic flusher calls this on every tick;
// it is also safe to call directly.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil
	}

	s.compactLocked(time.Now())
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}

	records := make([]record, 0, len(s.entries))
	for _, e := range s.entries {
		records = append(records, toRecord(e))
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.writeSnapshot(records); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}

	return nil
}

// Close stops the flusher, persists outstanding changes once more and
// releases the store. It is idempotent; operations after Close return
// memory.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasOpen := s.opened
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()

	if !wasOpen {
		return nil
	}
	if err := s.Flush(); err != nil {
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	return nil
}

func (s *Store) usableLocked() error {
	if s.closed {
		return memory.ErrClosed
	}
	if !s.opened {
		return errNotOpen
	}
	return nil
}

func (s *Store) compactLocked(now time.Time) {
	for k, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, k)
			s.dirty = true
		}
	}
}

func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("periodic flush failed",
					slog.String("path", s.path),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Store) writeSnapshot(records []record) error {
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Entries: records,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".recall-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// snapshot is the on-disk layout: a version header and the full table.
type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Entries []record  `json:"entries"`
}

type record struct {
	Scope      string    `json:"scope"`
	Key        string    `json:"key"`
	Value      any       `json:"value"`
	TTLMillis  int64     `json:"ttl_ms"`
	Importance float64   `json:"importance"`
	InsertedAt time.Time `json:"inserted_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toRecord(e *memory.Entry) record {
	return record{
		Scope:      e.Scope,
		Key:        e.Key,
		Value:      e.Value,
		TTLMillis:  e.TTL.Milliseconds(),
		Importance: e.Importance,
		InsertedAt: e.InsertedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func (r record) toEntry() memory.Entry {
	return memory.Entry{
		Scope:      r.Scope,
		Key:        r.Key,
		Value:      r.Value,
		TTL:        time.Duration(r.TTLMillis) * time.Millisecond,
		Importance: r.Importance,
		InsertedAt: r.InsertedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func decodeSnapshot(data []byte) (map[entryKey]*memory.Entry, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrCorrupted, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d",
			memory.ErrCorrupted, snap.Version)
	}

	entries := make(map[entryKey]*memory.Entry, len(snap.Entries))
	for _, r := range snap.Entries {
		e := r.toEntry()
		entries[entryKey{e.Scope, e.Key}] = &e
	}
	return entries, nil
}
