package recall

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/corvid-ai/recall/filter"
	"github.com/corvid-ai/recall/memory"
	"github.com/corvid-ai/recall/memory/etcdstore"
	"github.com/corvid-ai/recall/memory/filestore"
	"github.com/corvid-ai/recall/memory/redistore"
	"github.com/corvid-ai/recall/relevance"
)

// instrumentationName identifies this module to OpenTelemetry providers.
const instrumentationName = "github.com/corvid-ai/recall"

// Memory is the working-memory store. It validates input, applies entry
// defaults, routes operations to the configured backend, and ranks search
// results.
//
// All methods are safe for concurrent use. Mutations (Store, Delete, Clear)
// are serialized against each other; reads share the store and may proceed
// concurrently.
type Memory struct {
	backend     memory.Backend
	logger      *slog.Logger
	tracer      trace.Tracer
	instruments *otelInstruments

	mu     sync.RWMutex
	closed bool
}

// SearchResult pairs an entry with its relevance score in [0, 1].
type SearchResult struct {
	memory.Entry

	// Score is the token-overlap similarity between the query and the
	// entry's stringified value.
	Score float64
}

// Open builds a Memory from the given options and verifies its backend is
// reachable before returning.
//
// With no options the store uses the local file backend with its default
// snapshot path. WithConfig selects and configures a backend from a YAML
// file; WithBackend installs one directly and wins over configuration.
//
// The returned Memory owns its backend and releases it on Close.
func Open(ctx context.Context, opts ...Option) (*Memory, error) {
	cfg := &memoryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("store_id", uuid.NewString()[:8]))

	tracer := cfg.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	instruments, err := newOTelInstruments(meter)
	if err != nil {
		return nil, NewInternalError("Memory.Open", err)
	}

	backend, name, err := buildBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := backend.Open(ctx); err != nil {
		CloseWithLog(backend, logger, "memory backend")
		return nil, wrapOpError("Memory.Open", err)
	}

	m := &Memory{
		backend:     backend,
		logger:      logger,
		tracer:      tracer,
		instruments: instruments,
	}

	m.logger.Info("memory store opened", slog.String("backend", name))
	return m, nil
}

// buildBackend resolves the backend from options and configuration.
func buildBackend(cfg *memoryConfig, logger *slog.Logger) (memory.Backend, string, error) {
	if cfg.backend != nil {
		return cfg.backend, "custom", nil
	}

	conf := &Config{}
	if cfg.configPath != "" {
		loaded, err := LoadConfig(cfg.configPath)
		if err != nil {
			return nil, "", NewConfigurationError("Memory.Open", err)
		}
		conf = loaded
	}

	if err := conf.Validate(); err != nil {
		return nil, "", NewConfigurationError("Memory.Open", err)
	}

	switch conf.GetBackend() {
	case BackendFile:
		path := conf.File.GetPath()
		if cfg.snapshotPath != "" {
			path = cfg.snapshotPath
		}
		interval := conf.File.GetFlushInterval()
		if cfg.flushInterval > 0 {
			interval = cfg.flushInterval
		}
		store := filestore.New(filestore.Options{
			Path:          path,
			FlushInterval: interval,
			Logger:        logger,
		})
		return store, BackendFile, nil

	case BackendEtcd:
		store, err := etcdstore.New(etcdstore.Options{
			Endpoints:   conf.Etcd.Endpoints,
			Namespace:   conf.Etcd.Namespace,
			DialTimeout: conf.Etcd.GetDialTimeout(),
		})
		if err != nil {
			return nil, "", NewConfigurationError("Memory.Open", err)
		}
		return store, BackendEtcd, nil

	default:
		var redisConf RedisConfig
		if conf.Redis != nil {
			redisConf = *conf.Redis
		}
		store, err := redistore.New(redistore.Options{
			URL:       redisConf.URL,
			KeyPrefix: redisConf.KeyPrefix,
		})
		if err != nil {
			return nil, "", NewConfigurationError("Memory.Open", err)
		}
		return store, BackendRedis, nil
	}
}

// Store writes value under (scope, key). Storing to a key that already
// holds an entry replaces it wholesale and restarts its TTL clock.
//
// Values must be JSON-encodable; they are normalized so that what later
// reads return is exactly what a restart or another replica would see.
func (m *Memory) Store(ctx context.Context, scope, key string, value any, opts ...StoreOption) error {
	cfg := storeConfig{
		ttl:        memory.NoExpiry,
		importance: memory.DefaultImportance,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span, start := m.startOp(ctx, "recall.store", scope)
	err := m.store(ctx, scope, key, value, cfg)
	m.endOp(ctx, "store", span, start, err)
	return err
}

func (m *Memory) store(ctx context.Context, scope, key string, value any, cfg storeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("Memory.Store", memory.ErrClosed)
	}

	normalized, err := memory.NormalizeValue(value)
	if err != nil {
		return wrapOpError("Memory.Store", err)
	}

	now := time.Now()
	entry := memory.Entry{
		Scope:      scope,
		Key:        key,
		Value:      normalized,
		TTL:        cfg.ttl,
		Importance: cfg.importance,
		InsertedAt: now,
		UpdatedAt:  now,
	}
	if err := entry.Validate(); err != nil {
		return wrapOpError("Memory.Store", err)
	}

	if err := m.backend.Store(ctx, entry); err != nil {
		return wrapOpError("Memory.Store", err)
	}

	m.logger.Debug("entry stored",
		slog.String("scope", scope),
		slog.String("key", key))
	return nil
}

// Retrieve returns the value stored under (scope, key). Entries past their
// TTL are deleted on the way and reported as not found.
func (m *Memory) Retrieve(ctx context.Context, scope, key string) (any, error) {
	ctx, span, start := m.startOp(ctx, "recall.retrieve", scope)
	entry, err := m.retrieve(ctx, scope, key)
	m.endOp(ctx, "retrieve", span, start, err)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (m *Memory) retrieve(ctx context.Context, scope, key string) (memory.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return memory.Entry{}, NewStorageError("Memory.Retrieve", memory.ErrClosed)
	}
	if scope == "" {
		return memory.Entry{}, NewValidationError("Memory.Retrieve", memory.ErrInvalidScope)
	}
	if key == "" {
		return memory.Entry{}, NewValidationError("Memory.Retrieve", memory.ErrInvalidKey)
	}

	entry, err := m.backend.Retrieve(ctx, scope, key)
	if err != nil {
		return memory.Entry{}, withErrContext(wrapOpError("Memory.Retrieve", err), map[string]any{
			"scope": scope,
			"key":   key,
		})
	}
	return entry, nil
}

// Entries returns every live entry in the scope, newest first; entries
// inserted at the same instant order by importance. Expired entries are
// deleted as a side effect and never appear in the result.
func (m *Memory) Entries(ctx context.Context, scope string) ([]memory.Entry, error) {
	ctx, span, start := m.startOp(ctx, "recall.entries", scope)
	entries, err := m.entries(ctx, scope)
	m.endOp(ctx, "entries", span, start, err)
	return entries, err
}

func (m *Memory) entries(ctx context.Context, scope string) ([]memory.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewStorageError("Memory.Entries", memory.ErrClosed)
	}
	if scope == "" {
		return nil, NewValidationError("Memory.Entries", memory.ErrInvalidScope)
	}

	entries, err := m.backend.Entries(ctx, scope)
	if err != nil {
		return nil, wrapOpError("Memory.Entries", err)
	}
	return entries, nil
}

// Delete removes the entry under (scope, key). An entry that has expired
// but not yet been swept still deletes successfully.
func (m *Memory) Delete(ctx context.Context, scope, key string) error {
	ctx, span, start := m.startOp(ctx, "recall.delete", scope)
	err := m.delete(ctx, scope, key)
	m.endOp(ctx, "delete", span, start, err)
	return err
}

func (m *Memory) delete(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("Memory.Delete", memory.ErrClosed)
	}
	if scope == "" {
		return NewValidationError("Memory.Delete", memory.ErrInvalidScope)
	}
	if key == "" {
		return NewValidationError("Memory.Delete", memory.ErrInvalidKey)
	}

	if err := m.backend.Delete(ctx, scope, key); err != nil {
		return withErrContext(wrapOpError("Memory.Delete", err), map[string]any{
			"scope": scope,
			"key":   key,
		})
	}

	m.logger.Debug("entry deleted",
		slog.String("scope", scope),
		slog.String("key", key))
	return nil
}

// Clear removes every entry in the scope. Clearing a scope that holds
// nothing succeeds.
func (m *Memory) Clear(ctx context.Context, scope string) error {
	ctx, span, start := m.startOp(ctx, "recall.clear", scope)
	err := m.clear(ctx, scope)
	m.endOp(ctx, "clear", span, start, err)
	return err
}

func (m *Memory) clear(ctx context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("Memory.Clear", memory.ErrClosed)
	}
	if scope == "" {
		return NewValidationError("Memory.Clear", memory.ErrInvalidScope)
	}

	if err := m.backend.Clear(ctx, scope); err != nil {
		return wrapOpError("Memory.Clear", err)
	}

	m.logger.Debug("scope cleared", slog.String("scope", scope))
	return nil
}

// Search matches the query against stored values across every scope and
// returns scored results, best first.
//
// The backend supplies candidate entries; each candidate is scored by token
// overlap between the query and its stringified value, run through the
// optional CEL filter, cut at the threshold, then sorted by score with
// newer and more important entries breaking ties. WithLimit caps the
// result.
func (m *Memory) Search(ctx context.Context, query string, opts ...SearchOption) ([]SearchResult, error) {
	cfg := searchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span, start := m.startOp(ctx, "recall.search", "")
	results, err := m.search(ctx, query, cfg)
	m.endOp(ctx, "search", span, start, err)
	if err != nil {
		return nil, err
	}

	m.recordSearchResults(ctx, len(results))
	return results, nil
}

func (m *Memory) search(ctx context.Context, query string, cfg searchConfig) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewStorageError("Memory.Search", memory.ErrClosed)
	}
	if strings.TrimSpace(query) == "" {
		return nil, NewValidationError("Memory.Search", ErrEmptyQuery)
	}

	var pred *filter.Filter
	if cfg.filterExpr != "" {
		compiled, err := filter.Compile(cfg.filterExpr)
		if err != nil {
			return nil, NewValidationError("Memory.Search", err)
		}
		pred = compiled
	}

	candidates, err := m.backend.Search(ctx, query)
	if err != nil {
		return nil, wrapOpError("Memory.Search", err)
	}

	queryTokens := relevance.Tokenize(query)
	now := time.Now()

	results := make([]SearchResult, 0, len(candidates))
	for _, e := range candidates {
		score := relevance.Jaccard(queryTokens, relevance.Tokenize(memory.Stringify(e.Value)))

		if pred != nil {
			keep, err := pred.Eval(filter.Candidate{
				Scope:      e.Scope,
				Key:        e.Key,
				Importance: e.Importance,
				Score:      score,
				AgeMillis:  now.Sub(e.InsertedAt).Milliseconds(),
				TTLMillis:  e.TTL.Milliseconds(),
			})
			if err != nil {
				return nil, NewValidationError("Memory.Search", err)
			}
			if !keep {
				continue
			}
		}

		if score < cfg.threshold {
			continue
		}

		results = append(results, SearchResult{Entry: e, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].InsertedAt.Equal(results[j].InsertedAt) {
			return results[i].InsertedAt.After(results[j].InsertedAt)
		}
		return results[i].Importance > results[j].Importance
	})

	if cfg.limit > 0 && len(results) > cfg.limit {
		results = results[:cfg.limit]
	}
	return results, nil
}

// Close releases the backend. It is idempotent; operations after Close
// report the store as closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.backend.Close(); err != nil {
		return NewStorageError("Memory.Close", err)
	}

	m.logger.Info("memory store closed")
	return nil
}

// withErrContext attaches debugging context to a structured error, leaving
// other error types untouched.
func withErrContext(err error, kv map[string]any) error {
	var e *Error
	if errors.As(err, &e) {
		return e.WithContext(kv)
	}
	return err
}
