package recall

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/corvid-ai/recall/memory"
)

// Option configures a Memory instance.
type Option func(*memoryConfig)

// memoryConfig holds configuration for the Memory instance.
type memoryConfig struct {
	configPath    string
	logger        *slog.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	backend       memory.Backend
	snapshotPath  string
	flushInterval time.Duration
}

// WithConfig sets the configuration file path for the store.
// The config file selects the backend and carries its connection settings.
func WithConfig(path string) Option {
	return func(c *memoryConfig) {
		c.configPath = path
	}
}

// WithLogger sets a custom logger for the store.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *memoryConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for distributed tracing.
// Each store operation becomes one span carrying the scope it touched.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *memoryConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for operation metrics.
// If not provided, the global meter provider is used.
func WithMeter(meter metric.Meter) Option {
	return func(c *memoryConfig) {
		c.meter = meter
	}
}

// WithBackend installs a pre-built backend, bypassing configuration-based
// backend selection entirely. The Memory takes ownership and closes it.
func WithBackend(backend memory.Backend) Option {
	return func(c *memoryConfig) {
		c.backend = backend
	}
}

// WithSnapshotPath overrides the snapshot file location used when the
// default file backend is selected.
func WithSnapshotPath(path string) Option {
	return func(c *memoryConfig) {
		c.snapshotPath = path
	}
}

// WithFlushInterval overrides how often the default file backend persists
// dirty state.
func WithFlushInterval(interval time.Duration) Option {
	return func(c *memoryConfig) {
		c.flushInterval = interval
	}
}

// StoreOption configures a single Store call.
type StoreOption func(*storeConfig)

// storeConfig holds per-entry settings for a Store call.
type storeConfig struct {
	ttl        time.Duration
	importance float64
}

// WithTTL sets the entry's time-to-live, measured from this write.
// Zero means the entry never expires; storing over an existing entry
// restarts its clock.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithImportance sets the entry's importance weight in [0, 1].
// If not provided, entries default to 0.5.
func WithImportance(importance float64) StoreOption {
	return func(c *storeConfig) {
		c.importance = importance
	}
}

// SearchOption configures a Search call.
type SearchOption func(*searchConfig)

// searchConfig holds settings for a search.
type searchConfig struct {
	threshold  float64
	limit      int
	filterExpr string
}

// WithThreshold drops results scoring below the given minimum.
// The default threshold of zero keeps every candidate the backend matched.
func WithThreshold(threshold float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = threshold
	}
}

// WithLimit caps the number of results returned, keeping the best-scoring
// ones. Zero or negative means no cap.
func WithLimit(limit int) SearchOption {
	return func(c *searchConfig) {
		c.limit = limit
	}
}

// WithFilter applies a CEL expression to each candidate before scoring
// cutoffs. The expression sees scope, key, importance, score, age_ms, and
// ttl_ms.
//
// Example:
//
//	WithFilter(`importance >= 0.7 && age_ms < 60000`)
func WithFilter(expr string) SearchOption {
	return func(c *searchConfig) {
		c.filterExpr = expr
	}
}
