// Package recall provides scope-partitioned working memory for agent
// pipelines and long-running assistants.
//
// A recall store holds keyed facts ("the user prefers dark mode", "the
// current task is X") grouped into scopes, typically one scope per session
// or conversation. Each entry carries an optional time-to-live and an
// importance weight; reads surface the freshest, most important facts first
// and silently shed anything whose TTL has lapsed.
//
// # Core Concepts
//
// The store is organized around a few key concepts:
//
//   - Entries: keyed values with TTL, importance, and timestamps
//   - Scopes: independent namespaces; one (scope, key) pair names one entry
//   - Backends: interchangeable storage engines behind one contract
//   - Search: store-wide matching with token-overlap scoring and filters
//
// # Getting Started
//
// Open a store and write some facts:
//
//	import "github.com/corvid-ai/recall"
//
//	mem, err := recall.Open(ctx, recall.WithSnapshotPath("recall.json"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer mem.Close()
//
//	err = mem.Store(ctx, "session-1", "preferred_theme", "dark",
//		recall.WithTTL(30*time.Minute),
//		recall.WithImportance(0.8))
//
// # Backends
//
// Three backends ship with the module:
//
//   - memory/filestore: single-node, persisted to a JSON snapshot file
//   - memory/etcdstore: replicated via an etcd cluster
//   - memory/redistore: replicated via Redis
//
// The default is the file backend. Select another through a recall.yaml
// configuration file (WithConfig) or install any memory.Backend directly
// (WithBackend). Expiry behaves identically everywhere: entries past their
// TTL are deleted by the next read that touches them.
//
// # Searching
//
// Search matches the query against stored values across every scope,
// scores candidates by token overlap, and returns the best first:
//
//	results, err := mem.Search(ctx, "dark mode",
//		recall.WithThreshold(0.2),
//		recall.WithLimit(5),
//		recall.WithFilter(`importance >= 0.5`))
//
// Filters are CEL expressions evaluated per candidate. The relevance
// package exposes the underlying scoring primitives (TF-IDF, BM25, cosine,
// Jaccard) for callers that rank their own corpora.
//
// # Error Handling
//
// Operations return structured errors that categorize the failure:
//
//	if err != nil {
//		if errors.Is(err, memory.ErrNotFound) {
//			// Entry missing or expired
//		}
//		var opErr *recall.Error
//		if errors.As(err, &opErr) && opErr.Kind == recall.KindUnavailable {
//			// Backend unreachable
//		}
//	}
//
// Backend failures are never folded into empty results; a search against an
// unreachable backend returns the error.
//
// # Observability
//
// The store integrates OpenTelemetry. Every operation becomes one span and
// feeds duration and count instruments:
//
//	mem, err := recall.Open(ctx,
//		recall.WithTracer(otel.Tracer("my-service")),
//		recall.WithMeter(otel.Meter("my-service")))
//
// # Thread Safety
//
// All Memory methods are safe for concurrent use. Mutations are serialized
// against each other; reads proceed concurrently.
package recall
