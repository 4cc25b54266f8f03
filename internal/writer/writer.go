// Package writer defines the two output contracts every format-specific
// sink implements (spec component C9): a row-at-a-time StreamingWriter for
// the bounded-memory pump path, and a whole-table OneShotWriter for the
// non-streaming result-container path. internal/writers/* holds the
// concrete CSV/JSONL/Parquet/Elasticsearch/Kafka implementations.
package writer

import "tableflow/internal/model"

// Options carries format-specific tuning (delimiter, compression codec,
// row-group size, null sentinel, ...). Each writer implementation reads the
// keys it understands and type-asserts their values; this keeps the
// interface format-agnostic.
type Options map[string]interface{}

// StreamingWriter accepts rows incrementally as the pump produces them,
// opening per-table state lazily on first write. Implementations must make
// InitializeMainTable/InitializeChildTable idempotent and flush durably at a
// cadence appropriate to the codec. Row-oriented implementations evolve each
// table's schema as a union of every key seen so far; a columnar one may fix
// the schema from the first batch and drop keys introduced later.
type StreamingWriter interface {
	InitializeMainTable(schemaHint []string, opts Options) error
	InitializeChildTable(name string, schemaHint []string, opts Options) error
	WriteMainRecords(rows []model.Row) error
	WriteChildRecords(name string, rows []model.Row) error
	// Finalize commits any buffered state (e.g. row groups). It must be
	// idempotent: calling it twice is a no-op the second time.
	Finalize() error
	// Close releases any held resources (file handles, network
	// connections). Safe to call after Finalize, and safe to call more
	// than once.
	Close() error
}

// OneShotWriter writes a whole table (or a whole multi-table result) in a
// single call, with no incremental state to manage.
type OneShotWriter interface {
	// Write serializes rows to destination and returns the path written.
	Write(rows []model.Row, destination string, opts Options) (string, error)
	// WriteAll writes the main table under entity's name and each child
	// table under its own sanitized name, inside baseDir, returning a map
	// of table name to the path written.
	WriteAll(main []model.Row, childrenByTable map[string][]model.Row, baseDir, entity string, opts Options) (map[string]string, error)
}
