// Package result implements the result container (spec component C10): the
// non-streaming pump path's output, holding the main table, the child
// tables, and the entity name, plus a Save operation that detects output
// format from a path's extension and dispatches to a registered one-shot
// writer.
package result

import (
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "tableflow/pkg/errors"

	"tableflow/internal/model"
	"tableflow/internal/writer"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]func() writer.OneShotWriter{}
)

// Register makes a one-shot writer factory available under format (matched
// case-insensitively against a Save path's extension, without the leading
// dot). Writer implementations call this from an init() func so that
// importing internal/writers/<format> is enough to make Save support it.
func Register(format string, factory func() writer.OneShotWriter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(format)] = factory
}

func lookup(format string) (func() writer.OneShotWriter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[strings.ToLower(format)]
	return factory, ok
}

// defaultFormat is used when Save can't infer one from the destination
// path and the caller didn't specify one.
const defaultFormat = "csv"

// Result holds one processing run's output tables.
type Result struct {
	entity string
	main   []model.Row
	tables map[string][]model.Row
}

// New builds a Result from a main table, its children, and the entity name
// the main table is saved under.
func New(entity string, main []model.Row, tables map[string][]model.Row) *Result {
	if tables == nil {
		tables = map[string][]model.Row{}
	}
	return &Result{entity: entity, main: main, tables: tables}
}

// Main returns the main table.
func (r *Result) Main() []model.Row { return r.main }

// Tables returns the child tables, keyed by table name.
func (r *Result) Tables() map[string][]model.Row { return r.tables }

// AllTables returns every table, including the main table under the entity
// name.
func (r *Result) AllTables() map[string][]model.Row {
	all := make(map[string][]model.Row, len(r.tables)+1)
	for name, rows := range r.tables {
		all[name] = rows
	}
	all[r.entity] = r.main
	return all
}

// Save writes the result to path. format, if empty, is detected from
// path's extension; if that's also absent, it falls back to CSV. A result
// with no child tables is saved as a single file at path; otherwise path
// is treated as a directory and one file per non-empty table is written,
// returning a map of table name to file path.
func (r *Result) Save(path, format string, opts writer.Options) (interface{}, error) {
	if format == "" {
		format = formatFromPath(path)
	}
	factory, ok := lookup(format)
	if !ok {
		return nil, pkgerrors.Validationf("result", "save", "unknown output format %q", format)
	}
	w := factory()

	if len(r.tables) == 0 {
		written, err := w.Write(r.main, path, opts)
		if err != nil {
			return nil, err
		}
		return []string{written}, nil
	}

	return w.WriteAll(r.main, r.tables, path, r.entity, opts)
}

func formatFromPath(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return defaultFormat
	}
	return ext
}
