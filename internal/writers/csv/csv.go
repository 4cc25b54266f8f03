// Package csv implements the CSV writer conforming to the pipeline's
// writer interfaces (spec component C12). CSV is RFC 4180 via the standard
// library's encoding/csv, with a configurable delimiter and null sentinel.
//
// Unlike JSONL, CSV cannot stream a header before the full column universe
// of a table is known: the spec's union-of-columns schema evolution means
// a row written early in a run may be missing a column a later row
// introduces. The streaming Writer therefore buffers rows per table in
// memory and writes each file only on Finalize -- a deliberate deviation
// from the pump's O(batch_size) memory target for this one codec, noted
// in the design ledger.
package csv

import (
	stdcsv "encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"tableflow/internal/model"
	"tableflow/internal/result"
	"tableflow/internal/writer"
	pkgerrors "tableflow/pkg/errors"
)

func init() {
	result.Register("csv", func() writer.OneShotWriter { return &OneShot{Config: DefaultConfig()} })
}

// Config tunes the CSV codec.
type Config struct {
	Delimiter    rune   `yaml:"delimiter"`
	NullSentinel string `yaml:"null_sentinel"`
}

// DefaultConfig uses a comma delimiter and an empty-string null sentinel.
func DefaultConfig() Config {
	return Config{Delimiter: ','}
}

func configFrom(base Config, opts writer.Options) Config {
	cfg := base
	if opts == nil {
		return cfg
	}
	if d, ok := opts["delimiter"].(rune); ok && d != 0 {
		cfg.Delimiter = d
	}
	if s, ok := opts["null_sentinel"].(string); ok {
		cfg.NullSentinel = s
	}
	return cfg
}

// OneShot writes a whole table (or whole result) in a single call.
type OneShot struct{ Config Config }

// Write implements writer.OneShotWriter.
func (w *OneShot) Write(rows []model.Row, destination string, opts writer.Options) (string, error) {
	cfg := configFrom(w.Config, opts)
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", pkgerrors.Outputf("writers/csv", "write", "cannot create output directory for %s", destination).Wrap(err)
	}
	if err := writeTable(destination, rows, cfg); err != nil {
		return "", err
	}
	return destination, nil
}

// WriteAll implements writer.OneShotWriter.
func (w *OneShot) WriteAll(main []model.Row, childrenByTable map[string][]model.Row, baseDir, entity string, opts writer.Options) (map[string]string, error) {
	cfg := configFrom(w.Config, opts)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, pkgerrors.Outputf("writers/csv", "write_all", "cannot create output directory %s", baseDir).Wrap(err)
	}

	paths := map[string]string{}
	if len(main) > 0 {
		p := filepath.Join(baseDir, entity+".csv")
		if err := writeTable(p, main, cfg); err != nil {
			return nil, err
		}
		paths[entity] = p
	}
	for table, rows := range childrenByTable {
		if len(rows) == 0 {
			continue
		}
		p := filepath.Join(baseDir, sanitizeFilename(table)+".csv")
		if err := writeTable(p, rows, cfg); err != nil {
			return nil, err
		}
		paths[table] = p
	}
	return paths, nil
}

// Writer is the streaming CSV writer. See the package doc for why it
// buffers rather than writing incrementally.
type Writer struct {
	baseDir string
	entity  string
	cfg     Config

	mu        sync.Mutex
	mainRows  []model.Row
	childRows map[string][]model.Row
	finalized bool
}

// NewStreamingWriter builds a streaming CSV writer that will place the main
// table at baseDir/entity.csv and each child table at
// baseDir/<sanitized-table-name>.csv once Finalize runs.
func NewStreamingWriter(baseDir, entity string, cfg Config) *Writer {
	return &Writer{baseDir: baseDir, entity: entity, cfg: cfg, childRows: map[string][]model.Row{}}
}

// InitializeMainTable is a no-op: CSV has nothing to do until the column
// union is known, which happens at Finalize.
func (w *Writer) InitializeMainTable(schemaHint []string, opts writer.Options) error { return nil }

// InitializeChildTable is a no-op for the same reason.
func (w *Writer) InitializeChildTable(name string, schemaHint []string, opts writer.Options) error {
	return nil
}

// WriteMainRecords buffers rows for the main table.
func (w *Writer) WriteMainRecords(rows []model.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mainRows = append(w.mainRows, rows...)
	return nil
}

// WriteChildRecords buffers rows for the named child table.
func (w *Writer) WriteChildRecords(name string, rows []model.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.childRows[name] = append(w.childRows[name], rows...)
	return nil
}

// Finalize writes every buffered table to disk. Idempotent.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return nil
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return pkgerrors.Outputf("writers/csv", "finalize", "cannot create output directory %s", w.baseDir).Wrap(err)
	}
	if len(w.mainRows) > 0 {
		p := filepath.Join(w.baseDir, w.entity+".csv")
		if err := writeTable(p, w.mainRows, w.cfg); err != nil {
			return err
		}
	}
	for table, rows := range w.childRows {
		if len(rows) == 0 {
			continue
		}
		p := filepath.Join(w.baseDir, sanitizeFilename(table)+".csv")
		if err := writeTable(p, rows, w.cfg); err != nil {
			return err
		}
	}
	w.finalized = true
	return nil
}

// Close is a no-op: Finalize already released every file handle it opened.
func (w *Writer) Close() error { return nil }

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', filepath.Separator:
			return '_'
		default:
			return r
		}
	}, name)
}

func writeTable(path string, rows []model.Row, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Outputf("writers/csv", "create_file", "cannot create %s", path).Wrap(err)
	}
	defer f.Close()

	cw := stdcsv.NewWriter(f)
	if cfg.Delimiter != 0 {
		cw.Comma = cfg.Delimiter
	}

	header := unionColumns(rows)
	if err := cw.Write(header); err != nil {
		return pkgerrors.Outputf("writers/csv", "write_header", "cannot write header for %s", path).Wrap(err)
	}

	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = cellString(row[col], cfg)
		}
		if err := cw.Write(record); err != nil {
			return pkgerrors.Outputf("writers/csv", "write_row", "cannot write row to %s", path).Wrap(err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return pkgerrors.Outputf("writers/csv", "flush", "cannot flush %s", path).Wrap(err)
	}
	return nil
}

func cellString(v interface{}, cfg Config) string {
	if v == nil {
		return cfg.NullSentinel
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// unionColumns computes the sorted union of every key present in rows. The
// result is deterministic run-to-run regardless of the rows' underlying
// map iteration order (spec P9: batch-size-independent output content).
func unionColumns(rows []model.Row) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for k := range row {
			if seen[k] {
				continue
			}
			seen[k] = true
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}
