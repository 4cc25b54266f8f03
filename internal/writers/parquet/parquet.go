// Package parquet implements the columnar writer (spec component C12) using
// github.com/parquet-go/parquet-go. Parquet is the one codec among the
// pipeline's sinks that needs a schema committed before the first row is
// written, so the writer fixes its column set from the first batch's
// schemaHint and, for the documented "schema evolution" edge case, drops
// (and logs) any key introduced by a later batch rather than rewriting
// already-flushed row groups.
//
// Every column is modeled as an optional string leaf. The pipeline's rows
// are already coerced to scalars-or-nil by the flattener (spec component
// C1/C5), so a uniform string column avoids guessing a numeric/boolean
// physical type per key that a later batch could contradict.
package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"tableflow/internal/model"
	"tableflow/internal/result"
	"tableflow/internal/writer"
	"tableflow/pkg/compression"
	pkgerrors "tableflow/pkg/errors"
)

func init() {
	result.Register("parquet", func() writer.OneShotWriter { return &OneShot{Config: DefaultConfig()} })
}

// Config tunes the Parquet codec.
type Config struct {
	Compression compression.Codec `yaml:"compression"`
	Log         *logrus.Entry     `yaml:"-"`
}

// DefaultConfig writes uncompressed row groups.
func DefaultConfig() Config {
	return Config{Compression: compression.None}
}

func configFrom(base Config, opts writer.Options) Config {
	cfg := base
	if opts == nil {
		return cfg
	}
	if c, ok := opts["compression"].(compression.Codec); ok && c != "" {
		cfg.Compression = c
	}
	return cfg
}

func (c Config) logger() *logrus.Entry {
	if c.Log != nil {
		return c.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func parquetCompression(codec compression.Codec) parquet.Compression {
	switch codec {
	case compression.Gzip:
		return &parquet.Gzip
	case compression.Zstd:
		return &parquet.Zstd
	case compression.Snap:
		return &parquet.Snappy
	case compression.LZ4:
		return &parquet.Lz4Raw
	default:
		return &parquet.Uncompressed
	}
}

// OneShot writes a whole table in a single call. Because the column set must
// be known before the schema is built, OneShot scans rows once to compute
// the union of keys before writing.
type OneShot struct{ Config Config }

// Write implements writer.OneShotWriter.
func (w *OneShot) Write(rows []model.Row, destination string, opts writer.Options) (string, error) {
	cfg := configFrom(w.Config, opts)
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", pkgerrors.Outputf("writers/parquet", "write", "cannot create output directory for %s", destination).Wrap(err)
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
		return nil, pkgerrors.Outputf("writers/parquet", "write_all", "cannot create output directory %s", baseDir).Wrap(err)
	}
	paths := map[string]string{}
	if len(main) > 0 {
		p := filepath.Join(baseDir, entity+".parquet")
		if err := writeTable(p, main, cfg); err != nil {
			return nil, err
		}
		paths[entity] = p
	}
	for table, rows := range childrenByTable {
		if len(rows) == 0 {
			continue
		}
		p := filepath.Join(baseDir, sanitizeFilename(table)+".parquet")
		if err := writeTable(p, rows, cfg); err != nil {
			return nil, err
		}
		paths[table] = p
	}
	return paths, nil
}

func writeTable(path string, rows []model.Row, cfg Config) error {
	columns := unionColumns(rows)
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Outputf("writers/parquet", "create_file", "cannot create %s", path).Wrap(err)
	}
	defer f.Close()

	pw := parquet.NewWriter(f, schemaFor(columns), parquet.Compression(parquetCompression(cfg.Compression)))
	if err := writeRows(pw, columns, rows); err != nil {
		return pkgerrors.Outputf("writers/parquet", "write_rows", "cannot write rows to %s", path).Wrap(err)
	}
	if err := pw.Close(); err != nil {
		return pkgerrors.Outputf("writers/parquet", "close_writer", "cannot finalize %s", path).Wrap(err)
	}
	return nil
}

func schemaFor(columns []string) *parquet.Schema {
	group := make(parquet.Group, len(columns))
	for _, c := range columns {
		group[c] = parquet.Optional(parquet.String())
	}
	return parquet.NewSchema("row", group)
}

func writeRows(pw *parquet.Writer, columns []string, rows []model.Row) error {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	batch := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, rowToParquet(row, columns, index))
	}
	_, err := pw.WriteRows(batch)
	return err
}

// rowToParquet converts one table row into a parquet.Row positioned by
// columns' sorted order, coercing every present value to its string form.
// Columns absent from row, or present but nil, are left as the zero Value,
// which parquet-go treats as a null at definition level 0.
func rowToParquet(row model.Row, columns []string, index map[string]int) parquet.Row {
	out := make(parquet.Row, len(columns))
	for col := range columns {
		out[col] = parquet.Value{}.Level(0, 0, col)
	}
	for k, v := range row {
		col, ok := index[k]
		if !ok {
			// A column introduced after the schema was fixed: dropped per
			// the documented schema-evolution tradeoff.
			continue
		}
		if v == nil {
			continue
		}
		out[col] = parquet.ValueOf(stringify(v)).Level(0, 1, col)
	}
	return out
}

func stringify(v interface{}) string {
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

// Writer is the streaming Parquet writer. Schema is fixed from the first
// batch seen by InitializeMainTable/InitializeChildTable; columns introduced
// by a later batch are dropped with a logged warning (WriteMainRecords/
// WriteChildRecords), matching the spec's documented schema-drift option.
type Writer struct {
	baseDir string
	entity  string
	cfg     Config

	mu        sync.Mutex
	main      *tableState
	children  map[string]*tableState
	closed    bool
	finalized bool
}

type tableState struct {
	file    *os.File
	pw      *parquet.Writer
	columns []string
	index   map[string]int
}

// NewStreamingWriter builds a streaming Parquet writer writing the main
// table to baseDir/entity.parquet and each child table to
// baseDir/<sanitized-table-name>.parquet.
func NewStreamingWriter(baseDir, entity string, cfg Config) *Writer {
	return &Writer{baseDir: baseDir, entity: entity, cfg: cfg, children: map[string]*tableState{}}
}

func openTableState(path string, columns []string, cfg Config) (*tableState, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, pkgerrors.Outputf("writers/parquet", "create_file", "cannot create %s", path).Wrap(err)
	}
	pw := parquet.NewWriter(f, schemaFor(columns), parquet.Compression(parquetCompression(cfg.Compression)))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &tableState{file: f, pw: pw, columns: columns, index: index}, nil
}

// InitializeMainTable fixes the main table's schema to schemaHint (sorted)
// and opens its file. Idempotent.
func (w *Writer) InitializeMainTable(schemaHint []string, opts writer.Options) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.main != nil {
		return nil
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return pkgerrors.Outputf("writers/parquet", "initialize_main_table", "cannot create output directory %s", w.baseDir).Wrap(err)
	}
	cols := sortedCopy(schemaHint)
	ts, err := openTableState(filepath.Join(w.baseDir, w.entity+".parquet"), cols, configFrom(w.cfg, opts))
	if err != nil {
		return err
	}
	w.main = ts
	return nil
}

// InitializeChildTable fixes name's schema to schemaHint (sorted) and opens
// its file. Idempotent.
func (w *Writer) InitializeChildTable(name string, schemaHint []string, opts writer.Options) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.children[name]; ok {
		return nil
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return pkgerrors.Outputf("writers/parquet", "initialize_child_table", "cannot create output directory %s", w.baseDir).Wrap(err)
	}
	cols := sortedCopy(schemaHint)
	ts, err := openTableState(filepath.Join(w.baseDir, sanitizeFilename(name)+".parquet"), cols, configFrom(w.cfg, opts))
	if err != nil {
		return err
	}
	w.children[name] = ts
	return nil
}

// WriteMainRecords writes rows as a new row group in the main table.
func (w *Writer) WriteMainRecords(rows []model.Row) error {
	w.mu.Lock()
	ts := w.main
	w.mu.Unlock()
	if ts == nil {
		return pkgerrors.Outputf("writers/parquet", "write_main_records", "main table not initialized")
	}
	return w.writeInto(ts, "main", rows)
}

// WriteChildRecords writes rows as a new row group in name's table.
func (w *Writer) WriteChildRecords(name string, rows []model.Row) error {
	w.mu.Lock()
	ts := w.children[name]
	w.mu.Unlock()
	if ts == nil {
		return pkgerrors.Outputf("writers/parquet", "write_child_records", "child table %s not initialized", name)
	}
	return w.writeInto(ts, name, rows)
}

func (w *Writer) writeInto(ts *tableState, table string, rows []model.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range rows {
		for k := range row {
			if _, ok := ts.index[k]; !ok {
				w.cfg.logger().WithFields(logrus.Fields{"table": table, "column": k}).
					Warn("parquet: dropping column introduced after schema was fixed")
			}
		}
	}
	batch := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, rowToParquet(row, ts.columns, ts.index))
	}
	if _, err := ts.pw.WriteRows(batch); err != nil {
		return pkgerrors.Outputf("writers/parquet", "write_rows", "cannot write rows to table %s", table).Wrap(err)
	}
	if err := ts.pw.Flush(); err != nil {
		return pkgerrors.Outputf("writers/parquet", "flush", "cannot flush row group for table %s", table).Wrap(err)
	}
	return nil
}

// Finalize closes every open table's Parquet writer, committing its footer.
// Idempotent: once a call has succeeded, later calls return nil without
// touching any table.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return nil
	}
	if w.main != nil {
		if err := w.main.pw.Close(); err != nil {
			return pkgerrors.Outputf("writers/parquet", "finalize", "cannot finalize main table").Wrap(err)
		}
	}
	for name, ts := range w.children {
		if err := ts.pw.Close(); err != nil {
			return pkgerrors.Outputf("writers/parquet", "finalize", "cannot finalize child table %s", name).Wrap(err)
		}
	}
	w.finalized = true
	return nil
}

// Close closes every open file handle. Safe to call after Finalize and more
// than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var first error
	if w.main != nil {
		if err := w.main.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, ts := range w.children {
		if err := ts.file.Close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return pkgerrors.Outputf("writers/parquet", "close", "cannot close output files").Wrap(first)
	}
	return nil
}

func sortedCopy(keys []string) []string {
	cols := append([]string(nil), keys...)
	sort.Strings(cols)
	return cols
}

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
