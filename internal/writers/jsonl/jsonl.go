// Package jsonl implements the JSONL/NDJSON writer (spec component C12):
// one JSON object per line, no header, no fixed column set. Unlike CSV,
// JSONL rows are heterogeneous by construction, so the streaming Writer
// encodes each row directly to its table's file as it arrives -- genuinely
// O(batch_size) memory, matching the pump's bounded-memory contract.
package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tableflow/internal/model"
	"tableflow/internal/result"
	"tableflow/internal/writer"
	pkgerrors "tableflow/pkg/errors"
)

func init() {
	factory := func() writer.OneShotWriter { return &OneShot{} }
	result.Register("jsonl", factory)
	result.Register("ndjson", factory)
}

// OneShot writes a whole table (or whole result) in a single call.
type OneShot struct{}

// Write implements writer.OneShotWriter.
func (w *OneShot) Write(rows []model.Row, destination string, opts writer.Options) (string, error) {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", pkgerrors.Outputf("writers/jsonl", "write", "cannot create output directory for %s", destination).Wrap(err)
	}
	if err := writeTable(destination, rows); err != nil {
		return "", err
	}
	return destination, nil
}

// WriteAll implements writer.OneShotWriter.
func (w *OneShot) WriteAll(main []model.Row, childrenByTable map[string][]model.Row, baseDir, entity string, opts writer.Options) (map[string]string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, pkgerrors.Outputf("writers/jsonl", "write_all", "cannot create output directory %s", baseDir).Wrap(err)
	}
	paths := map[string]string{}
	if len(main) > 0 {
		p := filepath.Join(baseDir, entity+".jsonl")
		if err := writeTable(p, main); err != nil {
			return nil, err
		}
		paths[entity] = p
	}
	for table, rows := range childrenByTable {
		if len(rows) == 0 {
			continue
		}
		p := filepath.Join(baseDir, sanitizeFilename(table)+".jsonl")
		if err := writeTable(p, rows); err != nil {
			return nil, err
		}
		paths[table] = p
	}
	return paths, nil
}

func writeTable(path string, rows []model.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return pkgerrors.Outputf("writers/jsonl", "create_file", "cannot create %s", path).Wrap(err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return pkgerrors.Outputf("writers/jsonl", "encode_row", "cannot encode row for %s", path).Wrap(err)
		}
	}
	if err := bw.Flush(); err != nil {
		return pkgerrors.Outputf("writers/jsonl", "flush", "cannot flush %s", path).Wrap(err)
	}
	return nil
}

// tableFile is one table's open file and buffered encoder.
type tableFile struct {
	mu  sync.Mutex
	f   *os.File
	bw  *bufio.Writer
	enc *json.Encoder
}

func openTableFile(path string) (*tableFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, pkgerrors.Outputf("writers/jsonl", "create_file", "cannot create %s", path).Wrap(err)
	}
	bw := bufio.NewWriter(f)
	return &tableFile{f: f, bw: bw, enc: json.NewEncoder(bw)}, nil
}

func (t *tableFile) write(rows []model.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range rows {
		if err := t.enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func (t *tableFile) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.bw.Flush(); err != nil {
		t.f.Close()
		return err
	}
	return t.f.Close()
}

// Writer is the streaming JSONL writer: each table's file is opened lazily
// on its first write and appended to line-by-line thereafter.
type Writer struct {
	baseDir string
	entity  string

	mu       sync.Mutex
	main     *tableFile
	children map[string]*tableFile
	closed   bool
}

// NewStreamingWriter builds a streaming JSONL writer writing the main table
// to baseDir/entity.jsonl and each child table to
// baseDir/<sanitized-table-name>.jsonl.
func NewStreamingWriter(baseDir, entity string) *Writer {
	return &Writer{baseDir: baseDir, entity: entity, children: map[string]*tableFile{}}
}

// InitializeMainTable opens the main table's file if it isn't already
// open; idempotent.
func (w *Writer) InitializeMainTable(schemaHint []string, opts writer.Options) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.main != nil {
		return nil
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return pkgerrors.Outputf("writers/jsonl", "initialize_main_table", "cannot create output directory %s", w.baseDir).Wrap(err)
	}
	tf, err := openTableFile(filepath.Join(w.baseDir, w.entity+".jsonl"))
	if err != nil {
		return err
	}
	w.main = tf
	return nil
}

// InitializeChildTable opens name's file if it isn't already open;
// idempotent.
func (w *Writer) InitializeChildTable(name string, schemaHint []string, opts writer.Options) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.children[name]; ok {
		return nil
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return pkgerrors.Outputf("writers/jsonl", "initialize_child_table", "cannot create output directory %s", w.baseDir).Wrap(err)
	}
	tf, err := openTableFile(filepath.Join(w.baseDir, sanitizeFilename(name)+".jsonl"))
	if err != nil {
		return err
	}
	w.children[name] = tf
	return nil
}

// WriteMainRecords appends rows to the main table's open file.
func (w *Writer) WriteMainRecords(rows []model.Row) error {
	w.mu.Lock()
	tf := w.main
	w.mu.Unlock()
	if tf == nil {
		return pkgerrors.Outputf("writers/jsonl", "write_main_records", "main table not initialized")
	}
	return tf.write(rows)
}

// WriteChildRecords appends rows to name's open file.
func (w *Writer) WriteChildRecords(name string, rows []model.Row) error {
	w.mu.Lock()
	tf := w.children[name]
	w.mu.Unlock()
	if tf == nil {
		return pkgerrors.Outputf("writers/jsonl", "write_child_records", "child table %s not initialized", name)
	}
	return tf.write(rows)
}

// Finalize flushes every open table's buffered writer.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.main != nil {
		w.main.mu.Lock()
		err := w.main.bw.Flush()
		w.main.mu.Unlock()
		if err != nil {
			return pkgerrors.Outputf("writers/jsonl", "finalize", "cannot flush main table").Wrap(err)
		}
	}
	for name, tf := range w.children {
		tf.mu.Lock()
		err := tf.bw.Flush()
		tf.mu.Unlock()
		if err != nil {
			return pkgerrors.Outputf("writers/jsonl", "finalize", "cannot flush child table %s", name).Wrap(err)
		}
	}
	return nil
}

// Close closes every open file. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var first error
	if w.main != nil {
		if err := w.main.close(); err != nil && first == nil {
			first = err
		}
	}
	for _, tf := range w.children {
		if err := tf.close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return pkgerrors.Outputf("writers/jsonl", "close", "cannot close output files").Wrap(first)
	}
	return nil
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
