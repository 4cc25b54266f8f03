package pump

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/model"
	"tableflow/internal/writer"
)

func TestFlattenAllProducesMainAndChildRows(t *testing.T) {
	cfg := model.DefaultConfig()
	p := New(Config{Core: cfg, Entity: "orders"}, nil)

	data := []model.Record{
		{"id": "a1", "name": "first", "items": []interface{}{
			map[string]interface{}{"sku": "x"},
			map[string]interface{}{"sku": "y"},
		}},
		{"id": "a2", "name": "second"},
	}

	res, err := p.FlattenAll(context.Background(), data)
	require.NoError(t, err)
	assert.Len(t, res.Main(), 2)
	assert.Len(t, res.Tables()["orders_items"], 2)
}

func TestFlattenAllEmptyInputYieldsEmptyResult(t *testing.T) {
	cfg := model.DefaultConfig()
	p := New(Config{Core: cfg, Entity: "orders"}, nil)

	res, err := p.FlattenAll(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, res.Main())
	assert.Empty(t, res.Tables())
}

func TestFlattenAllSkipsMalformedJSONLUnderSkipRecovery(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.RecoveryMode = model.RecoverySkip
	p := New(Config{Core: cfg, Entity: "events"}, nil)

	input := "{\"id\": 1}\nnot json\n{\"id\": 2}\n"
	res, err := p.FlattenAll(context.Background(), input)
	require.NoError(t, err)
	assert.Len(t, res.Main(), 2)
}

func TestFlattenAllAbortsMalformedJSONLUnderStrictRecovery(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.RecoveryMode = model.RecoveryStrict
	p := New(Config{Core: cfg, Entity: "events"}, nil)

	input := "{\"id\": 1}\nnot json\n{\"id\": 2}\n"
	_, err := p.FlattenAll(context.Background(), input)
	assert.Error(t, err)
}

// recordingWriter is a test double implementing writer.StreamingWriter.
type recordingWriter struct {
	mainInitialized  bool
	childInitialized map[string]bool
	mainRows         []model.Row
	childRows        map[string][]model.Row
	finalized        bool
	closed           bool
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{childInitialized: map[string]bool{}, childRows: map[string][]model.Row{}}
}

func (w *recordingWriter) InitializeMainTable(schemaHint []string, opts writer.Options) error {
	w.mainInitialized = true
	return nil
}

func (w *recordingWriter) InitializeChildTable(name string, schemaHint []string, opts writer.Options) error {
	w.childInitialized[name] = true
	return nil
}

func (w *recordingWriter) WriteMainRecords(rows []model.Row) error {
	w.mainRows = append(w.mainRows, rows...)
	return nil
}

func (w *recordingWriter) WriteChildRecords(name string, rows []model.Row) error {
	w.childRows[name] = append(w.childRows[name], rows...)
	return nil
}

func (w *recordingWriter) Finalize() error {
	w.finalized = true
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestFlattenStreamWritesRowsAndFinalizes(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.BatchSize = 1
	p := New(Config{Core: cfg, Entity: "orders"}, nil)

	w := newRecordingWriter()
	data := []model.Record{
		{"id": "a1", "items": []interface{}{map[string]interface{}{"sku": "x"}}},
		{"id": "a2"},
	}

	err := p.FlattenStream(context.Background(), data, w)
	require.NoError(t, err)

	assert.True(t, w.mainInitialized)
	assert.True(t, w.finalized)
	assert.True(t, w.closed)
	assert.Len(t, w.mainRows, 2)
	assert.Len(t, w.childRows["orders_items"], 1)
}
