package jsonl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/model"
)

func TestWriteTableWritesOneJSONObjectPerLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.jsonl")

	rows := []model.Row{
		{"id": "1", "name": "first"},
		{"id": "2", "extra": "only on second row"},
	}
	require.NoError(t, writeTable(path, rows))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "1", first["id"])
	_, hasExtra := first["extra"]
	assert.False(t, hasExtra)
}

func TestStreamingWriterAppendsAcrossMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	w := NewStreamingWriter(dir, "orders")

	require.NoError(t, w.InitializeMainTable(nil, nil))
	require.NoError(t, w.WriteMainRecords([]model.Row{{"id": "1"}}))
	require.NoError(t, w.WriteMainRecords([]model.Row{{"id": "2"}}))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "orders.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestStreamingWriterWriteMainRecordsBeforeInitializeFails(t *testing.T) {
	dir := t.TempDir()
	w := NewStreamingWriter(dir, "orders")
	err := w.WriteMainRecords([]model.Row{{"id": "1"}})
	assert.Error(t, err)
}

func TestStreamingWriterChildTableUsesSanitizedFilename(t *testing.T) {
	dir := t.TempDir()
	w := NewStreamingWriter(dir, "orders")

	require.NoError(t, w.InitializeChildTable("orders/items", nil, nil))
	require.NoError(t, w.WriteChildRecords("orders/items", []model.Row{{"sku": "x"}}))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	_, err := os.Stat(filepath.Join(dir, "orders_items.jsonl"))
	assert.NoError(t, err)
}
