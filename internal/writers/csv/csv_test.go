package csv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/model"
)

func TestUnionColumnsIsSortedAndDeduplicated(t *testing.T) {
	rows := []model.Row{
		{"b": 1, "a": 2},
		{"c": 3, "a": 4},
	}
	assert.Equal(t, []string{"a", "b", "c"}, unionColumns(rows))
}

func TestWriteTableProducesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.csv")

	rows := []model.Row{
		{"id": "1", "name": "first"},
		{"id": "2", "name": nil},
	}
	require.NoError(t, writeTable(path, rows, DefaultConfig()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,first\n2,\n", string(data))
}

func TestStreamingWriterBuffersUntilFinalize(t *testing.T) {
	dir := t.TempDir()
	w := NewStreamingWriter(dir, "orders", DefaultConfig())

	require.NoError(t, w.InitializeMainTable(nil, nil))
	require.NoError(t, w.WriteMainRecords([]model.Row{{"id": "1"}}))

	_, err := os.Stat(filepath.Join(dir, "orders.csv"))
	assert.True(t, os.IsNotExist(err), "file must not exist before Finalize")

	require.NoError(t, w.Finalize())
	_, err = os.Stat(filepath.Join(dir, "orders.csv"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestStreamingWriterChildTableUsesSanitizedFilename(t *testing.T) {
	dir := t.TempDir()
	w := NewStreamingWriter(dir, "orders", DefaultConfig())

	require.NoError(t, w.InitializeChildTable("orders/items", nil, nil))
	require.NoError(t, w.WriteChildRecords("orders/items", []model.Row{{"sku": "x"}}))
	require.NoError(t, w.Finalize())

	_, err := os.Stat(filepath.Join(dir, "orders_items.csv"))
	assert.NoError(t, err)
}
