package parquet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/model"
	"tableflow/pkg/compression"
)

func TestUnionColumnsIsSortedAndDeduplicated(t *testing.T) {
	rows := []model.Row{
		{"b": 1, "a": 2},
		{"c": 3, "a": 4},
	}
	assert.Equal(t, []string{"a", "b", "c"}, unionColumns(rows))
}

func TestSortedCopyDoesNotMutateInput(t *testing.T) {
	in := []string{"c", "a", "b"}
	out := sortedCopy(in)
	assert.Equal(t, []string{"a", "b", "c"}, out)
	assert.Equal(t, []string{"c", "a", "b"}, in)
}

func TestSanitizeFilenameReplacesSeparators(t *testing.T) {
	assert.Equal(t, "orders_items", sanitizeFilename("orders/items"))
}

func TestWriteTableProducesNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.parquet")

	rows := []model.Row{
		{"id": "1", "name": "first"},
		{"id": "2", "name": nil},
	}
	require.NoError(t, writeTable(path, rows, Config{Compression: compression.None}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestStreamingWriterFixesSchemaFromFirstBatch(t *testing.T) {
	dir := t.TempDir()
	w := NewStreamingWriter(dir, "orders", Config{Compression: compression.None})

	require.NoError(t, w.InitializeMainTable([]string{"id", "name"}, nil))
	require.NoError(t, w.WriteMainRecords([]model.Row{{"id": "1", "name": "a"}}))
	// A later batch introducing an unseen column is dropped, not an error.
	require.NoError(t, w.WriteMainRecords([]model.Row{{"id": "2", "unexpected": "x"}}))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	info, err := os.Stat(filepath.Join(dir, "orders.parquet"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
