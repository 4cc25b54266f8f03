package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/model"
)

func TestProcessEmptyRecordYieldsEmptyResult(t *testing.T) {
	d := New(model.DefaultConfig(), nil)
	mainRow, children := d.Process(nil, "e", model.NewContext("ts"), "")
	assert.Empty(t, mainRow)
	assert.Empty(t, children)
}

func TestProcessScalarRecordHasNoChildren(t *testing.T) {
	d := New(model.DefaultConfig(), nil)
	mainRow, children := d.Process(model.Record{"id": 1.0, "name": "A"}, "e", model.NewContext("ts"), "")

	assert.Equal(t, "1", mainRow["id"])
	assert.Equal(t, "A", mainRow["name"])
	assert.NotEmpty(t, mainRow["__extract_id"])
	assert.Empty(t, children)
}

func TestProcessObjectArrayProducesLinkedChildTable(t *testing.T) {
	d := New(model.DefaultConfig(), nil)
	record := model.Record{
		"id": 1.0,
		"items": []interface{}{
			map[string]interface{}{"v": 10.0},
			map[string]interface{}{"v": 20.0},
		},
	}

	mainRow, children := d.Process(record, "e", model.NewContext("ts"), "")

	rows, ok := children["e_items"]
	require.True(t, ok)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, mainRow["__extract_id"], row["__parent_extract_id"])
	}
}

func TestProcessBatchMergesChildrenPreservingOrder(t *testing.T) {
	d := New(model.DefaultConfig(), nil)
	records := []model.Record{
		{"id": 1.0, "items": []interface{}{map[string]interface{}{"v": 1.0}}},
		{"id": 2.0, "items": []interface{}{map[string]interface{}{"v": 2.0}}},
	}

	mainRows, children := d.ProcessBatch(records, "e", model.NewContext("ts"))

	require.Len(t, mainRows, 2)
	rows := children["e_items"]
	require.Len(t, rows, 2)
	assert.Equal(t, mainRows[0]["__extract_id"], rows[0]["__parent_extract_id"])
	assert.Equal(t, mainRows[1]["__extract_id"], rows[1]["__parent_extract_id"])
}

func TestProcessStreamEmitsChildrenViaCallback(t *testing.T) {
	d := New(model.DefaultConfig(), nil)
	records := []model.Record{
		{"id": 1.0, "items": []interface{}{map[string]interface{}{"v": 1.0}}},
	}

	var emittedTables []string
	var emittedParentIDs []interface{}
	mainRows := d.ProcessStream(records, "e", model.NewContext("ts"), func(recordIndex int, table string, row model.Row) {
		emittedTables = append(emittedTables, table)
		emittedParentIDs = append(emittedParentIDs, row["__parent_extract_id"])
		assert.Equal(t, 0, recordIndex)
	})

	require.Len(t, mainRows, 1)
	assert.Equal(t, []string{"e_items"}, emittedTables)
	require.Len(t, emittedParentIDs, 1)
	assert.Equal(t, mainRows[0]["__extract_id"], emittedParentIDs[0])
}
