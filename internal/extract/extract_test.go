package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/flatten"
	"tableflow/internal/identity"
	"tableflow/internal/model"
	"tableflow/internal/rowmeta"
	"tableflow/internal/sanitize"
)

func newExtractor(arrayMode model.ArrayMode) *Extractor {
	s := sanitize.New(0)
	f := flatten.New(flatten.Options{
		Separator:    "_",
		ArrayMode:    arrayMode,
		CastToString: true,
		MaxDepth:     100,
	}, s, nil)
	eng := identity.New(identity.Options{Mode: identity.Random})
	return New(Options{
		Separator: "_",
		ArrayMode: arrayMode,
		MaxDepth:  100,
	}, f, eng, rowmeta.DefaultConfig(), s, nil)
}

func TestExtractObjectArraySmartMode(t *testing.T) {
	e := newExtractor(model.Smart)
	record := model.Record{
		"id": 1.0,
		"items": []interface{}{
			map[string]interface{}{"v": 10.0},
			map[string]interface{}{"v": 20.0},
		},
	}

	children := e.Extract(record, "e", model.NewContext("ts"), "parent-1")

	rows, ok := children["e_items"]
	require.True(t, ok)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "parent-1", row["__parent_extract_id"])
		assert.NotEmpty(t, row["__extract_id"])
	}
}

func TestExtractSimpleArraySmartModeIsNotExtracted(t *testing.T) {
	e := newExtractor(model.Smart)
	record := model.Record{"tags": []interface{}{"a", "b"}}

	children := e.Extract(record, "e", model.NewContext("ts"), "parent-1")
	assert.Empty(t, children)
}

func TestExtractSeparateModeExtractsSimpleArrayToo(t *testing.T) {
	e := newExtractor(model.Separate)
	record := model.Record{"tags": []interface{}{"a", "b"}}

	children := e.Extract(record, "e", model.NewContext("ts"), "parent-1")
	rows, ok := children["e_tags"]
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["value"])
	assert.Equal(t, "b", rows[1]["value"])
}

func TestExtractNestedArraysCarryCorrectParentChain(t *testing.T) {
	e := newExtractor(model.Smart)
	record := model.Record{
		"groups": []interface{}{
			map[string]interface{}{
				"name": "g1",
				"members": []interface{}{
					map[string]interface{}{"name": "m1"},
				},
			},
		},
	}

	children := e.Extract(record, "e", model.NewContext("ts"), "root-1")

	groupRows := children["e_groups"]
	require.Len(t, groupRows, 1)
	groupID, _ := groupRows[0]["__extract_id"].(string)
	require.NotEmpty(t, groupID)

	memberRows := children["e_groups_members"]
	require.Len(t, memberRows, 1)
	assert.Equal(t, groupID, memberRows[0]["__parent_extract_id"])
}

func TestExtractInlineModeExtractsNothing(t *testing.T) {
	e := newExtractor(model.Inline)
	record := model.Record{"items": []interface{}{map[string]interface{}{"v": 1.0}}}
	children := e.Extract(record, "e", model.NewContext("ts"), "p")
	assert.Empty(t, children)
}
