package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tableflow/internal/model"
	"tableflow/internal/sanitize"
)

func newFlattener(opts Options) *Flattener {
	if opts.Separator == "" {
		opts.Separator = "_"
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = 100
	}
	return New(opts, sanitize.New(0), nil)
}

func TestFlattenScalarOnlyRecord(t *testing.T) {
	f := newFlattener(Options{CastToString: true})
	row := f.Flatten(model.Record{"id": 1.0, "name": "A"}, model.NewContext("ts"))

	assert.Equal(t, "1", row["id"])
	assert.Equal(t, "A", row["name"])
}

func TestFlattenDeeplyNestedObject(t *testing.T) {
	f := newFlattener(Options{CastToString: true})
	record := model.Record{
		"a": map[string]interface{}{
			"b": map[string]interface{}{
				"c": map[string]interface{}{"d": 42.0},
			},
		},
	}
	row := f.Flatten(record, model.NewContext("ts"))
	assert.Equal(t, "42", row["a_b_c_d"])
}

func TestFlattenMetadataPassthrough(t *testing.T) {
	f := newFlattener(Options{CastToString: true})
	row := f.Flatten(model.Record{"__extract_id": "abc"}, model.NewContext("ts"))
	assert.Equal(t, "abc", row["__extract_id"])
}

func TestFlattenSmartModeKeepsSimpleArrayInline(t *testing.T) {
	f := newFlattener(Options{ArrayMode: model.Smart, CastToString: true})
	record := model.Record{"tags": []interface{}{"a", "b"}}
	row := f.Flatten(record, model.NewContext("ts"))
	assert.Equal(t, []interface{}{"a", "b"}, row["tags"])
}

func TestFlattenSmartModeOmitsComplexArray(t *testing.T) {
	f := newFlattener(Options{ArrayMode: model.Smart, CastToString: true})
	record := model.Record{"items": []interface{}{map[string]interface{}{"v": 10.0}}}
	row := f.Flatten(record, model.NewContext("ts"))
	_, present := row["items"]
	assert.False(t, present)
}

func TestFlattenInlineModeStoresWholeArray(t *testing.T) {
	f := newFlattener(Options{ArrayMode: model.Inline, CastToString: true})
	record := model.Record{"items": []interface{}{map[string]interface{}{"v": 10.0}}}
	row := f.Flatten(record, model.NewContext("ts"))
	assert.Contains(t, row, "items")
}

func TestFlattenSkipModeOmitsArray(t *testing.T) {
	f := newFlattener(Options{ArrayMode: model.SkipArrays, CastToString: true})
	record := model.Record{"tags": []interface{}{"a", "b"}}
	row := f.Flatten(record, model.NewContext("ts"))
	_, present := row["tags"]
	assert.False(t, present)
}

func TestFlattenDepthGuardReturnsEmptyMap(t *testing.T) {
	f := newFlattener(Options{CastToString: true, MaxDepth: 1})
	record := model.Record{"a": map[string]interface{}{"b": 1.0}}
	row := f.Flatten(record, model.NewContext("ts").Descend("x"))
	assert.Empty(t, row)
}
