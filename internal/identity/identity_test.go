package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tableflow/internal/model"
)

func TestRandomModeProducesDistinctIDs(t *testing.T) {
	e := New(Options{Mode: Random})
	a, naturalA := e.Assign(model.Record{"x": 1})
	b, _ := e.Assign(model.Record{"x": 1})
	assert.False(t, naturalA)
	assert.NotEqual(t, a, b)
}

func TestDeterministicRecordIsStable(t *testing.T) {
	e := New(Options{Mode: DeterministicRecord})
	rec := model.Record{"b": 2, "a": 1}
	rec2 := model.Record{"a": 1, "b": 2}

	id1, _ := e.Assign(rec)
	id2, _ := e.Assign(rec2)
	assert.Equal(t, id1, id2, "field order must not affect the derived id")
}

func TestDeterministicFieldsUsesOnlyListedFields(t *testing.T) {
	e := New(Options{Mode: DeterministicFields, IDFields: []string{"a", "b"}})
	id1, _ := e.Assign(model.Record{"a": 1, "b": 2, "c": "ignored"})
	id2, _ := e.Assign(model.Record{"a": 1, "b": 2, "c": "different"})
	assert.Equal(t, id1, id2)
}

func TestNaturalDiscoveryFindsFirstMatchingPattern(t *testing.T) {
	e := New(Options{Mode: NaturalDiscovery})
	id, natural := e.Assign(model.Record{"uuid": "abc-123", "id": nil})
	assert.True(t, natural)
	assert.Equal(t, "abc-123", id)
}

func TestNaturalDiscoverySkipsBlankAndFallsBackToRandom(t *testing.T) {
	e := New(Options{Mode: NaturalDiscovery})
	id, natural := e.Assign(model.Record{"id": "  "})
	assert.False(t, natural)
	assert.NotEmpty(t, id)
}

func TestNaturalDiscoveryUsesFallbackField(t *testing.T) {
	e := New(Options{Mode: NaturalDiscovery, FallbackField: "ref"})
	id, natural := e.Assign(model.Record{"ref": "r-1"})
	assert.True(t, natural)
	assert.Equal(t, "r-1", id)
}
