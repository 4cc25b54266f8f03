package rowmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tableflow/internal/model"
)

func TestAnnotateInstallsGeneratedID(t *testing.T) {
	row := model.Row{"name": "alice"}
	cfg := DefaultConfig()

	got := Annotate(row, cfg, "abc-123", false, "", "2026-07-31 00:00:00.000000")

	assert.Equal(t, "abc-123", got["__extract_id"])
	assert.NotContains(t, got, "__parent_extract_id")
	assert.Equal(t, "2026-07-31 00:00:00.000000", got["__extract_datetime"])
}

func TestAnnotateSkipsIDWhenNatural(t *testing.T) {
	row := model.Row{"id": "natural-1"}
	cfg := DefaultConfig()

	got := Annotate(row, cfg, "natural-1", true, "", "")

	assert.NotContains(t, got, "__extract_id")
	assert.Equal(t, "natural-1", got["id"])
}

func TestAnnotateInstallsParentID(t *testing.T) {
	row := model.Row{}
	cfg := DefaultConfig()

	got := Annotate(row, cfg, "child-1", false, "parent-1", "")

	assert.Equal(t, "parent-1", got["__parent_extract_id"])
}

func TestAnnotateOmitsTimestampWhenFieldDisabled(t *testing.T) {
	row := model.Row{}
	cfg := Config{IDField: "id"}

	got := Annotate(row, cfg, "x", false, "", "2026-07-31")

	assert.NotContains(t, got, "__extract_datetime")
}
