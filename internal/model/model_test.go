package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextDescendIsImmutable(t *testing.T) {
	root := NewContext("2026-07-31 00:00:00.000000")
	child := root.Descend("a").Descend("b")

	assert.Equal(t, 0, root.CurrentDepth)
	assert.Empty(t, root.PathComponents)
	assert.Equal(t, 2, child.CurrentDepth)
	assert.Equal(t, "a_b", child.BuildPath("_"))
	assert.Equal(t, root.ExtractTime, child.ExtractTime)
}

func TestContextReset(t *testing.T) {
	c := NewContext("ts").Descend("a").Descend("b")
	r := c.Reset()

	assert.Equal(t, 0, r.CurrentDepth)
	assert.Empty(t, r.PathComponents)
	assert.Equal(t, "ts", r.ExtractTime)
}

func TestDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidateRejectsEmptySeparator(t *testing.T) {
	c := DefaultConfig()
	c.Separator = ""
	assert.Error(t, c.Validate())
}

func TestConfigValidateRejectsDuplicateReservedFields(t *testing.T) {
	c := DefaultConfig()
	c.ParentField = c.IDField
	assert.Error(t, c.Validate())
}

func TestConfigValidateRejectsNonPositiveBatchSize(t *testing.T) {
	c := DefaultConfig()
	c.BatchSize = 0
	assert.Error(t, c.Validate())
}

func TestConfigValidateRejectsUnknownArrayMode(t *testing.T) {
	c := DefaultConfig()
	c.ArrayMode = "bogus"
	assert.Error(t, c.Validate())
}
