package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"tableflow/internal/model"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestDefaultConfigUsesCSVWriterToOutputDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, WriterCSV, cfg.Writer)
	assert.Equal(t, "./output", cfg.OutputDir)
	assert.False(t, cfg.Streaming)
}

func TestDefaultConfigDisablesTracingAndDeduplication(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Tracing.Enabled)
	assert.False(t, cfg.Deduplication.Enabled)
}

func TestApplyEnvironmentOverridesWinsOverDefaults(t *testing.T) {
	t.Setenv("TABLEFLOW_ENTITY", "orders")
	t.Setenv("TABLEFLOW_WRITER", "jsonl")
	t.Setenv("TABLEFLOW_BATCH_SIZE", "500")

	cfg := DefaultConfig()
	applyEnvironmentOverrides(&cfg)

	assert.Equal(t, "orders", cfg.Entity)
	assert.Equal(t, WriterJSONL, cfg.Writer)
	assert.Equal(t, 500, cfg.Flatten.BatchSize)
}

func TestApplyEnvironmentOverridesLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.Entity
	applyEnvironmentOverrides(&cfg)
	assert.Equal(t, before, cfg.Entity)
}

func TestLoadWithoutFileAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, WriterCSV, cfg.Writer)
}

func TestLoadFromYAMLFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	yamlBody := "entity: orders\nwriter: parquet\noutput_dir: /tmp/out\n"
	assert.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "orders", cfg.Entity)
	assert.Equal(t, WriterParquet, cfg.Writer)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	// Fields the file doesn't mention keep their defaults.
	assert.Equal(t, model.DefaultConfig().Separator, cfg.Flatten.Separator)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/run.yaml")
	assert.Error(t, err)
}

func TestNewLoggerDefaultsToInfoOnInvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "not-a-level"
	logger := NewLogger(cfg)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewLoggerUsesJSONFormatterWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "json"
	logger := NewLogger(cfg)
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}
