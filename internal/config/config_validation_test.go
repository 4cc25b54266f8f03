package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsEmptyEntity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Entity = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownWriter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer = WriterFormat("xml")
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsFileWriterWithNoOutputDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer = WriterCSV
	cfg.OutputDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateAllowsRemoteWriterWithNoOutputDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer = WriterElasticsearch
	cfg.OutputDir = ""
	cfg.Elasticsearch.Hosts = []string{"http://localhost:9200"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsElasticsearchWithNoHosts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer = WriterElasticsearch
	cfg.Elasticsearch.Hosts = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsKafkaWithNoBrokers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer = WriterKafka
	cfg.Kafka.Brokers = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeElasticsearchChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Elasticsearch.ChunkSize = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDLQEnabledWithNoDirectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DLQ.Enabled = true
	cfg.DLQ.Directory = ""
	assert.Error(t, cfg.Validate())
}

func TestValidatePropagatesFlattenValidationErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flatten.Separator = ""
	assert.Error(t, cfg.Validate())
}

func TestValidatePassesWithDefaults(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
