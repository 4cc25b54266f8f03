package elasticsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexNameAppliesPrefix(t *testing.T) {
	cfg := Config{IndexPrefix: "logs"}
	assert.Equal(t, "logs-orders", cfg.indexName("orders"))
}

func TestIndexNameWithoutPrefixUsesTableName(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, "orders", cfg.indexName("orders"))
}

func TestDefaultConfigTargetsLocalCluster(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Hosts)
	assert.Equal(t, 500, cfg.ChunkSize)
}
