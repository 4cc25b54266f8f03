package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
)

func TestTopicNameAppliesPrefix(t *testing.T) {
	cfg := Config{TopicPrefix: "events"}
	assert.Equal(t, "events-orders", cfg.topicName("orders"))
}

func TestTopicNameWithoutPrefixUsesTableName(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, "orders", cfg.topicName("orders"))
}

func TestCompressionCodecMapsKnownNames(t *testing.T) {
	assert.Equal(t, sarama.CompressionGZIP, compressionCodec("gzip"))
	assert.Equal(t, sarama.CompressionSnappy, compressionCodec("snappy"))
	assert.Equal(t, sarama.CompressionLZ4, compressionCodec("lz4"))
	assert.Equal(t, sarama.CompressionZSTD, compressionCodec("zstd"))
	assert.Equal(t, sarama.CompressionNone, compressionCodec("unknown"))
}

func TestSaramaConfigEnablesSASLForScram(t *testing.T) {
	cfg := Config{SASLMechanism: SASLScramSHA256, SASLUsername: "u", SASLPassword: "p"}
	sc := saramaConfig(cfg)
	assert.True(t, sc.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLTypeSCRAMSHA256, sc.Net.SASL.Mechanism)
	assert.NotNil(t, sc.Net.SASL.SCRAMClientGeneratorFunc)
}

func TestSaramaConfigLeavesSASLDisabledByDefault(t *testing.T) {
	sc := saramaConfig(DefaultConfig())
	assert.False(t, sc.Net.SASL.Enable)
}
