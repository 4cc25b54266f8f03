package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKafkaSourceRequiresBrokers(t *testing.T) {
	_, err := NewKafkaSource(KafkaConfig{Topic: "records"})
	assert.Error(t, err)
}

func TestNewKafkaSourceRequiresTopic(t *testing.T) {
	_, err := NewKafkaSource(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
