package source

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/IBM/sarama"

	pkgerrors "tableflow/pkg/errors"

	"tableflow/internal/model"
)

// KafkaConfig selects the topic and partition(s) a kafkaSource consumes
// from. It deliberately mirrors internal/writers/kafka.Config's
// broker/SASL fields rather than importing that package, keeping
// internal/source free of a dependency on a leaf writer module.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Partitions lists the partitions to consume; empty means "all
	// partitions the topic currently has".
	Partitions []int32
	// Oldest consumes from the earliest retained offset instead of only
	// new messages produced after the source starts.
	Oldest bool

	SASLUsername string
	SASLPassword string
}

func saramaConsumerConfig(cfg KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	if cfg.SASLUsername != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASLUsername
		sc.Net.SASL.Password = cfg.SASLPassword
	}
	return sc
}

// kafkaSource adapts one or more sarama.PartitionConsumer message streams
// into a single pull-based Source, fanning the per-partition channels into
// one buffered channel a single Next() caller drains. Grounded on the
// teacher's Kafka sink (internal/sinks/kafka_sink.go) for the Sarama
// config/SASL shape, turned from the producer side to the consumer side.
type kafkaSource struct {
	consumer sarama.Consumer
	parts    []sarama.PartitionConsumer

	messages chan *sarama.ConsumerMessage
	errs     chan error
	done     chan struct{}
	wg       sync.WaitGroup
	closeOnce sync.Once
}

// NewKafkaSource opens a sarama.Consumer against cfg.Brokers and starts a
// PartitionConsumer for each of cfg.Partitions (or every partition the
// topic reports, when Partitions is empty), merging their message streams
// into one Source.
func NewKafkaSource(cfg KafkaConfig) (Source, error) {
	if len(cfg.Brokers) == 0 {
		return nil, pkgerrors.Configf("source", "new_kafka_source", "no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, pkgerrors.Configf("source", "new_kafka_source", "no topic configured")
	}

	consumer, err := sarama.NewConsumer(cfg.Brokers, saramaConsumerConfig(cfg))
	if err != nil {
		return nil, pkgerrors.Outputf("source", "new_kafka_source", "cannot connect to kafka").Wrap(err)
	}

	partitions := cfg.Partitions
	if len(partitions) == 0 {
		partitions, err = consumer.Partitions(cfg.Topic)
		if err != nil {
			consumer.Close()
			return nil, pkgerrors.Outputf("source", "new_kafka_source", "cannot list partitions for topic %s", cfg.Topic).Wrap(err)
		}
	}

	offset := sarama.OffsetNewest
	if cfg.Oldest {
		offset = sarama.OffsetOldest
	}

	ks := &kafkaSource{
		consumer: consumer,
		messages: make(chan *sarama.ConsumerMessage, 256),
		errs:     make(chan error, len(partitions)),
		done:     make(chan struct{}),
	}

	for _, p := range partitions {
		pc, err := consumer.ConsumePartition(cfg.Topic, p, offset)
		if err != nil {
			ks.Close()
			return nil, pkgerrors.Outputf("source", "new_kafka_source", "cannot consume partition %d of topic %s", p, cfg.Topic).Wrap(err)
		}
		ks.parts = append(ks.parts, pc)
		ks.wg.Add(1)
		go ks.pump(pc)
	}

	return ks, nil
}

func (ks *kafkaSource) pump(pc sarama.PartitionConsumer) {
	defer ks.wg.Done()
	for {
		select {
		case <-ks.done:
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			select {
			case ks.messages <- msg:
			case <-ks.done:
				return
			}
		case err, ok := <-pc.Errors():
			if !ok {
				continue
			}
			select {
			case ks.errs <- err:
			case <-ks.done:
				return
			}
		}
	}
}

// Next blocks until the next Kafka message decodes into a record, a
// partition consumer reports an error (returned as an Output error), or the
// source is closed. A message that fails to decode is returned as a Parsing
// error, which recovery_mode can skip.
func (ks *kafkaSource) Next() (model.Record, error) {
	select {
	case msg, ok := <-ks.messages:
		if !ok {
			return nil, io.EOF
		}
		var r model.Record
		if err := json.Unmarshal(msg.Value, &r); err != nil {
			return nil, pkgerrors.Parsingf("source", "decode_kafka_message", "malformed message on topic %s partition %d offset %d", msg.Topic, msg.Partition, msg.Offset).Wrap(err)
		}
		return r, nil
	case err := <-ks.errs:
		return nil, pkgerrors.Outputf("source", "kafka_consume", "partition consumer error").Wrap(err)
	case <-ks.done:
		return nil, io.EOF
	}
}

func (ks *kafkaSource) Close() error {
	ks.closeOnce.Do(func() {
		close(ks.done)
		ks.wg.Wait()
		for _, pc := range ks.parts {
			pc.Close()
		}
		ks.consumer.Close()
	})
	return nil
}
