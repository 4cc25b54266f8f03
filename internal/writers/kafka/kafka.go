// Package kafka implements the Kafka writer (spec component C12) using
// github.com/IBM/sarama, with optional SASL/SCRAM auth via
// github.com/xdg-go/scram. One topic per table; each row is produced as a
// JSON message keyed by its identity field (or parent identity field, for
// child tables) so rows belonging to the same source record land on the
// same partition. Grounded on the teacher's Kafka sink
// (internal/sinks/kafka_sink.go) for the Sarama config shape and
// internal/sinks/kafka_scram.go for the SCRAM client adapter, adapted from a
// queue-plus-background-flush design to the pump's synchronous
// write-then-return call shape: WriteMainRecords/WriteChildRecords produce
// every row and wait for the producer's SyncProducer acks before returning.
package kafka

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"

	"tableflow/internal/model"
	"tableflow/internal/result"
	"tableflow/internal/writer"
	pkgerrors "tableflow/pkg/errors"
	"tableflow/pkg/ratelimit"
)

func init() {
	result.Register("kafka", func() writer.OneShotWriter { return &OneShot{Config: DefaultConfig()} })
}

// SASLMechanism selects the authentication mechanism.
type SASLMechanism string

const (
	SASLNone         SASLMechanism = ""
	SASLPlain        SASLMechanism = "plain"
	SASLScramSHA256  SASLMechanism = "scram-sha-256"
	SASLScramSHA512  SASLMechanism = "scram-sha-512"
)

// Config tunes the Kafka codec.
type Config struct {
	Brokers      []string            `yaml:"brokers"`
	TopicPrefix  string              `yaml:"topic_prefix"`
	RequiredAcks sarama.RequiredAcks `yaml:"required_acks"`
	Compression  string              `yaml:"compression"` // "none", "gzip", "snappy", "lz4", "zstd"

	SASLMechanism SASLMechanism `yaml:"sasl_mechanism"`
	SASLUsername  string        `yaml:"sasl_username"`
	SASLPassword  string        `yaml:"sasl_password"`

	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// DefaultConfig targets a local single-broker cluster with no auth, waiting
// for the leader's ack before WriteMainRecords/WriteChildRecords returns.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		RequiredAcks: sarama.WaitForLocal,
		Compression:  "none",
		RateLimit:    ratelimit.DefaultConfig(),
	}
}

func (c Config) topicName(table string) string {
	if c.TopicPrefix == "" {
		return table
	}
	return c.TopicPrefix + "-" + table
}

func compressionCodec(name string) sarama.CompressionCodec {
	switch strings.ToLower(name) {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}

func saramaConfig(cfg Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = cfg.RequiredAcks
	sc.Producer.Compression = compressionCodec(cfg.Compression)
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	if cfg.SASLMechanism != SASLNone {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASLUsername
		sc.Net.SASL.Password = cfg.SASLPassword
		switch cfg.SASLMechanism {
		case SASLPlain:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case SASLScramSHA256:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: sha256Generator}
			}
		case SASLScramSHA512:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: sha512Generator}
			}
		}
	}
	return sc
}

func newSyncProducer(cfg Config) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, pkgerrors.Configf("writers/kafka", "new_producer", "no brokers configured")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, pkgerrors.Outputf("writers/kafka", "new_producer", "cannot create kafka producer").Wrap(err)
	}
	return producer, nil
}

// produceRows sends rows to topic one message at a time, throttled by
// limiter: each send waits for a token and feeds its observed latency back
// into the limiter's rate so a broker under load gets fewer outstanding
// requests rather than a constant flood.
func produceRows(producer sarama.SyncProducer, limiter *ratelimit.Limiter, topic string, rows []model.Row, keyField string) error {
	for _, row := range rows {
		value, err := json.Marshal(row)
		if err != nil {
			return pkgerrors.Outputf("writers/kafka", "marshal_row", "cannot marshal row for topic %s", topic).Wrap(err)
		}
		msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
		if keyField != "" {
			if key, ok := row[keyField].(string); ok && key != "" {
				msg.Key = sarama.StringEncoder(key)
			}
		}
		for !limiter.Allow() {
			time.Sleep(10 * time.Millisecond)
		}
		start := time.Now()
		_, _, err = producer.SendMessage(msg)
		limiter.Adjust(time.Since(start))
		if err != nil {
			return pkgerrors.Outputf("writers/kafka", "send_message", "cannot produce message to topic %s", topic).Wrap(err)
		}
	}
	return nil
}

// OneShot writes a whole table in a single call.
type OneShot struct {
	Config   Config
	KeyField string
}

// Write implements writer.OneShotWriter. destination is used as the topic
// name.
func (w *OneShot) Write(rows []model.Row, destination string, opts writer.Options) (string, error) {
	producer, err := newSyncProducer(w.Config)
	if err != nil {
		return "", err
	}
	defer producer.Close()
	limiter := ratelimit.New(w.Config.RateLimit)
	if err := produceRows(producer, limiter, destination, rows, w.KeyField); err != nil {
		return "", err
	}
	return destination, nil
}

// WriteAll implements writer.OneShotWriter. baseDir is ignored; entity and
// child table names become topic names under Config.TopicPrefix.
func (w *OneShot) WriteAll(main []model.Row, childrenByTable map[string][]model.Row, baseDir, entity string, opts writer.Options) (map[string]string, error) {
	producer, err := newSyncProducer(w.Config)
	if err != nil {
		return nil, err
	}
	defer producer.Close()
	limiter := ratelimit.New(w.Config.RateLimit)

	topics := map[string]string{}
	if len(main) > 0 {
		topic := w.Config.topicName(entity)
		if err := produceRows(producer, limiter, topic, main, w.KeyField); err != nil {
			return nil, err
		}
		topics[entity] = topic
	}
	for table, rows := range childrenByTable {
		if len(rows) == 0 {
			continue
		}
		topic := w.Config.topicName(table)
		if err := produceRows(producer, limiter, topic, rows, w.KeyField); err != nil {
			return nil, err
		}
		topics[table] = topic
	}
	return topics, nil
}

// Writer is the streaming Kafka writer: every WriteMainRecords/
// WriteChildRecords call produces synchronously and waits for the
// configured ack level before returning.
type Writer struct {
	cfg         Config
	producer    sarama.SyncProducer
	limiter     *ratelimit.Limiter
	entity      string
	idField     string
	parentField string

	topics map[string]string
	closed bool
}

// NewStreamingWriter builds a streaming Kafka writer for entity. idField
// keys main-table messages; parentField keys child-table messages (so rows
// belonging to the same parent land on the same partition).
func NewStreamingWriter(cfg Config, entity, idField, parentField string) (*Writer, error) {
	producer, err := newSyncProducer(cfg)
	if err != nil {
		return nil, err
	}
	return &Writer{
		cfg:         cfg,
		producer:    producer,
		limiter:     ratelimit.New(cfg.RateLimit),
		entity:      entity,
		idField:     idField,
		parentField: parentField,
		topics:      map[string]string{},
	}, nil
}

// InitializeMainTable records the main table's target topic. Idempotent.
func (w *Writer) InitializeMainTable(schemaHint []string, opts writer.Options) error {
	w.topics["main"] = w.cfg.topicName(w.entity)
	return nil
}

// InitializeChildTable records name's target topic. Idempotent.
func (w *Writer) InitializeChildTable(name string, schemaHint []string, opts writer.Options) error {
	w.topics[name] = w.cfg.topicName(name)
	return nil
}

// WriteMainRecords produces rows to the main table's topic, keyed by the
// configured identity field.
func (w *Writer) WriteMainRecords(rows []model.Row) error {
	topic := w.topics["main"]
	if topic == "" {
		return pkgerrors.Outputf("writers/kafka", "write_main_records", "main table not initialized")
	}
	if err := produceRows(w.producer, w.limiter, topic, rows, w.idField); err != nil {
		return pkgerrors.Outputf("writers/kafka", "write_main_records", "produce failed for topic %s", topic).Wrap(err)
	}
	return nil
}

// WriteChildRecords produces rows to name's topic, keyed by the configured
// parent identity field.
func (w *Writer) WriteChildRecords(name string, rows []model.Row) error {
	topic := w.topics[name]
	if topic == "" {
		return pkgerrors.Outputf("writers/kafka", "write_child_records", "child table %s not initialized", name)
	}
	if err := produceRows(w.producer, w.limiter, topic, rows, w.parentField); err != nil {
		return pkgerrors.Outputf("writers/kafka", "write_child_records", "produce failed for topic %s", topic).Wrap(err)
	}
	return nil
}

// Finalize is a no-op: SyncProducer.SendMessage already waits for the
// configured ack level before returning.
func (w *Writer) Finalize() error { return nil }

// Close closes the underlying producer. Safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.producer.Close(); err != nil {
		return pkgerrors.Outputf("writers/kafka", "close", "cannot close producer").Wrap(err)
	}
	return nil
}

var (
	sha256Generator scram.HashGeneratorFcn = sha256.New
	sha512Generator scram.HashGeneratorFcn = sha512.New
)

// xdgSCRAMClient adapts github.com/xdg-go/scram to sarama.SCRAMClient,
// carried over from the teacher's Kafka sink unchanged: the SCRAM handshake
// itself has nothing to do with the log-capture domain it was written
// alongside.
type xdgSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (x *xdgSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

func (x *xdgSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

func (x *xdgSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}
