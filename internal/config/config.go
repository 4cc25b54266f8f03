// Package config loads and validates the settings for one tableflow run:
// the flattening/identity engine's tunables, which writer to use and how
// to reach it, and the resilience packages the pump wires around the
// writer. Adapted from the teacher's LoadConfig/applyDefaults/ValidateConfig
// pipeline, narrowed from an always-on daemon's many subsystem configs down
// to the handful a one-shot (or long-lived streaming) flattening run
// actually has.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"tableflow/internal/model"
	"tableflow/internal/writers/csv"
	"tableflow/internal/writers/elasticsearch"
	"tableflow/internal/writers/kafka"
	"tableflow/internal/writers/parquet"
	"tableflow/pkg/backpressure"
	"tableflow/pkg/circuit"
	"tableflow/pkg/deduplication"
	"tableflow/pkg/degradation"
	"tableflow/pkg/dlq"
	pkgerrors "tableflow/pkg/errors"
	"tableflow/pkg/ratelimit"
	"tableflow/pkg/secrets"
	"tableflow/pkg/slo"
	"tableflow/pkg/tracing"
)

// WriterFormat selects which writer implementation a run uses. It matches
// the format string internal/result's registry is keyed by.
type WriterFormat string

const (
	WriterCSV           WriterFormat = "csv"
	WriterJSONL         WriterFormat = "jsonl"
	WriterParquet       WriterFormat = "parquet"
	WriterElasticsearch WriterFormat = "elasticsearch"
	WriterKafka         WriterFormat = "kafka"
)

// fileWriters output to OutputDir; the rest reach a remote sink directly.
var fileWriters = map[WriterFormat]bool{
	WriterCSV:     true,
	WriterJSONL:   true,
	WriterParquet: true,
}

func knownWriter(w WriterFormat) bool {
	switch w {
	case WriterCSV, WriterJSONL, WriterParquet, WriterElasticsearch, WriterKafka:
		return true
	default:
		return false
	}
}

// RunConfig is the full set of tunables for one tableflow run. It is the
// single source of truth LoadConfig produces; every downstream component
// takes its narrower Options/Config from fields of this struct instead of
// duplicating the settings.
type RunConfig struct {
	// Flatten governs the flattener, array extractor, and identity engine
	// (spec components C1-C7).
	Flatten model.Config `yaml:"flatten"`

	// Entity names the main table; child tables are named
	// entity_separator_path.
	Entity string `yaml:"entity"`
	// Writer selects which internal/writers/* implementation processes
	// this run's output.
	Writer WriterFormat `yaml:"writer"`
	// OutputDir is the destination directory for file-based writers
	// (csv, jsonl, parquet). Ignored by remote-sink writers.
	OutputDir string `yaml:"output_dir"`
	// Streaming selects the batch pump's streaming path (FlattenStream)
	// over the buffer-everything path (FlattenAll).
	Streaming bool `yaml:"streaming"`

	CSV           csv.Config           `yaml:"csv"`
	Parquet       parquet.Config       `yaml:"parquet"`
	Elasticsearch elasticsearch.Config `yaml:"elasticsearch"`
	Kafka         kafka.Config         `yaml:"kafka"`

	DLQ           dlq.Config           `yaml:"dlq"`
	Backpressure  backpressure.Config  `yaml:"backpressure"`
	Circuit       circuit.Config       `yaml:"circuit"`
	RateLimit     ratelimit.Config     `yaml:"rate_limit"`
	Degradation   degradation.Config  `yaml:"degradation"`
	Deduplication deduplication.Config `yaml:"deduplication"`
	Secrets       secrets.Config       `yaml:"secrets"`
	SLO           slo.Objective        `yaml:"slo"`
	Tracing       tracing.Config       `yaml:"tracing"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns the documented defaults for every option: flatten
// entity "record", CSV output to ./output, every resilience package at its
// own package default, tracing and dedup off.
func DefaultConfig() RunConfig {
	return RunConfig{
		Flatten:   model.DefaultConfig(),
		Entity:    "record",
		Writer:    WriterCSV,
		OutputDir: "./output",
		Streaming: false,

		CSV:           csv.DefaultConfig(),
		Parquet:       parquet.DefaultConfig(),
		Elasticsearch: elasticsearch.DefaultConfig(),
		Kafka:         kafka.DefaultConfig(),

		DLQ:           dlq.DefaultConfig(),
		Backpressure:  backpressure.DefaultConfig(),
		Circuit:       circuit.DefaultConfig("writer"),
		RateLimit:     ratelimit.DefaultConfig(),
		Degradation:   degradation.DefaultConfig(),
		Deduplication: deduplication.DefaultConfig(),
		Secrets:       secrets.DefaultConfig(),
		SLO:           slo.DefaultObjective(),
		Tracing:       tracing.DefaultConfig(),

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load builds a RunConfig: defaults, overlaid with configFile's YAML (if
// non-empty), overlaid with TABLEFLOW_* environment variables, then
// validated. It mirrors the teacher's LoadConfig three-stage precedence
// (defaults -> file -> environment) without the daemon-only subsystems
// that have no analogue here.
func Load(configFile string) (*RunConfig, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		if err := loadConfigFile(configFile, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadConfigFile(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pkgerrors.Configf("config", "load_file", "cannot read %s", path).Wrap(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return pkgerrors.Configf("config", "parse_file", "cannot parse %s", path).Wrap(err)
	}
	return nil
}

// applyEnvironmentOverrides lets environment variables win over both
// defaults and the config file, the same precedence order the teacher's
// applyEnvironmentOverrides enforces.
func applyEnvironmentOverrides(cfg *RunConfig) {
	cfg.Entity = getEnvString("TABLEFLOW_ENTITY", cfg.Entity)
	cfg.Writer = WriterFormat(getEnvString("TABLEFLOW_WRITER", string(cfg.Writer)))
	cfg.OutputDir = getEnvString("TABLEFLOW_OUTPUT_DIR", cfg.OutputDir)
	cfg.Streaming = getEnvBool("TABLEFLOW_STREAMING", cfg.Streaming)
	cfg.LogLevel = getEnvString("TABLEFLOW_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("TABLEFLOW_LOG_FORMAT", cfg.LogFormat)

	cfg.Flatten.Separator = getEnvString("TABLEFLOW_SEPARATOR", cfg.Flatten.Separator)
	cfg.Flatten.BatchSize = getEnvInt("TABLEFLOW_BATCH_SIZE", cfg.Flatten.BatchSize)
	cfg.Flatten.MaxDepth = getEnvInt("TABLEFLOW_MAX_DEPTH", cfg.Flatten.MaxDepth)

	cfg.Elasticsearch.Hosts = getEnvStringSlice("TABLEFLOW_ES_HOSTS", cfg.Elasticsearch.Hosts)
	cfg.Elasticsearch.IndexPrefix = getEnvString("TABLEFLOW_ES_INDEX_PREFIX", cfg.Elasticsearch.IndexPrefix)
	cfg.Elasticsearch.Username = getEnvString("TABLEFLOW_ES_USERNAME", cfg.Elasticsearch.Username)
	cfg.Elasticsearch.PasswordEnv = getEnvString("TABLEFLOW_ES_PASSWORD_ENV", cfg.Elasticsearch.PasswordEnv)
	cfg.Elasticsearch.APIKeyEnv = getEnvString("TABLEFLOW_ES_API_KEY_ENV", cfg.Elasticsearch.APIKeyEnv)

	cfg.Kafka.Brokers = getEnvStringSlice("TABLEFLOW_KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicPrefix = getEnvString("TABLEFLOW_KAFKA_TOPIC_PREFIX", cfg.Kafka.TopicPrefix)
	cfg.Kafka.SASLUsername = getEnvString("TABLEFLOW_KAFKA_SASL_USERNAME", cfg.Kafka.SASLUsername)
	cfg.Kafka.SASLPassword = getEnvString("TABLEFLOW_KAFKA_SASL_PASSWORD", cfg.Kafka.SASLPassword)

	cfg.DLQ.Enabled = getEnvBool("TABLEFLOW_DLQ_ENABLED", cfg.DLQ.Enabled)
	cfg.DLQ.Directory = getEnvString("TABLEFLOW_DLQ_DIRECTORY", cfg.DLQ.Directory)
	cfg.Deduplication.Enabled = getEnvBool("TABLEFLOW_DEDUP_ENABLED", cfg.Deduplication.Enabled)
	cfg.Tracing.Enabled = getEnvBool("TABLEFLOW_TRACING_ENABLED", cfg.Tracing.Enabled)
}

// Validate checks the configuration-error conditions a run can't recover
// from at construction time: an invalid flatten config, an unknown writer,
// a file-based writer with no output directory, or a remote-sink writer
// with no reachable hosts/brokers configured.
func (c RunConfig) Validate() error {
	if err := c.Flatten.Validate(); err != nil {
		return pkgerrors.Configf("config", "validate_flatten", "%v", err)
	}
	if c.Entity == "" {
		return pkgerrors.Configf("config", "validate_entity", "entity must be non-empty")
	}
	if !knownWriter(c.Writer) {
		return pkgerrors.Configf("config", "validate_writer", "unknown writer: %q", c.Writer)
	}
	if fileWriters[c.Writer] && c.OutputDir == "" {
		return pkgerrors.Configf("config", "validate_output_dir", "output_dir is required for writer %q", c.Writer)
	}
	if c.Writer == WriterElasticsearch && len(c.Elasticsearch.Hosts) == 0 {
		return pkgerrors.Configf("config", "validate_elasticsearch", "elasticsearch.hosts must list at least one host")
	}
	if c.Writer == WriterKafka && len(c.Kafka.Brokers) == 0 {
		return pkgerrors.Configf("config", "validate_kafka", "kafka.brokers must list at least one broker")
	}
	if c.Elasticsearch.ChunkSize < 0 {
		return pkgerrors.Configf("config", "validate_elasticsearch", "elasticsearch.chunk_size must not be negative")
	}
	if c.DLQ.Enabled && c.DLQ.Directory == "" {
		return pkgerrors.Configf("config", "validate_dlq", "dlq.directory is required when dlq.enabled is true")
	}
	return nil
}

// NewLogger builds the logrus logger a run's components log through,
// configured from cfg's LogLevel/LogFormat exactly as the teacher's App
// constructor configures its own logger.
func NewLogger(cfg RunConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	return logger
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// String implements fmt.Stringer so a RunConfig prints usefully in logs
// without dumping secrets: it prints only the entity, writer, streaming flag
// and output directory, never the writer configs (the Kafka SASL password
// is held directly in kafka.Config).
func (c RunConfig) String() string {
	return fmt.Sprintf("RunConfig{entity=%s writer=%s streaming=%t output_dir=%s}",
		c.Entity, c.Writer, c.Streaming, c.OutputDir)
}
