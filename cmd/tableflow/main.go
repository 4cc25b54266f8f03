// Command tableflow drives one flattening run from the command line:
// config in, a source adapted from a file/stdin, the pump over it, and the
// configured writer out. It replaces the teacher's cmd/main.go (config file
// -> App.Run()'s HTTP daemon) with the equivalent wiring for a one-shot (or
// long-lived streaming) library call instead of an always-on service --
// there is no request handler here, just a single FlattenAll/FlattenStream
// invocation bookended by config loading and stats logging.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"github.com/sirupsen/logrus"

	"tableflow/internal/app"
	"tableflow/internal/config"
	"tableflow/internal/pump"
	"tableflow/internal/writer"
	"tableflow/internal/writers/csv"
	"tableflow/internal/writers/elasticsearch"
	"tableflow/internal/writers/jsonl"
	"tableflow/internal/writers/kafka"
	"tableflow/internal/writers/parquet"
	"tableflow/pkg/backpressure"
	"tableflow/pkg/circuit"
	"tableflow/pkg/deduplication"
	"tableflow/pkg/degradation"
	"tableflow/pkg/dlq"
	"tableflow/pkg/slo"
	"tableflow/pkg/tracing"
)

func main() {
	var (
		configFile  string
		inputPath   string
		statusAddr  string
	)
	flag.StringVar(&configFile, "config", "", "path to a YAML config file (optional; defaults and TABLEFLOW_* env vars apply regardless)")
	flag.StringVar(&inputPath, "input", "-", "input source: a file path ending in .json/.jsonl/.ndjson, or '-' to read JSON/JSONL from stdin")
	flag.StringVar(&statusAddr, "status-addr", "", "optional host:port to serve /health and /metrics on while the run executes")
	flag.Parse()

	if err := run(configFile, inputPath, statusAddr); err != nil {
		fmt.Fprintln(os.Stderr, "tableflow:", err)
		os.Exit(1)
	}
}

func run(configFile, inputPath, statusAddr string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := config.NewLogger(*cfg)
	log := logrus.NewEntry(logger)
	log.WithField("config", cfg.String()).Info("tableflow: starting run")

	otel.SetTracerProvider(tracing.NewProvider(cfg.Tracing))

	if statusAddr != "" {
		status := app.NewStatusServer(statusAddr, log)
		status.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := status.Stop(ctx); err != nil {
				log.WithError(err).Warn("tableflow: status server shutdown error")
			}
		}()
	}

	p, err := buildPump(*cfg, log)
	if err != nil {
		return err
	}

	data, err := readInput(inputPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if cfg.Streaming {
		w, err := buildStreamingWriter(*cfg)
		if err != nil {
			return err
		}
		if err := p.FlattenStream(ctx, data, w); err != nil {
			return err
		}
	} else {
		res, err := p.FlattenAll(ctx, data)
		if err != nil {
			return err
		}
		written, err := res.Save(destinationFor(*cfg), string(cfg.Writer), writer.Options{})
		if err != nil {
			return err
		}
		log.WithField("written", written).Info("tableflow: run complete")
	}

	stats := p.Stats()
	log.WithFields(logrus.Fields{
		"dedup_seen":       stats.Dedup.Seen,
		"dedup_duplicates": stats.Dedup.Duplicates,
		"dlq_entries":      stats.DLQ.TotalEntries,
		"backpressure":     stats.Backpressure.String(),
	}).Info("tableflow: final stats")
	return nil
}

// destinationFor returns the path handed to result.Save: always OutputDir
// itself, for every writer, so a multi-table result fans out underneath it.
func destinationFor(cfg config.RunConfig) string {
	return cfg.OutputDir
}

func readInput(path string) (interface{}, error) {
	if path == "-" {
		body, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return body, nil
	}
	return path, nil
}

// buildPump assembles the resilience collaborators named in cfg and wires
// them into a pump.Config. The circuit breaker, SLO tracker, backpressure
// monitor and degradation manager are always built; deduplication and the
// DLQ are built only when their Config's Enabled flag is set, and are left
// nil on the pump.Config otherwise, which the pump treats as "not
// configured".
func buildPump(cfg config.RunConfig, log *logrus.Entry) (*pump.Pump, error) {
	pumpCfg := pump.Config{
		Core:    cfg.Flatten,
		Entity:  cfg.Entity,
		Breaker: circuit.New(cfg.Circuit, log),
		SLO:     slo.New(cfg.SLO),
	}

	pumpCfg.Backpressure = backpressure.New(cfg.Backpressure, cfg.Flatten.BatchSize, log)
	pumpCfg.Degradation = degradation.New(cfg.Degradation, log)

	if cfg.Deduplication.Enabled {
		pumpCfg.Dedup = deduplication.New(cfg.Deduplication)
	}

	if cfg.DLQ.Enabled {
		queue, err := dlq.New(cfg.DLQ, log)
		if err != nil {
			return nil, err
		}
		pumpCfg.DLQ = queue
	}

	return pump.New(pumpCfg, log), nil
}

func buildStreamingWriter(cfg config.RunConfig) (writer.StreamingWriter, error) {
	switch cfg.Writer {
	case config.WriterCSV:
		return csv.NewStreamingWriter(cfg.OutputDir, cfg.Entity, cfg.CSV), nil
	case config.WriterJSONL:
		return jsonl.NewStreamingWriter(cfg.OutputDir, cfg.Entity), nil
	case config.WriterParquet:
		return parquet.NewStreamingWriter(cfg.OutputDir, cfg.Entity, cfg.Parquet), nil
	case config.WriterElasticsearch:
		return elasticsearch.NewStreamingWriter(cfg.Elasticsearch, cfg.Entity)
	case config.WriterKafka:
		return kafka.NewStreamingWriter(cfg.Kafka, cfg.Entity, cfg.Flatten.IDField, cfg.Flatten.ParentField)
	default:
		return nil, fmt.Errorf("unknown writer: %s", cfg.Writer)
	}
}
