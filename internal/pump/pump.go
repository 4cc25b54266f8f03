// Package pump implements the batch pump (spec component C8): the loop that
// pulls records from an input iterator, drives the hierarchy driver over
// fixed-size batches, and routes the resulting rows either into an in-memory
// result container (FlattenAll) or to a streaming writer (FlattenStream).
// It also owns the run's single captured timestamp and wires the optional
// resilience components (DLQ, circuit breaker, backpressure, degradation,
// deduplication, SLO tracking) around the writer boundary.
package pump

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"tableflow/internal/hierarchy"
	"tableflow/internal/model"
	"tableflow/internal/result"
	"tableflow/internal/source"
	"tableflow/internal/writer"
	"tableflow/pkg/backpressure"
	"tableflow/pkg/circuit"
	"tableflow/pkg/deduplication"
	"tableflow/pkg/degradation"
	"tableflow/pkg/dlq"
	pkgerrors "tableflow/pkg/errors"
	"tableflow/pkg/metrics"
	"tableflow/pkg/slo"
	"tableflow/pkg/tracing"
)

// Config bundles the core transformation config with the pump's optional
// resilience collaborators. Every resilience field is a no-op when nil, so
// a bare Config{Core: ...} is a complete, purely-synchronous pump.
type Config struct {
	Core   model.Config
	Entity string

	DLQ          *dlq.Queue
	Breaker      *circuit.Breaker
	Backpressure *backpressure.Monitor
	Degradation  *degradation.Manager
	Dedup        *deduplication.Manager
	SLO          *slo.Tracker
}

// QueueDepthReporter is an optional interface a StreamingWriter may
// implement to report how many batches are still buffered ahead of its
// durable-flush point (e.g. a Kafka producer's internal queue). The pump
// feeds this into the backpressure monitor instead of assuming zero.
type QueueDepthReporter interface {
	PendingBatches() int
}

// Pump drives one processing run: one Pump per run, not reused across runs,
// matching the "each run owns its context, buffers, and writer" resource
// model.
type Pump struct {
	cfg    Config
	driver *hierarchy.Driver
	log    *logrus.Entry
}

// New builds a Pump. cfg.Core is validated by the caller (internal/config)
// before reaching here.
func New(cfg Config, log *logrus.Entry) *Pump {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pump{cfg: cfg, driver: hierarchy.New(cfg.Core, log), log: log}
}

func (p *Pump) batchSize() int {
	if p.cfg.Core.BatchSize > 0 {
		return p.cfg.Core.BatchSize
	}
	return model.DefaultConfig().BatchSize
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// handleRecordError applies recovery_mode to a Parsing/Processing error
// raised while pulling or decoding one record. It returns true when the run
// should continue (the record was logged/dead-lettered and skipped) and
// false when the run must abort.
func (p *Pump) handleRecordError(err error) bool {
	pe, ok := err.(*pkgerrors.Error)
	if !ok || !pe.Kind.Recoverable() {
		return false
	}
	if p.cfg.Core.RecoveryMode != model.RecoverySkip {
		return false
	}

	p.log.WithError(err).Warn("pump: skipping unrecoverable record")
	metrics.RecordProcessed(p.cfg.Entity, "skipped")
	if p.cfg.DLQ != nil {
		p.cfg.DLQ.Add(string(pe.Kind), err, nil)
		metrics.DLQEntriesTotal.Inc()
	}
	if p.cfg.SLO != nil {
		p.cfg.SLO.RecordError()
	}
	return true
}

// FlattenAll runs the non-streaming path: pulls every record from data,
// processes it in batch_size chunks, and returns a Result holding the
// accumulated main and child tables. traceCtx traces each batch as a child
// span of whatever span (if any) is already active on it.
func (p *Pump) FlattenAll(traceCtx context.Context, data interface{}) (*result.Result, error) {
	src, err := source.New(data)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	recordCtx := model.NewContext(nowStamp())
	batchSize := p.batchSize()

	mainRows := make([]model.Row, 0, batchSize)
	childTables := map[string][]model.Row{}

	buffer := make([]model.Record, 0, batchSize)
	flush := func() {
		if len(buffer) == 0 {
			return
		}
		_, span := tracing.StartBatch(traceCtx, p.cfg.Entity, len(buffer))
		rows, children := p.driver.ProcessBatch(buffer, p.cfg.Entity, recordCtx)
		tracing.End(span, nil)
		mainRows = append(mainRows, rows...)
		for table, rs := range children {
			childTables[table] = append(childTables[table], rs...)
		}
		metrics.RecordProcessed(p.cfg.Entity, "ok")
		if p.cfg.SLO != nil {
			p.cfg.SLO.RecordRows(int64(len(rows)))
		}
		buffer = buffer[:0]
	}

	for {
		rec, nextErr := src.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			if !p.handleRecordError(nextErr) {
				return nil, nextErr
			}
			continue
		}
		buffer = append(buffer, rec)
		if len(buffer) >= batchSize {
			flush()
		}
	}
	flush()

	return result.New(p.cfg.Entity, mainRows, childTables), nil
}

// FlattenStream runs the streaming path: pulls every record from data,
// processes it in batches sized per the pump's current (possibly degraded)
// batch size, and forwards rows to w as they're produced, never holding more
// than one batch's rows in memory. Returns after calling w.Finalize and
// w.Close. traceCtx traces each batch (flatten+extract and the subsequent
// writer call) as child spans of whatever span (if any) is already active
// on it.
func (p *Pump) FlattenStream(traceCtx context.Context, data interface{}, w writer.StreamingWriter) error {
	src, err := source.New(data)
	if err != nil {
		return err
	}
	defer src.Close()

	recordCtx := model.NewContext(nowStamp())
	batchSize := p.batchSize()

	mainInit := false
	childInit := map[string]bool{}
	buffer := make([]model.Record, 0, batchSize)

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		start := time.Now()
		batchTraceCtx, batchSpan := tracing.StartBatch(traceCtx, p.cfg.Entity, len(buffer))

		_, flattenSpan := tracing.StartStage(batchTraceCtx, "flatten_extract")
		var kept []model.Row
		childrenByTable := map[string][]model.Row{}
		for _, rec := range buffer {
			mainRow, children := p.driver.Process(rec, p.cfg.Entity, recordCtx, "")
			if len(mainRow) == 0 {
				continue
			}
			if p.cfg.Dedup != nil && p.cfg.Dedup.Enabled() {
				if idVal, ok := mainRow[p.cfg.Core.IDField].(string); ok && idVal != "" {
					if p.cfg.Dedup.SeenBefore(deduplication.Key(idVal)) {
						metrics.RowsDeduplicatedTotal.Inc()
						continue
					}
				}
			}
			kept = append(kept, mainRow)
			for table, rs := range children {
				childrenByTable[table] = append(childrenByTable[table], rs...)
			}
		}
		tracing.End(flattenSpan, nil)

		_, writeSpan := tracing.StartStage(batchTraceCtx, "write")
		writeErr := p.writeBatch(w, &mainInit, childInit, kept, childrenByTable)
		tracing.End(writeSpan, writeErr)
		tracing.End(batchSpan, writeErr)

		took := time.Since(start)
		metrics.RecordFlush("stream", len(kept), took)
		metrics.RecordProcessed(p.cfg.Entity, "ok")
		if p.cfg.SLO != nil {
			p.cfg.SLO.RecordRows(int64(len(kept)))
		}
		if p.cfg.Backpressure != nil {
			pending := 0
			if reporter, ok := w.(QueueDepthReporter); ok {
				pending = reporter.PendingBatches()
			}
			level := p.cfg.Backpressure.Observe(took, pending)
			metrics.BackpressureLevel.Set(float64(level))
			if p.cfg.Degradation != nil {
				p.cfg.Degradation.Update(level)
			}
			batchSize = p.cfg.Backpressure.RecommendedBatchSize()
		}

		buffer = buffer[:0]
		return writeErr
	}

	for {
		rec, nextErr := src.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			if !p.handleRecordError(nextErr) {
				return nextErr
			}
			continue
		}
		buffer = append(buffer, rec)
		if len(buffer) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if err := w.Finalize(); err != nil {
		return pkgerrors.Outputf("pump", "finalize", "writer finalize failed").Wrap(err)
	}
	return w.Close()
}

// writeBatch pushes kept rows and childrenByTable to w, lazily initializing
// each table on first write and routing every call through the circuit
// breaker when one is configured.
func (p *Pump) writeBatch(w writer.StreamingWriter, mainInit *bool, childInit map[string]bool, kept []model.Row, childrenByTable map[string][]model.Row) error {
	call := func(fn func() error) error {
		if p.cfg.Breaker != nil {
			return p.cfg.Breaker.Call(fn)
		}
		return fn()
	}

	if len(kept) > 0 {
		if !*mainInit {
			if err := call(func() error { return w.InitializeMainTable(schemaHint(kept), nil) }); err != nil {
				return pkgerrors.Outputf("pump", "initialize_main_table", "writer initialization failed").Wrap(err)
			}
			*mainInit = true
		}
		if err := call(func() error { return w.WriteMainRecords(kept) }); err != nil {
			return pkgerrors.Outputf("pump", "write_main_records", "writer failed").Wrap(err)
		}
		metrics.RecordRowsWritten(p.cfg.Entity, "stream", len(kept))
	}

	for table, rows := range childrenByTable {
		if len(rows) == 0 {
			continue
		}
		table, rows := table, rows
		if !childInit[table] {
			if err := call(func() error { return w.InitializeChildTable(table, schemaHint(rows), nil) }); err != nil {
				return pkgerrors.Outputf("pump", "initialize_child_table", "writer initialization failed for table %s", table).Wrap(err)
			}
			childInit[table] = true
		}
		if err := call(func() error { return w.WriteChildRecords(table, rows) }); err != nil {
			return pkgerrors.Outputf("pump", "write_child_records", "writer failed for table %s", table).Wrap(err)
		}
		metrics.RecordRowsWritten(table, "stream", len(rows))
	}

	return nil
}

// schemaHint returns the union of keys across rows (the table's first
// batch), so a writer that fixes its schema up front sees every column the
// batch carries.
func schemaHint(rows []model.Row) []string {
	seen := map[string]bool{}
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Stats summarizes a completed (or in-progress) run's resilience state, for
// a caller that wants to log or surface it after FlattenAll/FlattenStream
// returns.
type Stats struct {
	SLO          slo.Snapshot
	Dedup        deduplication.Stats
	DLQ          dlq.Stats
	Backpressure backpressure.Level
}

// Stats reads the current state of every configured resilience collaborator.
// Fields for unconfigured collaborators are left at their zero value.
func (p *Pump) Stats() Stats {
	var s Stats
	if p.cfg.SLO != nil {
		s.SLO = p.cfg.SLO.Snapshot()
	}
	if p.cfg.Dedup != nil {
		s.Dedup = p.cfg.Dedup.Stats()
	}
	if p.cfg.DLQ != nil {
		s.DLQ = p.cfg.DLQ.Stats()
	}
	if p.cfg.Backpressure != nil {
		s.Backpressure = p.cfg.Backpressure.Level()
	}
	return s
}
