// Package elasticsearch implements the Elasticsearch writer (spec component
// C12) using github.com/elastic/go-elasticsearch/v8 and its esapi bulk
// endpoint. One index per table; documents are bulk-indexed in
// worker-pool-parallelized chunks so a single WriteMainRecords/
// WriteChildRecords call stays synchronous from the pump's point of view
// while still issuing several concurrent HTTP requests, grounded on the
// teacher's Elasticsearch sink (internal/sinks/elasticsearch_sink.go) and its
// bulk-request construction.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	"tableflow/internal/model"
	"tableflow/internal/result"
	"tableflow/internal/writer"
	pkgerrors "tableflow/pkg/errors"
	"tableflow/pkg/ratelimit"
	"tableflow/pkg/secrets"
	"tableflow/pkg/workerpool"
)

func init() {
	result.Register("elasticsearch", func() writer.OneShotWriter { return &OneShot{Config: DefaultConfig()} })
	result.Register("es", func() writer.OneShotWriter { return &OneShot{Config: DefaultConfig()} })
}

// Config tunes the Elasticsearch codec.
type Config struct {
	Hosts         []string          `yaml:"hosts"`
	IndexPrefix   string            `yaml:"index_prefix"`
	Username      string            `yaml:"username"`
	PasswordEnv   string            `yaml:"password_env"`
	APIKeyEnv     string            `yaml:"api_key_env"`
	ChunkSize     int               `yaml:"chunk_size"`
	RefreshPolicy string            `yaml:"refresh_policy"`
	Pool          workerpool.Config `yaml:"pool"`
	Secrets       secrets.Config    `yaml:"secrets"`
	RateLimit     ratelimit.Config  `yaml:"rate_limit"`
	Log           *logrus.Entry     `yaml:"-"`
}

// DefaultConfig targets a local single-node cluster with no auth.
func DefaultConfig() Config {
	return Config{
		Hosts:         []string{"http://localhost:9200"},
		ChunkSize:     500,
		RefreshPolicy: "false",
		Pool:          workerpool.DefaultConfig(),
		Secrets:       secrets.DefaultConfig(),
		RateLimit:     ratelimit.DefaultConfig(),
	}
}

func (c Config) logger() *logrus.Entry {
	if c.Log != nil {
		return c.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (c Config) indexName(table string) string {
	if c.IndexPrefix == "" {
		return table
	}
	return c.IndexPrefix + "-" + table
}

func newClient(cfg Config) (*elasticsearch.Client, error) {
	escfg := elasticsearch.Config{
		Addresses: cfg.Hosts,
		Username:  cfg.Username,
		Transport: &http.Transport{MaxIdleConns: 10, IdleConnTimeout: 30 * time.Second},
	}
	if cfg.PasswordEnv != "" {
		mgr := secrets.New(cfg.Secrets)
		pw, err := mgr.Get(cfg.PasswordEnv)
		if err != nil {
			return nil, pkgerrors.Outputf("writers/elasticsearch", "resolve_password", "cannot resolve password secret").Wrap(err)
		}
		escfg.Password = pw
	}
	if cfg.APIKeyEnv != "" {
		mgr := secrets.New(cfg.Secrets)
		key, err := mgr.Get(cfg.APIKeyEnv)
		if err != nil {
			return nil, pkgerrors.Outputf("writers/elasticsearch", "resolve_api_key", "cannot resolve API key secret").Wrap(err)
		}
		escfg.APIKey = key
	}
	client, err := elasticsearch.NewClient(escfg)
	if err != nil {
		return nil, pkgerrors.Outputf("writers/elasticsearch", "new_client", "cannot build elasticsearch client").Wrap(err)
	}
	return client, nil
}

// bulkIndex sends one bulk request per chunk of rows concurrently via a
// worker pool, returning the first error encountered (if any). limiter
// throttles how fast chunks are allowed onto the wire and adapts its rate
// to each request's observed latency, so a cluster under load is backed off
// automatically rather than flooded by the worker pool's full concurrency.
func bulkIndex(ctx context.Context, client *elasticsearch.Client, pool *workerpool.Pool, limiter *ratelimit.Limiter, index string, rows []model.Row, refresh string, chunkSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	var errOnce sync.Once
	var firstErr error
	var wg sync.WaitGroup

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		wg.Add(1)
		pool.Submit(func(taskCtx context.Context) error {
			defer wg.Done()
			for !limiter.Allow() {
				select {
				case <-taskCtx.Done():
					errOnce.Do(func() { firstErr = taskCtx.Err() })
					return taskCtx.Err()
				case <-time.After(10 * time.Millisecond):
				}
			}
			start := time.Now()
			err := sendBulk(taskCtx, client, index, chunk, refresh)
			limiter.Adjust(time.Since(start))
			if err != nil {
				errOnce.Do(func() { firstErr = err })
			}
			return err
		})
	}
	wg.Wait()
	return firstErr
}

func sendBulk(ctx context.Context, client *elasticsearch.Client, index string, rows []model.Row, refresh string) error {
	var buf bytes.Buffer
	for _, row := range rows {
		action := map[string]interface{}{"index": map[string]interface{}{"_index": index}}
		actionJSON, err := json.Marshal(action)
		if err != nil {
			return pkgerrors.Outputf("writers/elasticsearch", "marshal_action", "cannot marshal bulk action").Wrap(err)
		}
		buf.Write(actionJSON)
		buf.WriteByte('\n')

		docJSON, err := json.Marshal(row)
		if err != nil {
			return pkgerrors.Outputf("writers/elasticsearch", "marshal_document", "cannot marshal row").Wrap(err)
		}
		buf.Write(docJSON)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{Index: index, Body: bytes.NewReader(buf.Bytes()), Refresh: refresh}
	res, err := req.Do(ctx, client)
	if err != nil {
		return pkgerrors.Outputf("writers/elasticsearch", "bulk_request", "bulk request to index %s failed", index).Wrap(err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return pkgerrors.Outputf("writers/elasticsearch", "bulk_request", "bulk request to index %s returned %s", index, res.Status())
	}
	return nil
}

// OneShot writes a whole table in a single call.
type OneShot struct{ Config Config }

// Write implements writer.OneShotWriter. destination is used as the index
// name.
func (w *OneShot) Write(rows []model.Row, destination string, opts writer.Options) (string, error) {
	client, err := newClient(w.Config)
	if err != nil {
		return "", err
	}
	pool := workerpool.New(w.Config.Pool, w.Config.logger())
	defer pool.Close()
	limiter := ratelimit.New(w.Config.RateLimit)
	if err := bulkIndex(context.Background(), client, pool, limiter, destination, rows, w.Config.RefreshPolicy, w.Config.ChunkSize); err != nil {
		return "", err
	}
	return destination, nil
}

// WriteAll implements writer.OneShotWriter. baseDir is ignored; entity and
// child table names become index names under Config.IndexPrefix.
func (w *OneShot) WriteAll(main []model.Row, childrenByTable map[string][]model.Row, baseDir, entity string, opts writer.Options) (map[string]string, error) {
	client, err := newClient(w.Config)
	if err != nil {
		return nil, err
	}
	pool := workerpool.New(w.Config.Pool, w.Config.logger())
	defer pool.Close()
	limiter := ratelimit.New(w.Config.RateLimit)

	indexes := map[string]string{}
	if len(main) > 0 {
		idx := w.Config.indexName(entity)
		if err := bulkIndex(context.Background(), client, pool, limiter, idx, main, w.Config.RefreshPolicy, w.Config.ChunkSize); err != nil {
			return nil, err
		}
		indexes[entity] = idx
	}
	for table, rows := range childrenByTable {
		if len(rows) == 0 {
			continue
		}
		idx := w.Config.indexName(table)
		if err := bulkIndex(context.Background(), client, pool, limiter, idx, rows, w.Config.RefreshPolicy, w.Config.ChunkSize); err != nil {
			return nil, err
		}
		indexes[table] = idx
	}
	return indexes, nil
}

// Writer is the streaming Elasticsearch writer: every WriteMainRecords/
// WriteChildRecords call is bulk-indexed immediately, fanned out across a
// shared worker pool.
type Writer struct {
	cfg     Config
	client  *elasticsearch.Client
	pool    *workerpool.Pool
	limiter *ratelimit.Limiter
	entity  string

	mu      sync.Mutex
	indexes map[string]string
	closed  bool
}

// NewStreamingWriter builds a streaming Elasticsearch writer for entity.
func NewStreamingWriter(cfg Config, entity string) (*Writer, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Writer{
		cfg:     cfg,
		client:  client,
		pool:    workerpool.New(cfg.Pool, cfg.logger()),
		limiter: ratelimit.New(cfg.RateLimit),
		entity:  entity,
		indexes: map[string]string{},
	}, nil
}

// InitializeMainTable records the main table's target index. Idempotent.
func (w *Writer) InitializeMainTable(schemaHint []string, opts writer.Options) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indexes["main"] = w.cfg.indexName(w.entity)
	return nil
}

// InitializeChildTable records name's target index. Idempotent.
func (w *Writer) InitializeChildTable(name string, schemaHint []string, opts writer.Options) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indexes[name] = w.cfg.indexName(name)
	return nil
}

// WriteMainRecords bulk-indexes rows into the main table's index.
func (w *Writer) WriteMainRecords(rows []model.Row) error {
	w.mu.Lock()
	index := w.indexes["main"]
	w.mu.Unlock()
	if index == "" {
		return pkgerrors.Outputf("writers/elasticsearch", "write_main_records", "main table not initialized")
	}
	if err := bulkIndex(context.Background(), w.client, w.pool, w.limiter, index, rows, w.cfg.RefreshPolicy, w.cfg.ChunkSize); err != nil {
		return pkgerrors.Outputf("writers/elasticsearch", "write_main_records", "bulk index failed for %s", index).Wrap(err)
	}
	return nil
}

// WriteChildRecords bulk-indexes rows into name's index.
func (w *Writer) WriteChildRecords(name string, rows []model.Row) error {
	w.mu.Lock()
	index := w.indexes[name]
	w.mu.Unlock()
	if index == "" {
		return pkgerrors.Outputf("writers/elasticsearch", "write_child_records", "child table %s not initialized", name)
	}
	if err := bulkIndex(context.Background(), w.client, w.pool, w.limiter, index, rows, w.cfg.RefreshPolicy, w.cfg.ChunkSize); err != nil {
		return pkgerrors.Outputf("writers/elasticsearch", "write_child_records", "bulk index failed for %s", index).Wrap(err)
	}
	return nil
}

// Finalize is a no-op: every write is already durably indexed (subject to
// RefreshPolicy) by the time WriteMainRecords/WriteChildRecords returns.
func (w *Writer) Finalize() error { return nil }

// Close shuts down the writer's worker pool. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.pool.Close()
	return nil
}

