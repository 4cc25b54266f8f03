// Package app provides the optional HTTP status surface a tableflow run can
// expose alongside its flattening work: a liveness check and a Prometheus
// scrape endpoint. Adapted from the teacher's App/handlers pair, cut down
// from a always-on daemon's full route table (config reload, DLQ
// reprocessing, container/position introspection, security audit, ...) to
// the two routes that still make sense for a one-shot or streaming
// flattening run: there is no live configuration to reload and no
// position/container state to introspect here.
package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"tableflow/pkg/metrics"
)

// StatusServer serves /health and /metrics for the duration of one run. It
// is entirely optional: cmd/tableflow only starts one when a listen address
// is configured, and a run's correctness never depends on it.
type StatusServer struct {
	srv     *http.Server
	log     *logrus.Entry
	started time.Time
}

// NewStatusServer builds a StatusServer bound to addr. It does not start
// listening until Start is called.
func NewStatusServer(addr string, log *logrus.Entry) *StatusServer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &StatusServer{log: log, started: time.Now()}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

// healthHandler reports that the process is up and how long it has been
// running. Grounded on the teacher's healthHandler, narrowed from a
// multi-subsystem health aggregation (disk space, file descriptors, sink
// connectivity, ...) to a plain liveness signal -- a flattening run's only
// failure modes are fatal (they abort the run), so there is no degraded
// state worth reporting here.
func (s *StatusServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.started).String(),
	})
}

// Start begins serving in a background goroutine and returns immediately.
// A listen error after startup is logged, not returned, matching the
// teacher's fire-and-forget HTTP server goroutine.
func (s *StatusServer) Start() {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("app: status server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("app: status server error")
		}
	}()
}

// Stop gracefully shuts the server down, waiting up to ctx's deadline for
// in-flight requests to complete.
func (s *StatusServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
