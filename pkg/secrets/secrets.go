// Package secrets resolves Elasticsearch/Kafka credentials from either the
// process environment or a mounted file, with results cached so a writer
// doing per-request auth doesn't re-read the environment or disk on every
// call. Adapted from the teacher's multi-backend secrets manager, trimmed
// to the two backends ("env" and "file") this pipeline's writers actually
// need -- the teacher's vault/AWS/k8s backends have no analogue here since
// there is no long-running service to hold their clients open.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Backend is where a secret's value is looked up from.
type Backend string

const (
	BackendEnv  Backend = "env"
	BackendFile Backend = "file"
)

// Config selects the default backend and, for BackendFile, the directory
// secret files live under (one file per key).
type Config struct {
	DefaultBackend Backend `yaml:"default_backend"`
	FileDir        string  `yaml:"file_dir"`
}

// DefaultConfig resolves secrets from the environment by default.
func DefaultConfig() Config {
	return Config{DefaultBackend: BackendEnv}
}

// Manager resolves and caches secret values.
type Manager struct {
	cfg   Config
	mu    sync.RWMutex
	cache map[string]string
}

// New builds a Manager.
func New(cfg Config) *Manager {
	if cfg.DefaultBackend == "" {
		cfg.DefaultBackend = BackendEnv
	}
	return &Manager{cfg: cfg, cache: map[string]string{}}
}

// Get resolves key via the configured backend, caching the result.
func (m *Manager) Get(key string) (string, error) {
	m.mu.RLock()
	if v, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return v, nil
	}
	m.mu.RUnlock()

	value, err := m.resolve(key)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cache[key] = value
	m.mu.Unlock()
	return value, nil
}

func (m *Manager) resolve(key string) (string, error) {
	switch m.cfg.DefaultBackend {
	case BackendFile:
		path := m.cfg.FileDir + "/" + key
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("secrets: read %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		v, ok := os.LookupEnv(key)
		if !ok {
			return "", fmt.Errorf("secrets: environment variable %s is not set", key)
		}
		return v, nil
	}
}
