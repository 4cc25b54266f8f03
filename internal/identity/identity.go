// Package identity assigns a stable identifier to each record: either a
// random UUIDv4, a deterministic UUIDv5 derived from the record's content,
// or a natural id copied from an existing field. Deterministic derivation is
// pinned to a fixed namespace constant so that the same record produces the
// same id across hosts, processes, and Go versions.
package identity

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"tableflow/internal/model"
)

// Mode selects how an identity is derived.
type Mode string

const (
	// Random assigns a fresh UUIDv4 to every record (the default).
	Random Mode = "random"
	// DeterministicRecord derives a UUIDv5 from a canonical JSON encoding
	// of the whole record.
	DeterministicRecord Mode = "deterministic_record"
	// DeterministicFields derives a UUIDv5 from a canonical JSON encoding
	// of a chosen subset of fields, encoded with sorted keys so the
	// configured order does not affect the result.
	DeterministicFields Mode = "deterministic_fields"
	// NaturalDiscovery looks for an existing id-shaped field before
	// falling back to Random.
	NaturalDiscovery Mode = "natural"
)

// namespace is the fixed UUID namespace all deterministic ids are hashed
// under. It must never change: changing it would silently change every
// deterministic id this engine has ever produced.
var namespace = uuid.MustParse("a9b8c7d6-e5f4-1234-abcd-0123456789ab")

// defaultPatterns is the ordered list of field names checked during natural
// discovery. Order matters: the first match wins.
var defaultPatterns = []string{
	"id", "ID", "Id", "_id",
	"uuid", "UUID",
	"guid", "GUID",
	"pk", "PK",
	"primary_key", "key", "identifier",
}

// Options configures an Engine.
type Options struct {
	Mode     Mode
	IDFields []string // used by DeterministicFields, in order
	// Patterns overrides defaultPatterns for NaturalDiscovery; nil means
	// use the default list.
	Patterns []string
	// FallbackField is checked after Patterns is exhausted, before
	// falling back to Random.
	FallbackField string
}

// Engine derives identities per Options.
type Engine struct {
	opts Options
}

// New builds an Engine. A zero-value Options yields Random mode.
func New(opts Options) *Engine {
	if opts.Mode == "" {
		opts.Mode = Random
	}
	if opts.Patterns == nil {
		opts.Patterns = defaultPatterns
	}
	return &Engine{opts: opts}
}

// Assign derives an identity for record. natural is true when the value was
// discovered on an existing field (NaturalDiscovery mode, with a match) —
// callers use this to decide whether the metadata annotator still needs to
// install the id under the configured id field.
func (e *Engine) Assign(record model.Record) (id string, natural bool) {
	switch e.opts.Mode {
	case DeterministicRecord:
		return e.deterministicRecord(record), false
	case DeterministicFields:
		return e.deterministicFields(record), false
	case NaturalDiscovery:
		if field, value := discover(record, e.opts.Patterns, e.opts.FallbackField); field != "" {
			return stringifyID(value), true
		}
		return uuid.New().String(), false
	default:
		return uuid.New().String(), false
	}
}

func (e *Engine) deterministicRecord(record model.Record) string {
	return hashCanonical(record)
}

func (e *Engine) deterministicFields(record model.Record) string {
	subset := make(map[string]interface{}, len(e.opts.IDFields))
	for _, f := range e.opts.IDFields {
		subset[f] = record[f]
	}
	return hashCanonical(subset)
}

// hashCanonical canonicalizes v (JSON-encode with sorted keys, then trim and
// lowercase) and derives a UUIDv5 from the result under namespace.
func hashCanonical(v interface{}) string {
	canonical := canonicalize(v)
	return uuid.NewSHA1(namespace, []byte(canonical)).String()
}

// canonicalize produces a deterministic string encoding of v: JSON with keys
// sorted at every nesting level, then trimmed and lowercased. encoding/json
// already sorts map keys when marshaling, which gives us sorted-key JSON for
// free at every depth.
func canonicalize(v interface{}) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		encoded = []byte("null")
	}
	return strings.ToLower(strings.TrimSpace(string(encoded)))
}

// discover walks patterns in order and returns the first field present on
// record whose value is non-null and, if a string, non-blank. It falls back
// to fallbackField if none of patterns match.
func discover(record model.Record, patterns []string, fallbackField string) (field string, value interface{}) {
	for _, p := range patterns {
		v, present := record[p]
		if !present {
			continue
		}
		if isUsableID(v) {
			return p, v
		}
	}
	if fallbackField != "" {
		if v, present := record[fallbackField]; present {
			return fallbackField, v
		}
	}
	return "", nil
}

func isUsableID(v interface{}) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) != ""
	case float64, float32, int, int64:
		return true
	default:
		return false
	}
}

func stringifyID(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.Trim(string(encoded), `"`)
	}
}
