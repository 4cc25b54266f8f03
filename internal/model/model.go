// Package model defines the shared record, row, and context types that flow
// through the flattening pipeline (coercion, sanitization, identity,
// flattening, extraction, and the batch pump all operate on these).
package model

import "strings"

// Record is a single input object: a mapping from string keys to values,
// where a value is one of nil, bool, a number, a string, a nested Record, or
// a slice of any of those (a JSON-shaped value). Records are ephemeral: they
// are consumed once by the pump and not retained.
type Record = map[string]interface{}

// Row is a mapping from sanitized column name to a coerced scalar. Rows are
// produced by the flattener/extractor and either streamed to a writer or
// collected into a Result.
type Row = map[string]interface{}

// Context carries the per-descent state threaded through one record's
// processing: current recursion depth, the path component stack, and the
// timestamp captured once at the start of the run. Context is immutable —
// Descend returns a new value and never mutates the receiver — so siblings
// in a traversal never observe each other's depth or path.
type Context struct {
	CurrentDepth   int
	PathComponents []string
	ExtractTime    string
}

// NewContext creates a root context for one record, stamped with the given
// timestamp. Every row produced while processing that record, at any depth,
// carries this same timestamp (spec invariant: timestamp uniformity).
func NewContext(extractTime string) Context {
	return Context{ExtractTime: extractTime}
}

// Descend returns a new Context one level deeper, with component appended to
// the path. The receiver is left unchanged.
func (c Context) Descend(component string) Context {
	path := make([]string, len(c.PathComponents)+1)
	copy(path, c.PathComponents)
	path[len(path)-1] = component
	return Context{
		CurrentDepth:   c.CurrentDepth + 1,
		PathComponents: path,
		ExtractTime:    c.ExtractTime,
	}
}

// Reset returns a new Context at depth 0 with an empty path but the same
// extract timestamp. Array elements that become rows of their own table
// start a fresh record in this sense: their own field paths don't carry the
// array site's path prefix, but they still share the run's timestamp.
func (c Context) Reset() Context {
	return Context{ExtractTime: c.ExtractTime}
}

// BuildPath joins the path components with separator, or returns the empty
// string at the root.
func (c Context) BuildPath(separator string) string {
	if len(c.PathComponents) == 0 {
		return ""
	}
	return strings.Join(c.PathComponents, separator)
}

// ArrayMode controls how array-valued fields are represented in the main
// row versus extracted into child tables.
type ArrayMode string

const (
	// Smart keeps simple (all-scalar) arrays inline and extracts complex
	// ones into child tables. The default.
	Smart ArrayMode = "smart"
	// Separate always extracts arrays into child tables, regardless of
	// whether their elements are scalar.
	Separate ArrayMode = "separate"
	// Inline always keeps arrays as a single coerced value in the main
	// row, never extracting child tables.
	Inline ArrayMode = "inline"
	// SkipArrays omits array-valued fields entirely.
	SkipArrays ArrayMode = "skip"
)

// NullHandling controls whether a null/empty scalar is dropped or kept as
// an empty string in the output.
type NullHandling string

const (
	NullSkip    NullHandling = "skip"
	NullInclude NullHandling = "include"
)

// IDMode selects how a record's identity is derived.
type IDMode string

const (
	IDRandom              IDMode = "random"
	IDDeterministicRecord IDMode = "deterministic_record"
	IDDeterministicFields IDMode = "deterministic_fields"
	IDNatural             IDMode = "natural"
)

// RecoveryMode controls what happens when a single record fails to decode
// or process.
type RecoveryMode string

const (
	RecoveryStrict RecoveryMode = "strict"
	RecoverySkip   RecoveryMode = "skip"
)

// Config is the full set of tunables governing one processing run. It is
// the single source of truth; the narrower per-package Options structs
// (coerce.Options, identity.Options, rowmeta.Config, ...) are each derived
// from a Config by the hierarchy driver rather than duplicated by callers.
type Config struct {
	Separator    string       `yaml:"separator"`
	ArrayMode    ArrayMode    `yaml:"array_mode"`
	NullHandling NullHandling `yaml:"null_handling"`
	CastToString bool         `yaml:"cast_to_string"`
	MaxDepth     int          `yaml:"max_depth"`
	BatchSize    int          `yaml:"batch_size"`

	IDField     string `yaml:"id_field"`
	ParentField string `yaml:"parent_field"`
	TimeField   string `yaml:"time_field"`

	IDMode     IDMode   `yaml:"id_mode"`
	IDFields   []string `yaml:"id_fields"`
	IDPatterns []string `yaml:"id_patterns"`

	RecoveryMode RecoveryMode `yaml:"recovery_mode"`
}

// DefaultConfig returns the documented defaults for every option.
func DefaultConfig() Config {
	return Config{
		Separator:    "_",
		ArrayMode:    Smart,
		NullHandling: NullSkip,
		CastToString: true,
		MaxDepth:     100,
		BatchSize:    1000,

		IDField:     "__extract_id",
		ParentField: "__parent_extract_id",
		TimeField:   "__extract_datetime",

		IDMode: IDRandom,

		RecoveryMode: RecoverySkip,
	}
}

// Validate checks the configuration-error conditions the spec calls out:
// duplicate reserved field names, an empty separator, an unknown array
// mode, a non-positive batch size, or a negative max depth.
func (c Config) Validate() error {
	if c.Separator == "" {
		return errConfig("separator must be non-empty")
	}
	switch c.ArrayMode {
	case Smart, Separate, Inline, SkipArrays:
	default:
		return errConfig("unknown array_mode: " + string(c.ArrayMode))
	}
	if c.BatchSize <= 0 {
		return errConfig("batch_size must be positive")
	}
	if c.MaxDepth < 0 {
		return errConfig("max_depth must not be negative")
	}
	reserved := map[string]bool{}
	for _, f := range []string{c.IDField, c.ParentField, c.TimeField} {
		if f == "" {
			continue
		}
		if reserved[f] {
			return errConfig("id_field, parent_field, and time_field must be pairwise distinct")
		}
		reserved[f] = true
	}
	return nil
}

// configError is a minimal local error type; internal/model intentionally
// has no dependency on pkg/errors so that every downstream package (which
// does depend on pkg/errors) can import model without a cycle. Callers at
// the public boundary translate it into a pkg/errors.Configuration error.
type configError string

func (e configError) Error() string { return string(e) }

func errConfig(msg string) error { return configError(msg) }
