// Package flatten implements the recursive-descent flattener (spec
// component C5): it turns one nested JSON-shaped record into a single flat
// row of sanitized-column-name -> coerced-scalar pairs, deferring array
// handling to the array-mode policy and ultimately to internal/extract for
// anything that needs a child table.
package flatten

import (
	"github.com/sirupsen/logrus"

	"tableflow/internal/coerce"
	"tableflow/internal/model"
	"tableflow/internal/sanitize"
)

const metadataPrefix = "__"

// Options configures a Flattener. It mirrors the subset of model.Config
// that the flattening algorithm itself consults.
type Options struct {
	Separator    string
	ArrayMode    model.ArrayMode
	NullHandling coerce.NullHandling
	CastToString bool
	MaxDepth     int
}

// FromConfig derives flatten.Options from a model.Config.
func FromConfig(cfg model.Config) Options {
	return Options{
		Separator:    cfg.Separator,
		ArrayMode:    cfg.ArrayMode,
		NullHandling: coerce.NullHandling(cfg.NullHandling),
		CastToString: cfg.CastToString,
		MaxDepth:     cfg.MaxDepth,
	}
}

// Flattener holds the shared sanitizer cache and logger used across a run.
type Flattener struct {
	opts      Options
	sanitizer *sanitize.Sanitizer
	log       *logrus.Entry
}

// New builds a Flattener. sanitizer may be shared with the array extractor
// so table/column names are cached once per run rather than per component.
func New(opts Options, sanitizer *sanitize.Sanitizer, log *logrus.Entry) *Flattener {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Flattener{opts: opts, sanitizer: sanitizer, log: log}
}

// Flatten recurses over record and returns the flat row. context carries
// the current depth, path, and run timestamp; it is never mutated.
func (f *Flattener) Flatten(record model.Record, context model.Context) model.Row {
	if context.CurrentDepth == f.opts.MaxDepth {
		f.log.WithField("path", context.BuildPath(f.opts.Separator)).
			Warn("flatten: max depth reached, truncating sub-tree")
		return model.Row{}
	}

	out := model.Row{}
	for key, value := range record {
		if isMetadataKey(key) {
			out[key] = value
			continue
		}

		switch v := value.(type) {
		case map[string]interface{}:
			if len(v) == 0 {
				continue
			}
			nested := f.Flatten(v, context.Descend(key))
			for k, nv := range nested {
				out[k] = nv
			}
		case []interface{}:
			f.flattenArray(v, key, context, out)
		default:
			f.flattenScalar(value, key, context, out)
		}
	}
	return out
}

func (f *Flattener) flattenArray(arr []interface{}, key string, context model.Context, out model.Row) {
	if len(arr) == 0 {
		return
	}

	simple := isSimpleArray(arr)

	switch f.opts.ArrayMode {
	case model.Smart:
		if simple {
			out[f.columnName(key, context)] = arr
		}
		// complex arrays under SMART are left for the array extractor.
	case model.Separate:
		// always extracted; nothing emitted here.
	case model.Inline:
		f.storeCoerced(arr, key, context, out, true)
	case model.SkipArrays:
		// omit.
	}
}

func (f *Flattener) flattenScalar(value interface{}, key string, context model.Context, out model.Row) {
	f.storeCoerced(value, key, context, out, false)
}

// storeCoerced coerces value and, if not omitted, stores it under the
// current full path (or the bare key at the root).
func (f *Flattener) storeCoerced(value interface{}, key string, context model.Context, out model.Row, isArrayValue bool) {
	coerced, ok := coerce.Value(value, coerce.Options{
		NullHandling: f.opts.NullHandling,
		CastToString: f.opts.CastToString,
	})
	if !ok {
		return
	}
	out[f.columnName(key, context)] = coerced
}

func (f *Flattener) columnName(key string, context model.Context) string {
	descended := context.Descend(key)
	path := descended.BuildPath(f.opts.Separator)
	if f.sanitizer != nil {
		return f.sanitizer.Name(path)
	}
	return path
}

// isSimpleArray reports whether every element of arr is a scalar (not a
// map or another slice).
func isSimpleArray(arr []interface{}) bool {
	for _, el := range arr {
		switch el.(type) {
		case map[string]interface{}, []interface{}:
			return false
		}
	}
	return true
}

func isMetadataKey(key string) bool {
	return len(key) >= len(metadataPrefix) && key[:len(metadataPrefix)] == metadataPrefix
}
