// Package extract implements the array extractor (spec component C6): a
// co-recursive traversal that harvests array-valued fields into separate
// child-table row streams, stitching parent/child identity as it goes. It
// shares the flattener for turning an array element's object body into a
// row, and the identity engine for minting each child row's own id so
// nested arrays inside that element get a correct parent_id in turn.
package extract

import (
	"github.com/sirupsen/logrus"

	"tableflow/internal/flatten"
	"tableflow/internal/identity"
	"tableflow/internal/model"
	"tableflow/internal/rowmeta"
	"tableflow/internal/sanitize"
)

const metadataPrefix = "__"

// Options configures an Extractor; it mirrors the subset of model.Config
// the traversal itself consults.
type Options struct {
	Separator    string
	ArrayMode    model.ArrayMode
	NullHandling model.NullHandling
	MaxDepth     int
}

// FromConfig derives extract.Options from a model.Config.
func FromConfig(cfg model.Config) Options {
	return Options{
		Separator:    cfg.Separator,
		ArrayMode:    cfg.ArrayMode,
		NullHandling: cfg.NullHandling,
		MaxDepth:     cfg.MaxDepth,
	}
}

// Emit receives one (table_name, row) pair as the traversal discovers it.
// The eager Extract collects them into a map; ExtractStream lets a caller
// forward them to a writer without buffering the whole result.
type Emit func(tableName string, row model.Row)

// Extractor holds the collaborators shared with the flattener so names and
// ids are derived identically across both components.
type Extractor struct {
	opts      Options
	flattener *flatten.Flattener
	idEngine  *identity.Engine
	rowCfg    rowmeta.Config
	sanitizer *sanitize.Sanitizer
	log       *logrus.Entry
}

// New builds an Extractor.
func New(opts Options, flattener *flatten.Flattener, idEngine *identity.Engine, rowCfg rowmeta.Config, sanitizer *sanitize.Sanitizer, log *logrus.Entry) *Extractor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Extractor{
		opts:      opts,
		flattener: flattener,
		idEngine:  idEngine,
		rowCfg:    rowCfg,
		sanitizer: sanitizer,
		log:       log,
	}
}

// Extract eagerly materializes every child row produced while traversing
// record, grouped by table name, preserving discovery order within each
// table.
func (e *Extractor) Extract(record model.Record, entity string, context model.Context, parentID string) map[string][]model.Row {
	out := map[string][]model.Row{}
	e.ExtractStream(record, entity, context, parentID, func(table string, row model.Row) {
		out[table] = append(out[table], row)
	})
	return out
}

// ExtractStream traverses record and invokes emit once per extracted child
// row, without buffering them. Both the eager and streaming batch pump
// paths fold down onto this: the eager one just provides a buffering emit.
func (e *Extractor) ExtractStream(record model.Record, entity string, context model.Context, parentID string, emit Emit) {
	if record == nil {
		return
	}
	if context.CurrentDepth == e.opts.MaxDepth {
		e.log.WithField("path", context.BuildPath(e.opts.Separator)).
			Warn("extract: max depth reached, truncating sub-tree")
		return
	}

	for key, value := range record {
		if isMetadataKey(key) {
			continue
		}

		switch v := value.(type) {
		case map[string]interface{}:
			if len(v) == 0 {
				continue
			}
			// Nested objects don't themselves become rows; their arrays
			// still belong to the same parent, just deeper in the path.
			e.ExtractStream(v, entity, context.Descend(key), parentID, emit)
		case []interface{}:
			if len(v) == 0 {
				continue
			}
			e.extractArray(v, key, entity, context, parentID, emit)
		}
	}
}

func (e *Extractor) extractArray(arr []interface{}, key, entity string, context model.Context, parentID string, emit Emit) {
	if e.opts.ArrayMode == model.Smart && isSimpleArray(arr) {
		return
	}
	if e.opts.ArrayMode == model.Inline || e.opts.ArrayMode == model.SkipArrays {
		return
	}

	arrayContext := context.Descend(key)
	tableName := e.tableName(entity, context, key)

	for _, el := range arr {
		row, nextParentID, isObject, skip := e.buildElementRow(el, context, parentID)
		if skip {
			continue
		}

		emit(tableName, row)

		if isObject {
			e.ExtractStream(el.(map[string]interface{}), entity, arrayContext, nextParentID, emit)
		}
	}
}

// buildElementRow turns one array element into an annotated row, ready to
// be yielded, along with the id it should be used as parent_id for that
// element's own nested arrays (only meaningful when isObject is true).
func (e *Extractor) buildElementRow(el interface{}, context model.Context, parentID string) (row model.Row, nextParentID string, isObject bool, skip bool) {
	if el == nil {
		if e.opts.NullHandling == model.NullSkip {
			return nil, "", false, true
		}
	}

	if asObj, ok := el.(map[string]interface{}); ok {
		if len(asObj) == 0 {
			return nil, "", false, true
		}
		// Array elements start a fresh record: depth and path reset, but
		// the run's timestamp carries through.
		flat := e.flattener.Flatten(asObj, context.Reset())
		id, natural := e.idEngine.Assign(flat)
		rowmeta.Annotate(flat, e.rowCfg, id, natural, parentID, context.ExtractTime)
		return flat, id, true, false
	}

	wrapped := model.Row{"value": el}
	id, natural := e.idEngine.Assign(wrapped)
	rowmeta.Annotate(wrapped, e.rowCfg, id, natural, parentID, context.ExtractTime)
	return wrapped, id, false, false
}

// tableName computes sanitize(entity) + SEP + sanitize(parent_path) + SEP +
// sanitize(field), omitting the middle segment at the top level.
func (e *Extractor) tableName(entity string, context model.Context, field string) string {
	sanitizedEntity := e.sanitize(entity)
	sanitizedField := e.sanitize(field)
	parentPath := context.BuildPath(e.opts.Separator)

	if parentPath == "" {
		return sanitizedEntity + e.opts.Separator + sanitizedField
	}
	return sanitizedEntity + e.opts.Separator + e.sanitize(parentPath) + e.opts.Separator + sanitizedField
}

func (e *Extractor) sanitize(name string) string {
	if e.sanitizer == nil {
		return name
	}
	return e.sanitizer.Name(name)
}

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
