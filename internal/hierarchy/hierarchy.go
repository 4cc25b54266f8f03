// Package hierarchy composes the flattener and array extractor into the
// per-record, per-batch, and per-stream operations the batch pump drives
// (spec component C7): flatten the record into its main row, annotate that
// row with identity and timestamp, then extract its arrays using the row's
// own (possibly natural) id as the parent link.
package hierarchy

import (
	"github.com/sirupsen/logrus"

	"tableflow/internal/extract"
	"tableflow/internal/flatten"
	"tableflow/internal/identity"
	"tableflow/internal/model"
	"tableflow/internal/rowmeta"
	"tableflow/internal/sanitize"
)

// Driver bundles the collaborators needed to process records into rows.
type Driver struct {
	flattener *flatten.Flattener
	extractor *extract.Extractor
	idEngine  *identity.Engine
	rowCfg    rowmeta.Config
	log       *logrus.Entry
}

// New builds a Driver from a single model.Config, wiring a shared
// sanitizer cache across the flattener and extractor.
func New(cfg model.Config, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := sanitize.New(0)

	f := flatten.New(flatten.FromConfig(cfg), s, log)
	idEngine := identity.New(identity.Options{
		Mode:     toIdentityMode(cfg.IDMode),
		IDFields: cfg.IDFields,
		Patterns: cfg.IDPatterns,
	})
	rowCfg := rowmeta.Config{
		IDField:     cfg.IDField,
		ParentField: cfg.ParentField,
		TimeField:   cfg.TimeField,
	}
	ex := extract.New(extract.FromConfig(cfg), f, idEngine, rowCfg, s, log)

	return &Driver{flattener: f, extractor: ex, idEngine: idEngine, rowCfg: rowCfg, log: log}
}

func toIdentityMode(m model.IDMode) identity.Mode {
	switch m {
	case model.IDDeterministicRecord:
		return identity.DeterministicRecord
	case model.IDDeterministicFields:
		return identity.DeterministicFields
	case model.IDNatural:
		return identity.NaturalDiscovery
	default:
		return identity.Random
	}
}

// Process runs one record through flatten -> annotate -> extract and
// returns the main row plus its children grouped by table name. An empty
// or nil record yields an empty result without error, per contract.
func (d *Driver) Process(record model.Record, entity string, context model.Context, parentID string) (model.Row, map[string][]model.Row) {
	if len(record) == 0 {
		return model.Row{}, map[string][]model.Row{}
	}

	mainRow := d.flattener.Flatten(record, context)
	id, natural := d.idEngine.Assign(mainRow)
	rowmeta.Annotate(mainRow, d.rowCfg, id, natural, parentID, context.ExtractTime)

	children := d.extractor.Extract(record, entity, context, id)
	return mainRow, children
}

// ProcessBatch runs every record in records through Process and merges
// children across records by table name, preserving relative order:
// records earlier in the batch contribute rows first.
func (d *Driver) ProcessBatch(records []model.Record, entity string, context model.Context) ([]model.Row, map[string][]model.Row) {
	mainRows := make([]model.Row, 0, len(records))
	childrenByTable := map[string][]model.Row{}

	for _, record := range records {
		mainRow, children := d.Process(record, entity, context, "")
		if len(mainRow) == 0 {
			continue
		}
		mainRows = append(mainRows, mainRow)
		for table, rows := range children {
			childrenByTable[table] = append(childrenByTable[table], rows...)
		}
	}

	return mainRows, childrenByTable
}

// ChildEmit receives one child row as ProcessStream discovers it, alongside
// the index of the main-batch record it belongs to.
type ChildEmit func(recordIndex int, table string, row model.Row)

// ProcessStream runs every record in records through flatten+annotate
// eagerly (producing the main rows slice up front, since the pump needs it
// to drive the writer's main-table sink), but defers array extraction to
// emit, letting the caller forward child rows to a writer without
// buffering them all in memory.
func (d *Driver) ProcessStream(records []model.Record, entity string, context model.Context, emit ChildEmit) []model.Row {
	mainRows := make([]model.Row, 0, len(records))

	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		mainRow := d.flattener.Flatten(record, context)
		id, natural := d.idEngine.Assign(mainRow)
		rowmeta.Annotate(mainRow, d.rowCfg, id, natural, "", context.ExtractTime)
		mainRows = append(mainRows, mainRow)

		d.extractor.ExtractStream(record, entity, context, id, func(table string, row model.Row) {
			emit(i, table, row)
		})
	}

	return mainRows
}
