// Package rowmeta installs identity, parent-linkage, and timestamp columns
// onto a flattened row. It is a thin, side-effecting layer over
// internal/identity: the engine decides what the id value is, rowmeta
// decides where it lives on the row.
package rowmeta

import "tableflow/internal/model"

// Config names the columns metadata gets installed under. Any field left
// empty is skipped: an empty TimeField means no timestamp column at all.
type Config struct {
	IDField     string
	ParentField string
	TimeField   string
}

// DefaultConfig mirrors the field names the core pipeline assumes when a
// caller doesn't override them.
func DefaultConfig() Config {
	return Config{
		IDField:     "__extract_id",
		ParentField: "__parent_extract_id",
		TimeField:   "__extract_datetime",
	}
}

// Annotate installs id, parentID (if non-empty), and timestamp (if
// cfg.TimeField is set) onto row in place, and returns the same row.
//
// id is only written under cfg.IDField when idIsNatural is false: a natural
// id was discovered on an existing field, so installing it again under a
// different name would duplicate the column.
func Annotate(row model.Row, cfg Config, id string, idIsNatural bool, parentID, timestamp string) model.Row {
	if !idIsNatural && cfg.IDField != "" {
		row[cfg.IDField] = id
	}
	if parentID != "" && cfg.ParentField != "" {
		row[cfg.ParentField] = parentID
	}
	if cfg.TimeField != "" {
		row[cfg.TimeField] = timestamp
	}
	return row
}
