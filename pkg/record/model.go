// Package record maps entity structs onto table rows and provides the CRUD
// operations built from their compiled schema.
//
// An entity embeds Model and carries its table descriptor on it:
//
//	type Blog struct {
//		record.Model `table:"blog" conn:"main"`
//		ID      int64   `db:"id,pk,autoincr"`
//		Heading string  `db:"heading,unique"`
//		Body    *string `db:"body"`
//	}
//
// Operations go through a Table, obtained once per entity type with Of.
package record

import (
	"context"
	"maps"
	"reflect"
)

// Model is the embedded base of every entity. It holds the field values
// captured when the row was loaded, which Update diffs against.
type Model struct {
	fetched  bool
	snapshot map[string]any
}

func (m *Model) model() *Model { return m }

// Fetched reports whether the entity was hydrated from a query.
func (m *Model) Fetched() bool { return m.fetched }

// Snapshot returns a copy of the field values captured when the entity was
// loaded or last written. It is nil for entities built by hand.
func (m *Model) Snapshot() map[string]any { return maps.Clone(m.snapshot) }

// modeler is satisfied by any pointer to a struct embedding Model.
type modeler interface {
	model() *Model
}

var modelerType = reflect.TypeFor[modeler]()

// AfterReader is implemented by entities that post-process hydrated rows.
type AfterReader interface {
	AfterRead(ctx context.Context) error
}

// BeforeWriter is implemented by entities that adjust or validate their
// fields right before an INSERT or UPDATE is built.
type BeforeWriter interface {
	BeforeWrite(ctx context.Context) error
}

// Defaulter is implemented by entities with non-zero field defaults. Table.New
// calls it; hydrated entities never see it.
type Defaulter interface {
	Defaults()
}

// UpdateStatus tells what Update did.
type UpdateStatus int

const (
	// UpdateUnchanged means there was nothing to write; no statement was issued.
	UpdateUnchanged UpdateStatus = iota
	// UpdateApplied means the UPDATE matched the row.
	UpdateApplied
	// UpdateNoRows means the UPDATE ran but matched no row.
	UpdateNoRows
)

func (s UpdateStatus) String() string {
	switch s {
	case UpdateApplied:
		return "applied"
	case UpdateNoRows:
		return "no rows"
	default:
		return "unchanged"
	}
}
