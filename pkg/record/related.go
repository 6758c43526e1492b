package record

import (
	"context"

	"github.com/leapstack-labs/leaprow/pkg/core"
)

// Related follows the foreign-key field of e to the R row it references.
// A NULL reference yields nil. Fields declared fk=<table> must point at R's
// table.
func Related[R, T any](ctx context.Context, t *Table[T], e *T, field string) (*R, error) {
	f, err := t.info.MustField(field)
	if err != nil {
		return nil, err
	}
	if !f.IsForeignKey() {
		return nil, core.NewConfigError(t.info.Entity(), "related", core.ErrUnsupportedField, "%s is not a foreign key", field)
	}

	target, err := Of[R](t.reg)
	if err != nil {
		return nil, err
	}
	if f.FKTarget != "" && f.FKTarget != target.info.Table {
		return nil, core.NewConfigError(t.info.Entity(), "related", core.ErrUnsupportedField,
			"%s references %s, not %s", field, f.FKTarget, target.info.Table)
	}

	v, err := t.info.Get(e, field)
	if err != nil {
		return nil, err
	}
	if isNull(v) {
		return nil, nil
	}
	return target.SelectByPK(ctx, v)
}
