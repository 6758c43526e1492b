package record

import (
	"bytes"
	"context"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/schema"
)

// Table runs the CRUD operations of entity type T. Reads go to the
// connection named by the descriptor's read routing, writes to its write
// routing. A Table is cheap and holds no connection itself.
type Table[T any] struct {
	info *schema.TableInfo
	reg  *conn.Registry
}

// Of returns the Table of T, compiling T's schema on first use. Connections
// are resolved from reg, or from conn.Default() when reg is nil.
func Of[T any](reg *conn.Registry) (*Table[T], error) {
	info, err := schema.Of[T]()
	if err != nil {
		return nil, err
	}
	if !reflect.PointerTo(info.Type).Implements(modelerType) {
		return nil, core.NewConfigError(info.Entity(), "record", core.ErrNotEntity, "embed record.Model")
	}
	if info.Table == "" {
		return nil, core.NewConfigError(info.Entity(), "record", core.ErrNoTableInfo, "no table name")
	}
	if reg == nil {
		reg = conn.Default()
	}
	return &Table[T]{info: info, reg: reg}, nil
}

// Info returns the compiled schema of T.
func (t *Table[T]) Info() *schema.TableInfo { return t.info }

// New builds an entity by hand: Defaults runs when T implements Defaulter,
// and no snapshot is taken.
func (t *Table[T]) New() *T {
	e := new(T)
	if d, ok := any(e).(Defaulter); ok {
		d.Defaults()
	}
	return e
}

func (t *Table[T]) reader(ctx context.Context) (*conn.Connection, error) {
	return t.reg.Resolve(ctx, t.info.Routing.Read)
}

func (t *Table[T]) writer(ctx context.Context) (*conn.Connection, error) {
	return t.reg.Resolve(ctx, t.info.Routing.Write)
}

// TableName returns the table name, quoted for the write connection when
// enclose is set.
func (t *Table[T]) TableName(ctx context.Context, enclose bool) (string, error) {
	if !enclose {
		return t.info.Table, nil
	}
	c, err := t.writer(ctx)
	if err != nil {
		return "", err
	}
	return c.QuoteQualified(t.info.Table), nil
}

// Field returns a column name, qualified with the table name when full is set
// and quoted for the write connection when enclose is set.
func (t *Table[T]) Field(ctx context.Context, name string, full, enclose bool) (string, error) {
	if _, err := t.info.MustField(name); err != nil {
		return "", err
	}
	if !enclose {
		if full {
			return t.info.Table + "." + name, nil
		}
		return name, nil
	}
	c, err := t.writer(ctx)
	if err != nil {
		return "", err
	}
	if full {
		return c.QuoteQualified(t.info.Table) + "." + c.Quote(name), nil
	}
	return c.Quote(name), nil
}

// Changed returns the write fields whose current value differs from the
// snapshot. Without a snapshot every write field counts as changed.
func (t *Table[T]) Changed(e *T) ([]string, error) {
	fields, err := t.changedFields(e)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out, nil
}

func (t *Table[T]) changedFields(e *T) ([]*schema.Field, error) {
	snap := modelOf(e).snapshot
	current, err := t.info.Values(e)
	if err != nil {
		return nil, err
	}
	var out []*schema.Field
	for _, f := range t.info.WriteFields() {
		if snap != nil {
			if old, ok := snap[f.Name]; ok && sameValue(old, current[f.Name]) {
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// loaded marks a hydrated entity: it takes the snapshot and runs AfterRead.
func (t *Table[T]) loaded(ctx context.Context, e *T) error {
	values, err := t.info.Values(e)
	if err != nil {
		return err
	}
	m := modelOf(e)
	m.fetched = true
	m.snapshot = values
	if h, ok := any(e).(AfterReader); ok {
		return h.AfterRead(ctx)
	}
	return nil
}

// remember refreshes the snapshot after a successful write.
func (t *Table[T]) remember(e *T, fields []*schema.Field) error {
	m := modelOf(e)
	if m.snapshot == nil {
		values, err := t.info.Values(e)
		if err != nil {
			return err
		}
		m.snapshot = values
		return nil
	}
	for _, f := range fields {
		v, err := t.info.Get(e, f.Name)
		if err != nil {
			return err
		}
		m.snapshot[f.Name] = v
	}
	return nil
}

func modelOf[T any](e *T) *Model {
	return any(e).(modeler).model()
}

func (t *Table[T]) columns(c *conn.Connection) string {
	cols := make([]string, len(t.info.Fields()))
	for i, f := range t.info.Fields() {
		cols[i] = c.Quote(f.Name)
	}
	return strings.Join(cols, ", ")
}

// sameValue compares two snapshot values field by field. NaN equals NaN.
func sameValue(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || math.IsNaN(x) && math.IsNaN(y))
	case float32:
		y, ok := b.(float32)
		return ok && (x == y || math.IsNaN(float64(x)) && math.IsNaN(float64(y)))
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}
