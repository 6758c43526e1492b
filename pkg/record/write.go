package record

import (
	"context"
	"slices"
	"strings"

	"github.com/leapstack-labs/leaprow/pkg/conn"
	"github.com/leapstack-labs/leaprow/pkg/core"
	"github.com/leapstack-labs/leaprow/pkg/schema"
)

// Insert writes e as a new row. The generated auto-increment value, if any,
// is stored back into e, and e's snapshot is taken.
func (t *Table[T]) Insert(ctx context.Context, e *T) error {
	fields := t.info.WriteFields()
	if len(fields) == 0 {
		return core.NewConfigError(t.info.Entity(), "insert", core.ErrNoWriteFields, "")
	}
	if h, ok := any(e).(BeforeWriter); ok {
		if err := h.BeforeWrite(ctx); err != nil {
			return err
		}
	}

	c, err := t.writer(ctx)
	if err != nil {
		return err
	}

	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = c.Quote(f.Name)
		marks[i] = "?"
		if args[i], err = t.info.BindValue(e, f); err != nil {
			return err
		}
	}
	query := "INSERT INTO " + c.QuoteQualified(t.info.Table) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	if ai := t.info.AutoIncrement(); ai != nil {
		id, err := c.ExecInsert(ctx, query, ai.Name, args...)
		if err != nil {
			return err
		}
		if err := t.info.Set(e, ai.Name, schema.TypeCast(id, schema.TypeInt)); err != nil {
			return err
		}
	} else if _, err := c.StmtExecute(ctx, query, args...); err != nil {
		return err
	}

	modelOf(e).snapshot = nil
	return t.remember(e, nil)
}

// Update writes e's changes. With no fields named, the write fields whose
// values differ from the snapshot are written; with fields named, exactly
// those are written. The row is addressed by the snapshot's key values when
// e was loaded, so a changed primary key is written too.
func (t *Table[T]) Update(ctx context.Context, e *T, fields ...string) (UpdateStatus, error) {
	keys, err := t.info.KeyFields("update")
	if err != nil {
		return UpdateUnchanged, err
	}

	var targets []*schema.Field
	if len(fields) > 0 {
		if targets, err = t.writable("update", fields); err != nil {
			return UpdateUnchanged, err
		}
	} else if targets, err = t.changedFields(e); err != nil {
		return UpdateUnchanged, err
	}
	if len(targets) == 0 {
		return UpdateUnchanged, nil
	}

	if h, ok := any(e).(BeforeWriter); ok {
		if err := h.BeforeWrite(ctx); err != nil {
			return UpdateUnchanged, err
		}
	}

	c, err := t.writer(ctx)
	if err != nil {
		return UpdateUnchanged, err
	}

	sets := make([]string, len(targets))
	args := make([]any, 0, len(targets)+len(keys))
	for i, f := range targets {
		sets[i] = c.Quote(f.Name) + " = ?"
		v, err := t.info.BindValue(e, f)
		if err != nil {
			return UpdateUnchanged, err
		}
		args = append(args, v)
	}
	cond, keyArgs, err := t.rowKey(c, e, keys)
	if err != nil {
		return UpdateUnchanged, err
	}
	args = append(args, keyArgs...)

	query := "UPDATE " + c.QuoteQualified(t.info.Table) + " SET " + strings.Join(sets, ", ") + " WHERE " + cond
	n, err := c.Execute(ctx, query, args...)
	if err != nil {
		return UpdateUnchanged, err
	}
	if n == 0 {
		return UpdateNoRows, nil
	}
	return UpdateApplied, t.remember(e, targets)
}

// UpdateWithout writes every write field except the excluded ones.
func (t *Table[T]) UpdateWithout(ctx context.Context, e *T, excluded ...string) (UpdateStatus, error) {
	for _, name := range excluded {
		if _, err := t.info.MustField(name); err != nil {
			return UpdateUnchanged, err
		}
	}
	var fields []string
	for _, f := range t.info.WriteFields() {
		if !slices.Contains(excluded, f.Name) {
			fields = append(fields, f.Name)
		}
	}
	if len(fields) == 0 {
		return UpdateUnchanged, nil
	}
	return t.Update(ctx, e, fields...)
}

// Delete removes e's row and returns the number of rows deleted.
func (t *Table[T]) Delete(ctx context.Context, e *T) (int64, error) {
	keys, err := t.deleteKeys()
	if err != nil {
		return 0, err
	}
	c, err := t.writer(ctx)
	if err != nil {
		return 0, err
	}
	cond, args, err := t.rowKey(c, e, keys)
	if err != nil {
		return 0, err
	}

	n, err := c.Execute(ctx, "DELETE FROM "+c.QuoteQualified(t.info.Table)+" WHERE "+cond, args...)
	if err != nil {
		return 0, err
	}
	m := modelOf(e)
	m.fetched = false
	m.snapshot = nil
	return n, nil
}

// DeleteByPK removes the row with the given primary key. values are given in
// key declaration order, or as a single Key.
func (t *Table[T]) DeleteByPK(ctx context.Context, values ...any) (int64, error) {
	keys, err := t.deleteKeys()
	if err != nil {
		return 0, err
	}
	c, err := t.writer(ctx)
	if err != nil {
		return 0, err
	}
	cond, args, err := keyClause(c, keys, values)
	if err != nil {
		return 0, err
	}
	return c.Execute(ctx, "DELETE FROM "+c.QuoteQualified(t.info.Table)+" WHERE "+cond, args...)
}

func (t *Table[T]) deleteKeys() ([]*schema.Field, error) {
	if t.info.Immutable {
		return nil, core.NewConfigError(t.info.Entity(), "delete", core.ErrImmutableTable, "")
	}
	return t.info.KeyFields("delete")
}

// rowKey addresses e's row, preferring the key values in its snapshot.
func (t *Table[T]) rowKey(c *conn.Connection, e *T, keys []*schema.Field) (string, []any, error) {
	snap := modelOf(e).snapshot
	values := make([]any, len(keys))
	for i, f := range keys {
		if v, ok := snap[f.Name]; ok {
			values[i] = v
			continue
		}
		v, err := t.info.Get(e, f.Name)
		if err != nil {
			return "", nil, err
		}
		values[i] = v
	}
	return keyClause(c, keys, values)
}

// writable resolves names to write fields.
func (t *Table[T]) writable(op string, names []string) ([]*schema.Field, error) {
	out := make([]*schema.Field, 0, len(names))
	for _, name := range names {
		f, err := t.info.MustField(name)
		if err != nil {
			return nil, err
		}
		if f.AutoIncr || f.ReadOnly {
			return nil, core.NewConfigError(t.info.Entity(), op, core.ErrUnsupportedField, "%s is not writable", name)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}
