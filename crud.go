package ormlite

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/ormlite/ormlite/internal/util/lazyerrors"
)

// Insert modifiers, used as the second half of the prepared-statement
// cache key.
const (
	// ModifierNone inserts only insert_columns (every column except an
	// auto-increment primary key).
	ModifierNone = ""

	// ModifierOrReplace inserts every column, including the primary key,
	// enabling INSERT OR REPLACE semantics.
	ModifierOrReplace = "OR REPLACE"
)

// Insert binds obj's columns (per modifier) and steps the cached insert
// statement for T. If T's primary key is auto-increment and obj's key
// currently holds the zero sentinel, the engine assigns a rowid and
// Insert writes it back into obj's PK field. It then invokes every
// RelationSpec.WriteChildren and, if a row was affected, fires an Insert
// ChangeEvent.
func Insert[T any](ctx context.Context, c *Connection, obj *T, modifier string) error {
	desc, err := descriptorFor[T]()
	if err != nil {
		return err
	}

	cols := insertColumns(desc, modifier)

	cs, err := c.cachedInsertStatement(ctx, desc, modifier, cols)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	args := bindColumns(cols, obj)

	affected, lastID, err := cs.stmt.executeInsert(ctx, c, notNullColumnsHeld(cols, obj), args...)
	if err != nil {
		return err
	}

	if desc.hasAutoIncrementPK() && affected > 0 {
		desc.Columns[desc.primaryKeyIndex()].Set(obj, lastID)
	}

	if err := writeChildren(c, desc, obj); err != nil {
		return err
	}

	c.notifier.notifyIfAffected(affected, desc, ActionInsert)

	return nil
}

// Upsert compiles an INSERT ... ON CONFLICT(<pk>) DO UPDATE statement for
// T (not cached) and steps it, then performs the same post-action as
// Insert and fires an Upsert ChangeEvent.
func Upsert[T any](ctx context.Context, c *Connection, obj *T) error {
	desc, err := descriptorFor[T]()
	if err != nil {
		return err
	}

	pkIdx := desc.primaryKeyIndex()
	if pkIdx < 0 {
		return NewError(ErrUnsupportedOperation, fmt.Errorf("table %q has no primary key", desc.TableName))
	}

	pk := &desc.Columns[pkIdx]

	// An auto-increment PK still holding the zero sentinel means obj was
	// never inserted: omit it so the engine assigns a fresh rowid, the
	// same as a plain Insert. A non-zero value is the upsert's conflict
	// target and must be bound.
	cols := insertColumns(desc, ModifierOrReplace)
	if desc.hasAutoIncrementPK() && isZeroPK(pk, obj) {
		cols = insertColumns(desc, ModifierNone)
	}

	names := make([]string, len(cols))
	qmarks := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-1)

	for i, col := range cols {
		names[i] = quoteIdent(col.Name)
		qmarks[i] = "?"

		if col.Name != pk.Name {
			sets = append(sets, fmt.Sprintf("%s = ?", quoteIdent(col.Name)))
		}
	}

	stmtText := fmt.Sprintf(`INSERT INTO %s(%s) VALUES(%s) ON CONFLICT(%s) DO UPDATE SET %s`,
		quoteIdent(desc.TableName), strings.Join(names, ","), strings.Join(qmarks, ","),
		quoteIdent(pk.Name), strings.Join(sets, ", "))

	args := bindColumns(cols, obj)
	for _, col := range cols {
		if col.Name != pk.Name {
			args = append(args, col.Get(obj))
		}
	}

	ps, err := c.prepare(ctx, stmtText, len(args))
	if err != nil {
		return err
	}
	defer ps.dispose()

	affected, lastID, err := ps.executeInsert(ctx, c, notNullColumnsHeld(cols, obj), args...)
	if err != nil {
		return err
	}

	if desc.hasAutoIncrementPK() && affected > 0 {
		desc.Columns[desc.primaryKeyIndex()].Set(obj, lastID)
	}

	if err := writeChildren(c, desc, obj); err != nil {
		return err
	}

	c.notifier.notifyIfAffected(affected, desc, ActionUpsert)

	return nil
}

// Update requires T to have a primary key. It updates every non-PK column
// (or, if there are none, every column, so the statement remains
// syntactically valid and a no-op on values), binding non-PK values then
// the PK last. It then invokes every RelationSpec.WriteChildren and, if a
// row was affected, fires an Update ChangeEvent.
func Update[T any](ctx context.Context, c *Connection, obj *T) error {
	desc, err := descriptorFor[T]()
	if err != nil {
		return err
	}

	pkIdx := desc.primaryKeyIndex()
	if pkIdx < 0 {
		return NewError(ErrUnsupportedOperation, fmt.Errorf("table %q has no primary key: Update requires one", desc.TableName))
	}

	pk := &desc.Columns[pkIdx]

	nonPK := make([]*ColumnDescriptor, 0, len(desc.Columns)-1)

	for i := range desc.Columns {
		if i != pkIdx {
			nonPK = append(nonPK, &desc.Columns[i])
		}
	}

	if len(nonPK) == 0 {
		nonPK = append(nonPK, pk)
	}

	sets := make([]string, len(nonPK))
	args := make([]any, 0, len(nonPK)+1)

	for i, col := range nonPK {
		sets[i] = fmt.Sprintf("%s = ?", quoteIdent(col.Name))
		args = append(args, col.Get(obj))
	}

	args = append(args, pk.Get(obj))

	stmtText := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`,
		quoteIdent(desc.TableName), strings.Join(sets, ", "), quoteIdent(pk.Name))

	ps, err := c.prepare(ctx, stmtText, len(args))
	if err != nil {
		return err
	}
	defer ps.dispose()

	affected, err := ps.executeNonQuery(ctx, c, notNullColumnsHeld(nonPK, obj), args...)
	if err != nil {
		return err
	}

	if err := writeChildren(c, desc, obj); err != nil {
		return err
	}

	c.notifier.notifyIfAffected(affected, desc, ActionUpdate)

	return nil
}

// Delete removes the row whose primary key matches obj's PK field. T must
// have a primary key.
func Delete[T any](ctx context.Context, c *Connection, obj *T) error {
	desc, err := descriptorFor[T]()
	if err != nil {
		return err
	}

	pkIdx := desc.primaryKeyIndex()
	if pkIdx < 0 {
		return NewError(ErrUnsupportedOperation, fmt.Errorf("table %q has no primary key: Delete requires one", desc.TableName))
	}

	return deleteWhere(ctx, c, desc, desc.Columns[pkIdx].Get(obj))
}

// DeleteByKey removes the row whose primary key equals key. T must have a
// primary key.
func DeleteByKey[T any](ctx context.Context, c *Connection, key any) error {
	desc, err := descriptorFor[T]()
	if err != nil {
		return err
	}

	if desc.primaryKeyIndex() < 0 {
		return NewError(ErrUnsupportedOperation, fmt.Errorf("table %q has no primary key: DeleteByKey requires one", desc.TableName))
	}

	return deleteWhere(ctx, c, desc, key)
}

// deleteWhere issues DELETE FROM "<table>" WHERE "pk" = ?.
func deleteWhere(ctx context.Context, c *Connection, desc *TableDescriptor, key any) error {
	pkIdx := desc.primaryKeyIndex()
	pk := &desc.Columns[pkIdx]

	stmtText := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, quoteIdent(desc.TableName), quoteIdent(pk.Name))

	affected, err := c.Execute(ctx, stmtText, key)
	if err != nil {
		return err
	}

	c.notifier.notifyIfAffected(affected, desc, ActionDelete)

	return nil
}

// DeleteAll removes every row of T's table.
func DeleteAll[T any](ctx context.Context, c *Connection) error {
	desc, err := descriptorFor[T]()
	if err != nil {
		return err
	}

	affected, err := c.Execute(ctx, fmt.Sprintf(`DELETE FROM %s`, quoteIdent(desc.TableName)))
	if err != nil {
		return err
	}

	c.notifier.notifyIfAffected(affected, desc, ActionDelete)

	return nil
}

// FindByPK returns the row whose primary key equals key, or ok=false if no
// such row exists.
func FindByPK[T any](ctx context.Context, c *Connection, key any) (T, bool, error) {
	var zero T

	desc, err := descriptorFor[T]()
	if err != nil {
		return zero, false, err
	}

	pkIdx := desc.primaryKeyIndex()
	if pkIdx < 0 {
		return zero, false, NewError(ErrUnsupportedOperation, fmt.Errorf("table %q has no primary key: FindByPK requires one", desc.TableName))
	}

	pk := &desc.Columns[pkIdx]

	stmtText := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, selectColumns(desc), quoteIdent(desc.TableName), quoteIdent(pk.Name))

	rows, err := Query[T](ctx, c, stmtText, key)
	if err != nil {
		return zero, false, err
	}

	if len(rows) == 0 {
		return zero, false, nil
	}

	return rows[0], true, nil
}

// FindAll returns every row of T's table.
func FindAll[T any](ctx context.Context, c *Connection) ([]T, error) {
	desc, err := descriptorFor[T]()
	if err != nil {
		return nil, err
	}

	stmtText := fmt.Sprintf(`SELECT %s FROM %s`, selectColumns(desc), quoteIdent(desc.TableName))

	return Query[T](ctx, c, stmtText)
}

// selectColumns renders every column name of desc, comma-joined and
// quoted, in declaration order.
func selectColumns(desc *TableDescriptor) string {
	names := make([]string, len(desc.Columns))
	for i := range desc.Columns {
		names[i] = quoteIdent(desc.Columns[i].Name)
	}

	return strings.Join(names, ",")
}

// insertColumns returns the columns an insert with modifier binds: every
// column for ModifierOrReplace, every column except an auto-increment
// primary key otherwise.
func insertColumns(desc *TableDescriptor, modifier string) []*ColumnDescriptor {
	if modifier == ModifierOrReplace {
		out := make([]*ColumnDescriptor, len(desc.Columns))
		for i := range desc.Columns {
			out[i] = &desc.Columns[i]
		}

		return out
	}

	out := make([]*ColumnDescriptor, 0, len(desc.Columns))

	for i := range desc.Columns {
		if desc.Columns[i].IsAutoIncrement && desc.Columns[i].IsPrimaryKey {
			continue
		}

		out = append(out, &desc.Columns[i])
	}

	return out
}

// isZeroPK reports whether pk's current value on obj is its type's zero
// value, the sentinel Insert/Upsert treat as "not yet assigned".
func isZeroPK(pk *ColumnDescriptor, obj any) bool {
	v := pk.Get(obj)
	if v == nil {
		return true
	}

	return reflect.ValueOf(v).IsZero()
}

// bindColumns reads cols' values off obj, in order.
func bindColumns(cols []*ColumnDescriptor, obj any) []any {
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = col.Get(obj)
	}

	return args
}

// notNullColumnsHeld returns the names of cols whose field is non-nullable
// but currently holds Go nil on obj, the set NotNullConstraintViolation
// should report if the engine rejects the statement.
func notNullColumnsHeld(cols []*ColumnDescriptor, obj any) []string {
	var names []string

	for _, col := range cols {
		if !col.IsNullable && col.Get(obj) == nil {
			names = append(names, col.Name)
		}
	}

	return names
}

// writeChildren invokes every RelationSpec.WriteChildren for desc against
// obj, wrapping the first error encountered.
func writeChildren(c *Connection, desc *TableDescriptor, obj any) error {
	for _, rel := range desc.Relations {
		if rel.WriteChildren == nil {
			continue
		}

		if err := rel.WriteChildren(c, obj); err != nil {
			return lazyerrors.Errorf("relation %q: %w", rel.Name, err)
		}
	}

	return nil
}

// cachedInsertStatement returns the cached prepared statement for
// (desc.typeID, modifier), preparing and racing to insert it if absent.
// The statement text is built from cols, which the caller has already
// derived from modifier so the two stay consistent.
func (c *Connection) cachedInsertStatement(ctx context.Context, desc *TableDescriptor, modifier string, cols []*ColumnDescriptor) (*cachedStatement, error) {
	key := cacheKey{typeID: desc.typeID, modifier: modifier}

	c.cacheMu.Lock()
	if cs, ok := c.cache[key]; ok {
		c.cacheMu.Unlock()
		return cs, nil
	}
	c.cacheMu.Unlock()

	stmtText, paramCount := insertStatementSQL(desc, modifier, cols)

	ps, err := c.prepare(ctx, stmtText, paramCount)
	if err != nil {
		return nil, err
	}

	candidate := &cachedStatement{stmt: ps}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if cs, ok := c.cache[key]; ok {
		if err := candidate.stmt.dispose(); err != nil {
			c.opts.logger.Warn("failed to dispose duplicate cached statement", zap.Error(err))
		}

		return cs, nil
	}

	c.cache[key] = candidate

	return candidate, nil
}

// insertStatementSQL renders the INSERT statement text for cols, using the
// DEFAULT VALUES form when the only column is an auto-increment primary
// key.
func insertStatementSQL(desc *TableDescriptor, modifier string, cols []*ColumnDescriptor) (string, int) {
	modClause := ""
	if modifier != "" {
		modClause = modifier + " "
	}

	if len(cols) == 0 {
		return fmt.Sprintf(`INSERT %sINTO %s DEFAULT VALUES`, modClause, quoteIdent(desc.TableName)), 0
	}

	names := make([]string, len(cols))
	qmarks := make([]string, len(cols))

	for i, col := range cols {
		names[i] = quoteIdent(col.Name)
		qmarks[i] = "?"
	}

	stmtText := fmt.Sprintf(`INSERT %sINTO %s(%s) VALUES(%s)`,
		modClause, quoteIdent(desc.TableName), strings.Join(names, ","), strings.Join(qmarks, ","))

	return stmtText, len(cols)
}
