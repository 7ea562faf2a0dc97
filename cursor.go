package ormlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/ormlite/ormlite/internal/util/iterator"
	"github.com/ormlite/ormlite/internal/util/lazyerrors"
	"github.com/ormlite/ormlite/internal/util/resource"
)

// Cursor is a lazily-stepped sequence of T produced by DeferredQuery. Each
// call to Next advances the underlying prepared statement by exactly one
// row. A Cursor borrows its Connection for its entire lifetime: the
// Connection must remain open, and no other statement may be issued
// against it, until the Cursor is closed, explicitly or by exhaustion.
//
//nolint:vet // for readability
type Cursor[T any] struct {
	ctx  context.Context
	conn *Connection
	desc *TableDescriptor

	m       sync.Mutex
	rows    *sql.Rows
	idx     []int // lazily computed on first Next
	numCols int    // result-set column count idx was built against
	n       int    // rows returned so far, for the index Next reports

	token *resource.Token
}

// newCursor returns a Cursor that owns rows and reads columns per desc.
func newCursor[T any](ctx context.Context, conn *Connection, rows *sql.Rows, desc *TableDescriptor) *Cursor[T] {
	c := &Cursor[T]{
		ctx:   ctx,
		conn:  conn,
		desc:  desc,
		rows:  rows,
		token: resource.NewToken(),
	}
	resource.Track(c, c.token)

	return c
}

// Next implements iterator.Interface. It returns the next row's index
// (zero-based) and decoded record, or a (possibly wrapped)
// iterator.ErrIteratorDone once the result set is exhausted.
func (c *Cursor[T]) Next() (int, T, error) {
	c.m.Lock()
	defer c.m.Unlock()

	var zero T

	if c.rows == nil {
		return c.n, zero, iterator.ErrIteratorDone
	}

	if err := context.Cause(c.ctx); err != nil {
		return c.n, zero, lazyerrors.Error(err)
	}

	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return c.n, zero, c.conn.classifyEngineError(err, nil)
		}

		c.close()

		return c.n, zero, iterator.ErrIteratorDone
	}

	if c.idx == nil {
		names, err := c.rows.Columns()
		if err != nil {
			return c.n, zero, NewError(ErrEngine, lazyerrors.Error(err))
		}

		c.idx = columnIndex(names, c.desc)
		c.numCols = len(names)
	}

	var rec T

	if err := scanRowIndexed(c.rows, c.desc, c.idx, c.numCols, &rec); err != nil {
		return c.n, zero, err
	}

	i := c.n
	c.n++

	return i, rec, nil
}

// Close releases the underlying statement. It is safe to call more than
// once and after the Cursor has already been exhausted.
func (c *Cursor[T]) Close() {
	c.m.Lock()
	defer c.m.Unlock()

	c.close()
}

// close releases resources without holding the mutex; callers must already
// hold c.m.
func (c *Cursor[T]) close() {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}

	resource.Untrack(c, c.token)
}
