package ormlite

import (
	"context"
	"database/sql"

	"github.com/ormlite/ormlite/internal/util/lazyerrors"
)

// PreparedStatement wraps a compiled *sql.Stmt together with the metadata
// the insert/upsert pipeline needs to bind and classify errors against it.
// A PreparedStatement is disposed exactly once, before its owning
// Connection's handle is closed.
type PreparedStatement struct {
	stmt *sql.Stmt

	sqlText        string
	parameterCount int
}

// prepare compiles sqlText against c's handle.
func (c *Connection) prepare(ctx context.Context, sqlText string, parameterCount int) (*PreparedStatement, error) {
	stmt, err := c.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, c.classifyEngineError(err, nil)
	}

	return &PreparedStatement{stmt: stmt, sqlText: sqlText, parameterCount: parameterCount}, nil
}

// executeNonQuery steps ps to completion and returns the affected-row
// count, classifying errors with cols for NOT NULL attribution.
func (ps *PreparedStatement) executeNonQuery(ctx context.Context, c *Connection, cols []string, args ...any) (int64, error) {
	affected, _, err := ps.executeInsert(ctx, c, cols, args...)
	return affected, err
}

// executeInsert is executeNonQuery plus the engine's last_insert_rowid(),
// read directly off the sql.Result rather than issuing a second
// round-trip query for it.
func (ps *PreparedStatement) executeInsert(ctx context.Context, c *Connection, cols []string, args ...any) (affected, lastID int64, err error) {
	res, err := ps.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, 0, c.classifyEngineError(err, cols)
	}

	affected, err = res.RowsAffected()
	if err != nil {
		return 0, 0, NewError(ErrEngine, lazyerrors.Error(err))
	}

	lastID, err = res.LastInsertId()
	if err != nil {
		return 0, 0, NewError(ErrEngine, lazyerrors.Error(err))
	}

	return affected, lastID, nil
}

// dispose releases the compiled statement handle. It must be called
// exactly once.
func (ps *PreparedStatement) dispose() error {
	return ps.stmt.Close()
}
