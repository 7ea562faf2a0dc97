package ormlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormlite/ormlite/internal/util/lazyerrors"
)

// SavepointToken identifies a savepoint created by SaveTransactionPoint. Its
// string form is "S<random>D<depth>", where depth is the connection's
// transaction depth before the savepoint was created.
type SavepointToken string

// newSavepointToken returns a fresh token for a savepoint created while the
// connection's depth is about to move from depth to depth+1.
func newSavepointToken(depth int64) SavepointToken {
	rnd := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return SavepointToken(fmt.Sprintf("S%sD%d", rnd, depth))
}

// depth parses the depth embedded in the token. It fails with
// ErrInvalidArgument for any string not of the form S<random>D<depth>.
func (t SavepointToken) depth() (int64, error) {
	s := string(t)

	if !strings.HasPrefix(s, "S") {
		return 0, NewError(ErrInvalidArgument, fmt.Errorf("malformed savepoint token %q", s))
	}

	i := strings.LastIndexByte(s, 'D')
	if i < 0 || i == len(s)-1 {
		return 0, NewError(ErrInvalidArgument, fmt.Errorf("malformed savepoint token %q", s))
	}

	d, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return 0, NewError(ErrInvalidArgument, fmt.Errorf("malformed savepoint token %q: %w", s, err))
	}

	return d, nil
}

// BeginTransaction starts the outermost transaction on c. It fails with
// ErrInvalidState if a transaction is already open.
func (c *Connection) BeginTransaction(ctx context.Context) error {
	if !c.transactionDepth.CompareAndSwap(0, 1) {
		return NewError(ErrInvalidState, fmt.Errorf("transaction already open at depth %d", c.transactionDepth.Load()))
	}

	if _, err := c.db.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return c.handleTxnError(ctx, err, false)
	}

	return nil
}

// SaveTransactionPoint creates a nested savepoint and returns its token.
func (c *Connection) SaveTransactionPoint(ctx context.Context) (SavepointToken, error) {
	prior := c.transactionDepth.Add(1) - 1
	token := newSavepointToken(prior)

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", quoteIdent(string(token)))); err != nil {
		return "", c.handleTxnError(ctx, err, true)
	}

	return token, nil
}

// Release releases the savepoint identified by token, moving the
// transaction depth back to the depth recorded in the token.
func (c *Connection) Release(ctx context.Context, token SavepointToken) error {
	depth, err := token.depth()
	if err != nil {
		return err
	}

	current := c.transactionDepth.Load()
	if depth < 0 || depth >= current {
		return NewError(ErrInvalidArgument, fmt.Errorf("savepoint token %q targets depth %d, current depth is %d", token, depth, current))
	}

	c.transactionDepth.Store(depth)

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("RELEASE %s", quoteIdent(string(token)))); err != nil {
		if code, ok := extendedCode(err); ok && isBusy(code) {
			c.bestEffortRollback(ctx)
		}

		return c.classifyEngineError(err, nil)
	}

	return nil
}

// RollbackTo rolls the transaction back to the savepoint identified by
// token without releasing it, leaving the transaction open. A nil/empty
// token degrades to a full Rollback.
func (c *Connection) RollbackTo(ctx context.Context, token SavepointToken) error {
	if token == "" {
		return c.Rollback(ctx)
	}

	depth, err := token.depth()
	if err != nil {
		return err
	}

	current := c.transactionDepth.Load()
	if depth < 0 || depth >= current {
		return NewError(ErrInvalidArgument, fmt.Errorf("savepoint token %q targets depth %d, current depth is %d", token, depth, current))
	}

	c.transactionDepth.Store(depth)

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO %s", quoteIdent(string(token)))); err != nil {
		if code, ok := extendedCode(err); ok && isBusy(code) {
			c.bestEffortRollback(ctx)
		}

		return c.classifyEngineError(err, nil)
	}

	return nil
}

// Rollback fully exits the transaction, rolling back every nested
// savepoint. It is a no-op if no transaction is open.
func (c *Connection) Rollback(ctx context.Context) error {
	prior := c.transactionDepth.Swap(0)
	if prior == 0 {
		return nil
	}

	if _, err := c.db.ExecContext(ctx, "ROLLBACK"); err != nil {
		return c.classifyEngineError(err, nil)
	}

	return nil
}

// Commit commits the outermost transaction. It is a no-op if no
// transaction is open. On failure it attempts a best-effort rollback
// (ignoring any secondary error) before returning the commit error.
func (c *Connection) Commit(ctx context.Context) error {
	prior := c.transactionDepth.Swap(0)
	if prior == 0 {
		return nil
	}

	if _, err := c.db.ExecContext(ctx, "COMMIT"); err != nil {
		c.bestEffortRollback(ctx)
		return c.classifyEngineError(err, nil)
	}

	return nil
}

// RunInTransaction acquires a savepoint, invokes action, releases the
// savepoint on success, and performs a full Rollback (not just a
// rollback-to) if action returns an error; nested scopes deliberately
// inherit the outer rollback.
func (c *Connection) RunInTransaction(ctx context.Context, action func(ctx context.Context) error) error {
	token, err := c.SaveTransactionPoint(ctx)
	if err != nil {
		return err
	}

	if err := action(ctx); err != nil {
		if rerr := c.Rollback(ctx); rerr != nil {
			return lazyerrors.Errorf("%w (rollback also failed: %s)", err, rerr)
		}

		return err
	}

	return c.Release(ctx, token)
}

// handleTxnError applies the fatal-class rollback policy for errors
// encountered inside BeginTransaction or SaveTransactionPoint: on a fatal
// code, force the depth to zero, best-effort ROLLBACK, and return the
// original error; otherwise just decrement the depth and return it.
func (c *Connection) handleTxnError(ctx context.Context, err error, wasNested bool) error {
	code, ok := extendedCode(err)

	if ok && isFatalClass(code) {
		c.transactionDepth.Store(0)
		c.bestEffortRollback(ctx)

		return c.classifyEngineError(err, nil)
	}

	if !wasNested {
		c.transactionDepth.Store(0)
	} else {
		c.transactionDepth.Add(-1)
	}

	return c.classifyEngineError(err, nil)
}

// bestEffortRollback issues ROLLBACK and swallows any error, per the
// fatal-error and release/commit-failure policies. A failure here means the
// connection is already in an unrecoverable state; it is logged, not
// returned, since the caller is already propagating the error that
// triggered the rollback attempt.
func (c *Connection) bestEffortRollback(ctx context.Context) {
	if _, err := c.db.ExecContext(ctx, "ROLLBACK"); err != nil {
		c.opts.logger.Warn("best-effort ROLLBACK failed", zap.Error(lazyerrors.UnwrapAll(err)))
	}
}
