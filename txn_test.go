package ormlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginCommitRoundTripsDepthToZero(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	assert.Equal(t, int64(1), conn.transactionDepth.Load())

	require.NoError(t, Insert(ctx, conn, &widget{Name: "a", Qty: 1}, ModifierNone))

	require.NoError(t, conn.Commit(ctx))
	assert.Equal(t, int64(0), conn.transactionDepth.Load())

	all, err := FindAll[widget](ctx, conn)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBeginTwiceFails(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	t.Cleanup(func() { _ = conn.Rollback(ctx) })

	err := conn.BeginTransaction(ctx)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidState))
}

func TestRollbackDiscardsChanges(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	require.NoError(t, Insert(ctx, conn, &widget{Name: "a", Qty: 1}, ModifierNone))
	require.NoError(t, conn.Rollback(ctx))

	assert.Equal(t, int64(0), conn.transactionDepth.Load())

	all, err := FindAll[widget](ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNestedSavepointsReleaseIndependently(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	t.Cleanup(func() { _ = conn.Rollback(ctx) })

	require.NoError(t, Insert(ctx, conn, &widget{Name: "outer", Qty: 1}, ModifierNone))

	sp1, err := conn.SaveTransactionPoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), conn.transactionDepth.Load())

	require.NoError(t, Insert(ctx, conn, &widget{Name: "inner", Qty: 2}, ModifierNone))

	sp2, err := conn.SaveTransactionPoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), conn.transactionDepth.Load())

	require.NoError(t, Insert(ctx, conn, &widget{Name: "innermost", Qty: 3}, ModifierNone))

	require.NoError(t, conn.RollbackTo(ctx, sp2))
	assert.Equal(t, int64(2), conn.transactionDepth.Load())

	all, err := FindAll[widget](ctx, conn)
	require.NoError(t, err)
	assert.Len(t, all, 2) // outer and inner survive; innermost was rolled back

	require.NoError(t, conn.Release(ctx, sp1))
	assert.Equal(t, int64(1), conn.transactionDepth.Load())
}

func TestRunInTransactionRollsBackFullyOnError(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	require.NoError(t, Insert(ctx, conn, &widget{Name: "outer", Qty: 1}, ModifierNone))

	boom := errors.New("boom")

	err := conn.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, Insert(ctx, conn, &widget{Name: "inner", Qty: 2}, ModifierNone))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), conn.transactionDepth.Load())

	all, err2 := FindAll[widget](ctx, conn)
	require.NoError(t, err2)
	assert.Empty(t, all) // the whole outer transaction was rolled back, not just the savepoint
}

func TestRunInTransactionReleasesOnSuccess(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	t.Cleanup(func() { _ = conn.Rollback(ctx) })

	err := conn.RunInTransaction(ctx, func(ctx context.Context) error {
		return Insert(ctx, conn, &widget{Name: "ok", Qty: 1}, ModifierNone)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), conn.transactionDepth.Load())

	require.NoError(t, conn.Commit(ctx))

	all, err := FindAll[widget](ctx, conn)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSavepointTokenDepthRoundTrips(t *testing.T) {
	t.Parallel()

	token := newSavepointToken(2)
	depth, err := token.depth()
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
}

func TestSavepointTokenDepthRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	_, err := SavepointToken("not-a-token").depth()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidArgument))
}

func TestCommitAndRollbackAreNoOpsWithoutTransaction(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	assert.NoError(t, conn.Commit(ctx))
	assert.NoError(t, conn.Rollback(ctx))
}

func TestRollbackToEmptyTokenDegradesToFullRollback(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, conn.BeginTransaction(ctx))
	require.NoError(t, Insert(ctx, conn, &widget{Name: "a", Qty: 1}, ModifierNone))

	require.NoError(t, conn.RollbackTo(ctx, ""))
	assert.Equal(t, int64(0), conn.transactionDepth.Load())

	all, err := FindAll[widget](ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, all)
}
