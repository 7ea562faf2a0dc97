package ormlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormlite/ormlite/internal/util/iterator"
)

func TestCursorNextReturnsErrIteratorDoneOnExhaustion(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, Insert(ctx, conn, &widget{Name: "a", Qty: 1}, ModifierNone))

	cur, err := DeferredQuery[widget](ctx, conn, `SELECT id, name, qty, note FROM "widgets"`)
	require.NoError(t, err)

	_, rec, err := cur.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Name)

	_, _, err = cur.Next()
	assert.True(t, errors.Is(err, iterator.ErrIteratorDone))
}

func TestCursorNextReportsIncrementingRowIndex(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, Insert(ctx, conn, &widget{Name: "a", Qty: 1}, ModifierNone))
	require.NoError(t, Insert(ctx, conn, &widget{Name: "b", Qty: 2}, ModifierNone))
	require.NoError(t, Insert(ctx, conn, &widget{Name: "c", Qty: 3}, ModifierNone))

	cur, err := DeferredQuery[widget](ctx, conn, `SELECT id, name, qty, note FROM "widgets" ORDER BY id`)
	require.NoError(t, err)

	for want := 0; want < 3; want++ {
		i, rec, err := cur.Next()
		require.NoError(t, err)
		assert.Equal(t, want, i)
		assert.NotEmpty(t, rec.Name)
	}

	_, _, err = cur.Next()
	assert.True(t, errors.Is(err, iterator.ErrIteratorDone))
}

func TestCursorCloseBeforeExhaustionIsSafe(t *testing.T) {
	t.Parallel()

	conn := openTestConnection(t)
	ctx := context.Background()

	require.NoError(t, Insert(ctx, conn, &widget{Name: "a", Qty: 1}, ModifierNone))
	require.NoError(t, Insert(ctx, conn, &widget{Name: "b", Qty: 2}, ModifierNone))

	cur, err := DeferredQuery[widget](ctx, conn, `SELECT id, name, qty, note FROM "widgets"`)
	require.NoError(t, err)

	_, _, err = cur.Next()
	require.NoError(t, err)

	cur.Close()
	cur.Close() // idempotent

	_, _, err = cur.Next()
	assert.True(t, errors.Is(err, iterator.ErrIteratorDone))
}
