package ormlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// widget is the record type exercised by the rest of this package's tests.
type widget struct {
	ID   int64
	Name string
	Qty  int64
	Note *string // nullable
}

func widgetDescriptor() *TableDescriptor {
	return &TableDescriptor{
		TableName: "widgets",
		Columns: []ColumnDescriptor{
			{
				Name:            "id",
				StorageType:     StorageInteger,
				IsPrimaryKey:    true,
				IsAutoIncrement: true,
				Get:             func(r any) any { return r.(*widget).ID },
				Set:             func(r any, v any) { r.(*widget).ID = v.(int64) },
			},
			{
				Name:        "name",
				StorageType: StorageText,
				IsUnique:    true,
				Get:         func(r any) any { return r.(*widget).Name },
				Set:         func(r any, v any) { r.(*widget).Name = v.(string) },
			},
			{
				Name:              "qty",
				StorageType:       StorageInteger,
				DefaultExpression: "0",
				Get:               func(r any) any { return r.(*widget).Qty },
				Set:         func(r any, v any) { r.(*widget).Qty = v.(int64) },
			},
			{
				Name:        "note",
				StorageType: StorageText,
				IsNullable:  true,
				Get: func(r any) any {
					n := r.(*widget).Note
					if n == nil {
						return nil
					}
					return *n
				},
				Set: func(r any, v any) {
					if v == nil {
						r.(*widget).Note = nil
						return
					}
					s := v.(string)
					r.(*widget).Note = &s
				},
			},
		},
	}
}

// openTestConnection opens a fresh file-backed Connection, migrates the
// widgets table into it, and registers widget against it. The database
// lives in t.TempDir(), so each test gets its own file and widgets never
// collides with another test's schema.
func openTestConnection(t *testing.T) *Connection {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	conn, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	desc := widgetDescriptor()
	_, err = Migrate(ctx, conn, desc)
	require.NoError(t, err)

	require.NoError(t, RegisterType[widget](desc))

	return conn
}
