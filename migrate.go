package ormlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ormlite/ormlite/internal/util/lazyerrors"
)

// MigrationResult reports what Migrate did to bring a table in line with a
// TableDescriptor.
type MigrationResult int

// Migration results.
const (
	// Created means the table did not exist and was created from scratch.
	Created MigrationResult = iota

	// Migrated means the table already existed. It is returned even when
	// no columns needed to be added.
	Migrated
)

// String implements fmt.Stringer.
func (r MigrationResult) String() string {
	if r == Created {
		return "Created"
	}

	return "Migrated"
}

// Migrate ensures a table matching desc exists on conn, creating it if
// absent and additively reconciling its columns otherwise. It never drops,
// renames, or retypes an existing column.
func Migrate(ctx context.Context, conn *Connection, desc *TableDescriptor) (MigrationResult, error) {
	return migrateDB(ctx, conn.db, desc)
}

// migrateDB is Migrate's implementation against the Connection's raw
// *sql.DB handle.
func migrateDB(ctx context.Context, db *sql.DB, desc *TableDescriptor) (MigrationResult, error) {
	if err := desc.validate(); err != nil {
		return 0, err
	}

	existing, err := tableInfo(ctx, db, desc.TableName)
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	if len(existing) == 0 {
		if _, err := db.ExecContext(ctx, desc.createTableSQL()); err != nil {
			return 0, lazyerrors.Error(err)
		}

		if err := createIndices(ctx, db, desc); err != nil {
			return 0, err
		}

		return Created, nil
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.name)] = true
	}

	for i := range desc.Columns {
		col := &desc.Columns[i]

		if have[strings.ToLower(col.Name)] {
			continue
		}

		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, quoteIdent(desc.TableName), col.sqlDeclaration())

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return 0, lazyerrors.Error(err)
		}
	}

	if err := createIndices(ctx, db, desc); err != nil {
		return 0, err
	}

	return Migrated, nil
}

// createIndices emits CREATE INDEX IF NOT EXISTS for every index derived
// from desc.
func createIndices(ctx context.Context, db *sql.DB, desc *TableDescriptor) error {
	specs, err := desc.buildIndexSpecs()
	if err != nil {
		return err
	}

	for _, spec := range specs {
		if _, err := db.ExecContext(ctx, indexSQL(spec)); err != nil {
			return lazyerrors.Error(err)
		}
	}

	return nil
}

// TableInfo is a snapshot of a table's current on-disk schema, read back
// via PRAGMA rather than derived from a TableDescriptor.
type TableInfo struct {
	Name    string
	Columns []ColumnInfo
	Indices []IndexInfo
}

// ColumnInfo describes one column of a TableInfo, as reported by
// PRAGMA table_info.
type ColumnInfo struct {
	Name         string
	DeclaredType string
	NotNull      bool
	PrimaryKey   bool
	DefaultValue *string
}

// IndexInfo describes one index of a TableInfo, as reported by
// PRAGMA index_list/index_info.
type IndexInfo struct {
	Name    string
	Unique  bool
	Columns []string
}

// Describe reads conn's current on-disk schema for table back via
// PRAGMA table_info and PRAGMA index_list/index_info, independent of any
// TableDescriptor. It returns a nil *TableInfo, no error, if the table
// does not exist.
func Describe(ctx context.Context, conn *Connection, table string) (*TableInfo, error) {
	cols, err := tableInfo(ctx, conn.db, table)
	if err != nil {
		return nil, err
	}

	if len(cols) == 0 {
		return nil, nil
	}

	info := &TableInfo{Name: table}

	for _, c := range cols {
		info.Columns = append(info.Columns, ColumnInfo{
			Name:         c.name,
			DeclaredType: c.ctype,
			NotNull:      c.notNull,
			PrimaryKey:   c.pk > 0,
			DefaultValue: c.defaultVal,
		})
	}

	indices, err := indexList(ctx, conn.db, table)
	if err != nil {
		return nil, err
	}

	info.Indices = indices

	return info, nil
}

// indexList returns the result of PRAGMA index_list("<table>") with each
// index's member columns resolved via PRAGMA index_info("<name>").
func indexList(ctx context.Context, db *sql.DB, table string) ([]IndexInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, lazyerrors.Error(err)
	}
	defer rows.Close()

	type rawIndex struct {
		name   string
		unique bool
	}

	var raw []rawIndex

	for rows.Next() {
		var (
			seq     int64
			name    string
			unique  int64
			origin  string
			partial int64
		)

		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, lazyerrors.Error(err)
		}

		raw = append(raw, rawIndex{name: name, unique: unique != 0})
	}

	if err := rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	indices := make([]IndexInfo, 0, len(raw))

	for _, r := range raw {
		cols, err := indexInfo(ctx, db, r.name)
		if err != nil {
			return nil, err
		}

		indices = append(indices, IndexInfo{Name: r.name, Unique: r.unique, Columns: cols})
	}

	return indices, nil
}

// indexInfo returns the member column names of index, in index-key order,
// via PRAGMA index_info("<name>").
func indexInfo(ctx context.Context, db *sql.DB, index string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%s)`, quoteIdent(index)))
	if err != nil {
		return nil, lazyerrors.Error(err)
	}
	defer rows.Close()

	var cols []string

	for rows.Next() {
		var (
			seqno int64
			cid   int64
			name  string
		)

		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, lazyerrors.Error(err)
		}

		cols = append(cols, name)
	}

	if err := rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return cols, nil
}

// tableInfo returns the result of PRAGMA table_info("<table>"), or an empty
// slice if the table does not exist.
func tableInfo(ctx context.Context, db *sql.DB, table string) ([]existingColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, lazyerrors.Error(err)
	}
	defer rows.Close()

	var cols []existingColumn

	for rows.Next() {
		var (
			cid     int64
			name    string
			ctype   string
			notNull int64
			dflt    any
			pk      int64
		)

		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, lazyerrors.Error(err)
		}

		cols = append(cols, parseTableInfoRow(cid, name, ctype, notNull, dflt, pk))
	}

	if err := rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return cols, nil
}
