package ormlite

import (
	"fmt"
	"sort"
	"strings"
)

// StorageType is the SQLite storage class a column is declared with.
type StorageType int

// Storage types.
const (
	// StorageInvalid is the zero value; a ColumnDescriptor must not use it.
	StorageInvalid StorageType = iota

	StorageInteger
	StorageReal
	StorageText
	StorageBlob

	// StorageNullOnly declares a column with no type affinity, accepting
	// only NULL (used for columns whose values are never read back typed).
	StorageNullOnly
)

// String returns the SQL type keyword for t.
func (t StorageType) String() string {
	switch t {
	case StorageInteger:
		return "integer"
	case StorageReal:
		return "real"
	case StorageText:
		return "text"
	case StorageBlob:
		return "blob"
	case StorageNullOnly:
		return ""
	default:
		return fmt.Sprintf("StorageType(%d)", int(t))
	}
}

// IndexColumnSpec describes one column's participation in a named index.
type IndexColumnSpec struct {
	// IndexName groups columns into the same CREATE INDEX statement. Empty
	// defaults to "<table>_<column>" for a single-column index.
	IndexName string

	// Order is the column's position within the index, ascending.
	Order int

	// Unique marks the index as a UNIQUE index. Every IndexColumnSpec
	// sharing an IndexName must agree, or validation (RegisterType, Migrate)
	// returns ErrSchemaError.
	Unique bool
}

// ColumnDescriptor describes one mapped column and how to read and write it
// on a Go record of the table's mapped type.
type ColumnDescriptor struct {
	Name string

	StorageType StorageType

	IsPrimaryKey    bool
	IsAutoIncrement bool
	IsNullable      bool
	IsUnique        bool

	Collation string

	// DefaultExpression is emitted verbatim after DEFAULT, unquoted; callers
	// supplying string literals must quote them themselves.
	DefaultExpression string

	// MaxLength is informational for StorageText columns; it is not
	// enforced by this package.
	MaxLength int

	Indices []IndexColumnSpec

	// Get reads the column's value out of record.
	Get func(record any) any

	// Set writes value into the column's field on record.
	Set func(record any, value any)
}

// sqlDeclaration returns the column's declaration fragment, as used inside
// both CREATE TABLE and ALTER TABLE ADD COLUMN.
func (c *ColumnDescriptor) sqlDeclaration() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s", quoteIdent(c.Name), c.StorageType.String())

	if c.IsPrimaryKey {
		b.WriteString(" PRIMARY KEY")

		if c.IsAutoIncrement {
			b.WriteString(" AUTOINCREMENT")
		}
	}

	if !c.IsNullable {
		b.WriteString(" NOT NULL")
	}

	if c.IsUnique && !c.IsPrimaryKey {
		b.WriteString(" UNIQUE")
	}

	if c.Collation != "" {
		fmt.Fprintf(&b, " COLLATE %s", c.Collation)
	}

	if c.DefaultExpression != "" {
		fmt.Fprintf(&b, " DEFAULT %s", c.DefaultExpression)
	}

	return b.String()
}

// RelationSpec describes a many-to-many relationship. WriteChildren is
// invoked after a successful insert/upsert/update of the owning record; it
// is treated as an opaque join-table writer and is never called by this
// package for any other reason.
type RelationSpec struct {
	Name string

	WriteChildren func(conn *Connection, record any) error
}

// TableDescriptor is an immutable description of a table's schema and how
// to read and write instances of the Go type it maps.
//
// A TableDescriptor is built once per record type (typically by generated
// or hand-written descriptor-builder code, never by runtime reflection
// inside this package) and shared across every Connection that opens the
// same schema catalog.
type TableDescriptor struct {
	TableName string

	Columns   []ColumnDescriptor
	Indices   []IndexSpec
	Relations []RelationSpec

	// typeID identifies the Go type this descriptor maps, for use as half
	// of the prepared-statement cache key. Descriptor builders set it via
	// RegisterType (see registry.go).
	typeID any
}

// IndexSpec is a named, possibly multi-column index over a table, derived
// from ColumnDescriptor.Indices by buildIndexSpecs.
type IndexSpec struct {
	Name    string
	Table   string
	Unique  bool
	Columns []string // ordered by IndexColumnSpec.Order
}

// primaryKeyIndex returns the position of the descriptor's primary-key
// column, or -1 if it has none.
func (d *TableDescriptor) primaryKeyIndex() int {
	for i := range d.Columns {
		if d.Columns[i].IsPrimaryKey {
			return i
		}
	}

	return -1
}

// hasAutoIncrementPK reports whether the descriptor declares an
// auto-increment primary key.
func (d *TableDescriptor) hasAutoIncrementPK() bool {
	i := d.primaryKeyIndex()
	return i >= 0 && d.Columns[i].IsAutoIncrement
}

// validate checks the invariants RegisterType and Migrate depend on: every
// column has a storage type, at most one primary
// key, an auto-increment PK stored as INTEGER, and index uniqueness
// agreement within each named index.
func (d *TableDescriptor) validate() error {
	pk := -1

	for i := range d.Columns {
		c := &d.Columns[i]

		if c.StorageType == StorageInvalid {
			return NewError(ErrSchemaError, fmt.Errorf("column %q: storage type not set", c.Name))
		}

		if c.IsPrimaryKey {
			if pk >= 0 {
				return NewError(ErrSchemaError, fmt.Errorf("table %q: more than one primary key column", d.TableName))
			}

			pk = i

			if c.IsAutoIncrement && c.StorageType != StorageInteger {
				return NewError(ErrSchemaError,
					fmt.Errorf("column %q: auto-increment primary key must be INTEGER", c.Name))
			}
		}
	}

	uniqueByIndex := map[string]bool{}
	seenByIndex := map[string]bool{}

	for i := range d.Columns {
		for _, ix := range d.Columns[i].Indices {
			name := ix.IndexName
			if name == "" {
				name = defaultIndexName(d.TableName, d.Columns[i].Name)
			}

			if seenByIndex[name] {
				if uniqueByIndex[name] != ix.Unique {
					return NewError(ErrSchemaError,
						fmt.Errorf("index %q: conflicting uniqueness across participating columns", name))
				}

				continue
			}

			seenByIndex[name] = true
			uniqueByIndex[name] = ix.Unique
		}
	}

	return nil
}

// defaultIndexName returns the default index name for a single-column
// index: "<table>_<column>".
func defaultIndexName(table, column string) string {
	return table + "_" + column
}

// buildIndexSpecs groups ColumnDescriptor.Indices into IndexSpec values,
// columns ordered ascending by IndexColumnSpec.Order.
func (d *TableDescriptor) buildIndexSpecs() ([]IndexSpec, error) {
	type entry struct {
		order  int
		unique bool
		column string
	}

	byName := map[string][]entry{}
	order := []string{}

	for i := range d.Columns {
		col := &d.Columns[i]

		for _, ix := range col.Indices {
			name := ix.IndexName
			if name == "" {
				name = defaultIndexName(d.TableName, col.Name)
			}

			if _, ok := byName[name]; !ok {
				order = append(order, name)
			}

			byName[name] = append(byName[name], entry{order: ix.Order, unique: ix.Unique, column: col.Name})
		}
	}

	specs := make([]IndexSpec, 0, len(order))

	for _, name := range order {
		entries := byName[name]

		sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

		cols := make([]string, len(entries))
		for i, e := range entries {
			cols[i] = e.column

			if e.unique != entries[0].unique {
				return nil, NewError(ErrSchemaError,
					fmt.Errorf("index %q: conflicting uniqueness across participating columns", name))
			}
		}

		specs = append(specs, IndexSpec{
			Name:    name,
			Table:   d.TableName,
			Unique:  entries[0].unique,
			Columns: cols,
		})
	}

	return specs, nil
}

// createTableSQL returns the CREATE TABLE IF NOT EXISTS statement for d.
func (d *TableDescriptor) createTableSQL() string {
	decls := make([]string, len(d.Columns))
	for i := range d.Columns {
		decls[i] = d.Columns[i].sqlDeclaration()
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s(%s)`, quoteIdent(d.TableName), strings.Join(decls, ", "))
}

// indexSQL returns the CREATE INDEX IF NOT EXISTS statement for spec.
func indexSQL(spec IndexSpec) string {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = quoteIdent(c)
	}

	unique := ""
	if spec.Unique {
		unique = "UNIQUE "
	}

	return fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON %s(%s)`,
		unique, quoteIdent(spec.Name), quoteIdent(spec.Table), strings.Join(cols, ","))
}

// quoteIdent double-quotes a SQL identifier, doubling any embedded quote.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral single-quotes a SQL string literal, doubling any embedded
// quote.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// existingColumn describes one row of PRAGMA table_info("<table>").
type existingColumn struct {
	cid        int
	name       string
	ctype      string
	notNull    bool
	defaultVal *string
	pk         int
}

// parseTableInfoRow converts the positional values returned for one row of
// PRAGMA table_info into an existingColumn.
func parseTableInfoRow(cid int64, name, ctype string, notNull int64, dflt any, pk int64) existingColumn {
	col := existingColumn{
		cid:     int(cid),
		name:    name,
		ctype:   ctype,
		notNull: notNull != 0,
		pk:      int(pk),
	}

	switch v := dflt.(type) {
	case string:
		col.defaultVal = &v
	case []byte:
		s := string(v)
		col.defaultVal = &s
	}

	return col
}
