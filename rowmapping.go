package ormlite

import (
	"database/sql"
	"fmt"

	"github.com/ormlite/ormlite/internal/util/lazyerrors"
)

// scanRowInto reads the current row of rows, mapping each of desc's
// columns by name to its result-set position, decoding it to a canonical
// driver value (int64, float64, string, []byte, or nil), and assigning it
// via the column's Set function.
//
// Column name lookup happens once per call; callers scanning many rows of
// the same query should prefer Query or DeferredQuery, which share a
// single name→index mapping across all rows of one result set.
func scanRowInto(rows *sql.Rows, desc *TableDescriptor, dest any) error {
	names, err := rows.Columns()
	if err != nil {
		return NewError(ErrEngine, lazyerrors.Error(err))
	}

	idx := columnIndex(names, desc)

	return scanRowIndexed(rows, desc, idx, len(names), dest)
}

// columnIndex maps each of desc's columns to its position in names, or -1
// if the result set does not include it.
func columnIndex(names []string, desc *TableDescriptor) []int {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}

	idx := make([]int, len(desc.Columns))

	for i := range desc.Columns {
		if p, ok := pos[desc.Columns[i].Name]; ok {
			idx[i] = p
		} else {
			idx[i] = -1
		}
	}

	return idx
}

// scanRowIndexed decodes the current row using a precomputed column→index
// mapping and assigns every present column onto dest. numCols is the
// result set's column count (len(names) at the time idx was built), which
// may differ from len(desc.Columns) when the query projects a different
// column set or order.
func scanRowIndexed(rows *sql.Rows, desc *TableDescriptor, idx []int, numCols int, dest any) error {
	raw := make([]any, numCols)
	ptrs := make([]any, numCols)

	for i := range ptrs {
		ptrs[i] = &raw[i]
	}

	if err := rows.Scan(ptrs...); err != nil {
		return NewError(ErrEngine, lazyerrors.Error(err))
	}

	for i := range desc.Columns {
		if idx[i] < 0 {
			continue
		}

		col := &desc.Columns[i]

		v, err := decodeColumn(col, raw[idx[i]])
		if err != nil {
			return err
		}

		col.Set(dest, v)
	}

	return nil
}

// decodeColumn converts a raw driver value read back for col into the
// canonical value handed to col.Set, applying the NULL handling contract:
// NULL into a nullable column decodes to nil; NULL into a non-nullable
// column is a DataIntegrity error.
func decodeColumn(col *ColumnDescriptor, raw any) (any, error) {
	if raw == nil {
		if col.IsNullable {
			return nil, nil
		}

		return nil, NewError(ErrDataIntegrity,
			fmt.Errorf("column %q: NULL value for non-nullable field", col.Name))
	}

	switch v := raw.(type) {
	case []byte:
		if col.StorageType == StorageText {
			return string(v), nil
		}

		return v, nil
	default:
		return v, nil
	}
}
