package ormlite

import (
	"errors"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// extendedCode returns the engine's extended result code for err, and
// whether err originated from modernc.org/sqlite at all.
func extendedCode(err error) (int, bool) {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return 0, false
	}

	return e.Code(), true
}

// isFatalClass reports whether code is one of the result codes SQLite's
// documentation recommends a full rollback in response to: IOError, Full,
// Busy, NoMem, Interrupt. Extended codes (e.g. SQLITE_IOERR_READ) carry
// their primary code in the low byte.
func isFatalClass(code int) bool {
	switch code & 0xff {
	case sqlitelib.SQLITE_IOERR, sqlitelib.SQLITE_FULL, sqlitelib.SQLITE_BUSY,
		sqlitelib.SQLITE_NOMEM, sqlitelib.SQLITE_INTERRUPT:
		return true
	default:
		return false
	}
}

// isBusy reports whether code is SQLITE_BUSY or one of its extended forms.
func isBusy(code int) bool {
	return code&0xff == sqlitelib.SQLITE_BUSY
}

// isConstraint reports whether code is SQLITE_CONSTRAINT or one of its
// extended forms.
func isConstraint(code int) bool {
	return code&0xff == sqlitelib.SQLITE_CONSTRAINT
}

// isConstraintNotNull reports whether code is specifically
// SQLITE_CONSTRAINT_NOTNULL.
func isConstraintNotNull(code int) bool {
	return code == sqlitelib.SQLITE_CONSTRAINT_NOTNULL
}
