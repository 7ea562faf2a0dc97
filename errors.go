package ormlite

import (
	"fmt"
)

// ErrorKind classifies an *Error returned by this package.
type ErrorKind int

// Error kinds.
const (
	_ ErrorKind = iota

	// ErrCannotOpen means the database file or connection could not be opened.
	ErrCannotOpen

	// ErrInvalidArgument means a caller-supplied argument is invalid
	// (malformed or out-of-range savepoint token, wrong-length encryption
	// key, unregistered record type, etc).
	ErrInvalidArgument

	// ErrInvalidState means the operation is not valid in the connection's
	// current transaction phase (BeginTransaction while a transaction is
	// already open).
	ErrInvalidState

	// ErrUnsupportedOperation means the operation cannot be expressed for
	// the given descriptor (for example, Update on a table without a
	// primary key).
	ErrUnsupportedOperation

	// ErrUnsupportedDowngrade means the database's user_version is newer
	// than the version this connection was opened with.
	ErrUnsupportedDowngrade

	// ErrSchemaError means the descriptor itself is self-contradictory
	// (conflicting uniqueness within one named index, invalid auto-increment
	// primary key type, ...).
	ErrSchemaError

	// ErrConstraint means the engine rejected a statement due to a
	// constraint violation that is not a NOT NULL violation.
	ErrConstraint

	// ErrNotNullConstraint means the engine rejected an insert or update
	// because a NOT NULL column held a NULL value. Columns lists every
	// non-nullable column of the bound record that was NULL.
	ErrNotNullConstraint

	// ErrDataIntegrity means a column value could not be decoded into the
	// target field (NULL into non-nullable field with no acceptable
	// default, type mismatch, ...).
	ErrDataIntegrity

	// ErrEngine is a catch-all for engine errors that do not classify into
	// one of the kinds above. It carries the underlying error and, when
	// available, the engine's extended result code.
	ErrEngine
)

// String returns a human-readable name for k.
func (k ErrorKind) String() string {
	switch k {
	case ErrCannotOpen:
		return "CannotOpen"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrInvalidState:
		return "InvalidState"
	case ErrUnsupportedOperation:
		return "UnsupportedOperation"
	case ErrUnsupportedDowngrade:
		return "UnsupportedDowngrade"
	case ErrSchemaError:
		return "SchemaError"
	case ErrConstraint:
		return "Constraint"
	case ErrNotNullConstraint:
		return "NotNullConstraintViolation"
	case ErrDataIntegrity:
		return "DataIntegrity"
	case ErrEngine:
		return "EngineError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned by every exported function and method in this package
// that can fail for a reason the caller might want to branch on.
//
// *Error values created by this package are returned without further
// wrapping, except where a caller-supplied callback's error is passed on
// with call-site context (UpgradeFunc, RelationSpec.WriteChildren, and a
// RunInTransaction action whose rollback also failed). IsKind inspects only
// the error it is given; use errors.As to recover an *Error from a chain.
type Error struct {
	kind ErrorKind
	err  error

	// Columns holds offending column names for ErrNotNullConstraint.
	Columns []string

	// Code holds the engine's extended result code for ErrEngine and
	// ErrConstraint, when known. Zero if not applicable.
	Code int
}

// NewError creates a new *Error. Kind must not be zero.
func NewError(kind ErrorKind, err error) *Error {
	if kind == 0 {
		panic("ormlite.NewError: kind must not be zero")
	}

	return &Error{kind: kind, err: err}
}

// Kind returns the error's classification.
func (e *Error) Kind() ErrorKind {
	return e.kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err == nil {
		return e.kind.String()
	}

	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

// Unwrap exposes the underlying engine/argument error to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.err
}

// IsKind reports whether err is an *Error with one of the given kinds.
func IsKind(err error, kind ErrorKind, kinds ...ErrorKind) bool {
	e, ok := err.(*Error) //nolint:errorlint // only err itself is inspected, not its chain
	if !ok {
		return false
	}

	if e.kind == kind {
		return true
	}

	for _, k := range kinds {
		if e.kind == k {
			return true
		}
	}

	return false
}
