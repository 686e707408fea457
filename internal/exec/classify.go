package exec

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrorKind classifies a failed statement.
type ErrorKind int

const (
	// KindGeneric is any failure outside the classified kinds.
	KindGeneric ErrorKind = iota
	// KindConstraint is a constraint violation with no finer class.
	KindConstraint
	// KindUniqueViolation covers UNIQUE and PRIMARY KEY violations.
	KindUniqueViolation
	// KindNotNullViolation is a NOT NULL violation the database reported.
	KindNotNullViolation
	// KindForeignKeyViolation is a FOREIGN KEY violation.
	KindForeignKeyViolation
	// KindConnectivity covers busy/locked databases and broken connections.
	KindConnectivity
)

// String returns the kind's log spelling.
func (k ErrorKind) String() string {
	switch k {
	case KindConstraint:
		return "constraint"
	case KindUniqueViolation:
		return "unique_violation"
	case KindNotNullViolation:
		return "not_null_violation"
	case KindForeignKeyViolation:
		return "foreign_key_violation"
	case KindConnectivity:
		return "connectivity"
	default:
		return "generic"
	}
}

// IsConstraintKind reports whether the kind is any constraint violation.
func (k ErrorKind) IsConstraintKind() bool {
	switch k {
	case KindConstraint, KindUniqueViolation, KindNotNullViolation, KindForeignKeyViolation:
		return true
	default:
		return false
	}
}

// StatementError is a classified statement failure. SQL carries the
// statement text, which is safe to log: it contains placeholders only,
// never values.
type StatementError struct {
	Kind ErrorKind
	SQL  string
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %v (sql: %s)", e.Kind, e.Err, e.SQL)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// AsStatementError extracts a StatementError from an error chain.
func AsStatementError(err error) (*StatementError, bool) {
	var serr *StatementError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}

func wrapStatementError(sqlText string, err error) error {
	return &StatementError{Kind: classify(err), SQL: sqlText, Err: err}
}

// classify maps a driver error to an ErrorKind. Driver-specific inspection
// is errors.As based, so wrapped errors classify the same as bare ones.
// Context cancellation classifies generic: it is the caller's signal, not
// a database condition.
func classify(err error) ErrorKind {
	if err == nil {
		return KindGeneric
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrConstraint:
			switch serr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintRowID:
				return KindUniqueViolation
			case sqlite3.ErrConstraintNotNull:
				return KindNotNullViolation
			case sqlite3.ErrConstraintForeignKey:
				return KindForeignKeyViolation
			default:
				return KindConstraint
			}
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrProtocol:
			return KindConnectivity
		}
		return KindGeneric
	}

	if errors.Is(err, driver.ErrBadConn) {
		return KindConnectivity
	}
	return KindGeneric
}
