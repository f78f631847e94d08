package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Error classes surfaced by the Executor.  Every error it returns is a
// *QueryError (or wraps one) that matches exactly one of these with errors.Is.
var (
	// ErrTransient marks connection resets and lost connections.  These are
	// retried internally and only surface once the retry budget is spent.
	ErrTransient = errors.New("transient connection error")
	// ErrConstraint marks integrity violations such as duplicate keys.
	// Never retried.
	ErrConstraint = errors.New("constraint violation")
	// ErrPoolSaturated is returned when no connection slot could be obtained,
	// either because too many callers are already queued or because the
	// acquisition timed out.  Never retried.
	ErrPoolSaturated = errors.New("connection pool saturated")
	// ErrUnknown is the catch-all class.  Never retried.
	ErrUnknown = errors.New("unknown database error")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("executor closed")
)

// mysql server and client error numbers
const (
	erDupEntry              = 1062
	erDupEntryWithKeyName   = 1586
	erServerShutdown        = 1053
	erConnectionKilled      = 1927
	crServerGoneError       = 2006
	crServerLost            = 2013
	sqliteConstraintUnique  = sqlite3.SQLITE_CONSTRAINT_UNIQUE
	sqliteConstraintPrimary = sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
)

// QueryError annotates a failed statement with what was executed.  It
// unwraps to both its class (ErrTransient, ErrConstraint, ...) and the
// underlying driver error, so errors.As(err, &*mysql.MySQLError) still works.
type QueryError struct {
	Op       string // exec | query
	Query    string
	Args     []any
	Attempts int
	Kind     error
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %q failed after %d attempt(s): %v", e.Op, e.Query, e.Attempts, e.Err)
}

func (e *QueryError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Classify maps a raw driver error onto one of the error classes.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPoolSaturated):
		return ErrPoolSaturated
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrUnknown
	case isConstraint(err):
		return ErrConstraint
	case isTransient(err):
		return ErrTransient
	default:
		return ErrUnknown
	}
}

// IsTransient reports whether err belongs to the retryable class.
func IsTransient(err error) bool { return Classify(err) == ErrTransient }

func isConstraint(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == erDupEntry || me.Number == erDupEntryWithKeyName
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimary:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			// primary code only, when extended result codes are off
			return strings.Contains(se.Error(), "UNIQUE")
		}
	}
	return false
}

func isTransient(err error) bool {
	return isConnLost(err) || errors.Is(err, syscall.ECONNRESET)
}

// isConnLost reports failures after which the pooled connections are
// suspect and the pool should be rebuilt.
func isConnLost(err error) bool {
	if errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erServerShutdown, erConnectionKilled, crServerGoneError, crServerLost:
			return true
		}
	}
	return false
}
