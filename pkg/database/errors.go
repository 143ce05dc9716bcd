package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
)

const (
	codeUniqueViolation  = "23505"
	codeQueryCanceled    = "57014"
	codeLockNotAvailable = "55P03"
	codeDeadlockDetected = "40P01"
	codeAdminShutdown    = "57P01"
	codeCannotConnectNow = "57P03"
)

// UniqueViolation reports whether err is a unique-constraint violation, returning the
// violated constraint name when the driver exposes it.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// IsUnavailable reports failures of the persistence layer itself (lost connections,
// timeouts, cancellation, lock waits) as opposed to data errors.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeQueryCanceled, codeLockNotAvailable, codeDeadlockDetected, codeAdminShutdown, codeCannotConnectNow:
			return true
		}
		// class 08: connection exception
		return strings.HasPrefix(string(pqErr.Code), "08")
	}
	return false
}
