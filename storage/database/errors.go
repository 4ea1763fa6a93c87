package database

import (
	"context"
	"database/sql/driver"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

// CheckErr wraps err with msg, replacing it with core.ErrUnavailable when the database could not be reached.
func CheckErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsConnErr(err) {
		return errors.Wrap(core.ErrUnavailable, msg+": "+err.Error())
	}
	if IsClosed(err) {
		return errors.Wrap(core.NewShutdownError("database closed"), msg)
	}
	return errors.Wrap(err, msg)
}

// IsConnErr reports whether err means the database could not be reached.
func IsConnErr(err error) bool {
	cause := errors.Cause(err)
	if cause == driver.ErrBadConn || cause == context.DeadlineExceeded {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception, 57P0x: operator intervention
		return pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P0")
	}

	msg := cause.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "bad connection")
}

// IsClosed reports whether err comes from a *sql.DB that was closed.
func IsClosed(err error) bool {
	return errors.Cause(err).Error() == "sql: database is closed"
}

// IsUniqueViolation reports whether err was caused by a unique constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
