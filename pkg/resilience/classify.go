package resilience

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/aravind-gm/oranew/common/errors"
)

// SQLSTATE codes worth retrying outside class 08 (connection exception).
var transientSQLStates = map[string]struct{}{
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
}

// Classify tags connectivity and contention failures as retryable transient
// errors. Anything else is returned as is.
func Classify(err error) error {
	if err == nil || apperrors.IsRetryable(err) {
		return err
	}
	if IsTransient(err) {
		return apperrors.Transient("database unavailable", err)
	}
	return err
}

// IsTransient reports whether err is a connection drop, timeout or lock
// contention failure on the database path.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		_, ok := transientSQLStates[pgErr.Code]
		return ok
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
