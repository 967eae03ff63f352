package mytunmcp

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
)

// ValidationError rejects input before any I/O happens. It is always
// user-visible and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// TunnelError is a hard failure to establish the SSH tunnel. Surfaced to the
// caller as the failure of the invoking operation; never retried here (the
// orchestrator already saw open fail from scratch).
type TunnelError struct {
	Cause error
}

func (e *TunnelError) Error() string {
	return fmt.Sprintf("tunnel could not be established: %v", e.Cause)
}

func (e *TunnelError) Unwrap() error {
	return e.Cause
}

// transientMessages are substrings of driver/transport error texts that
// indicate the connection broke rather than the query being invalid.
var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"invalid connection",
	"bad connection",
	"lost connection",
	"unexpected eof",
}

// isTransient classifies an error as a transient connection failure: the
// transport broke under an otherwise-valid query, so one teardown+reopen+
// retry cycle is warranted. A *mysql.MySQLError means the server received
// and answered the query, so it is never transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return false
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	// A timed-out or cancelled query is not a broken transport; the tunnel
	// stays warm. context.DeadlineExceeded implements net.Error, so this must
	// come before that check.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range transientMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
