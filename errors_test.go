package mytunmcp

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsTransientClassification(t *testing.T) {
	t.Parallel()
	transient := []error{
		driver.ErrBadConn,
		mysql.ErrInvalidConn,
		io.EOF,
		io.ErrUnexpectedEOF,
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		&net.OpError{Op: "read", Err: errors.New("use of closed network connection")},
		errors.New("dial tcp 127.0.0.1:3307: connect: connection refused"),
		errors.New("read tcp 127.0.0.1:51234: connection reset by peer"),
		errors.New("write: broken pipe"),
		errors.New("Error 2013: Lost connection to MySQL server during query"),
		fmt.Errorf("query failed: %w", driver.ErrBadConn),
	}
	for _, err := range transient {
		if !isTransient(err) {
			t.Fatalf("expected %v to be transient", err)
		}
	}

	nonTransient := []error{
		nil,
		&mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"},
		&mysql.MySQLError{Number: 1142, Message: "SELECT command denied"},
		&ValidationError{Reason: "query rejected"},
		context.DeadlineExceeded,
		context.Canceled,
		fmt.Errorf("query failed: %w", context.DeadlineExceeded),
		fmt.Errorf("query failed: %w", context.Canceled),
		errors.New("some application error"),
	}
	for _, err := range nonTransient {
		if isTransient(err) {
			t.Fatalf("expected %v to be non-transient", err)
		}
	}
}

func TestMySQLErrorNeverTransientEvenWhenWrapped(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("describe failed: %w", &mysql.MySQLError{Number: 1146, Message: "Table 'app.x' doesn't exist"})
	if isTransient(err) {
		t.Fatal("a server-reported error means the connection works; must not be transient")
	}
}

func TestTunnelErrorWraps(t *testing.T) {
	t.Parallel()
	cause := errors.New("ssh: handshake failed")
	err := &TunnelError{Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected TunnelError to unwrap to its cause")
	}
	if err.Error() != "tunnel could not be established: ssh: handshake failed" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
