package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorKind is the closed set of connection-failure classes the gateway is
// willing to retry. Anything that does not map to one of these kinds is
// passed through to the caller untouched.
type ErrorKind string

const (
	KindRefused       ErrorKind = "refused"
	KindReset         ErrorKind = "reset"
	KindTimeout       ErrorKind = "timeout"
	KindClosed        ErrorKind = "closed"
	KindPoolExhausted ErrorKind = "pool_exhausted"
	KindAuth          ErrorKind = "auth"
	KindShutdown      ErrorKind = "shutdown"
	KindNotConnected  ErrorKind = "not_connected"
)

// Postgres SQLSTATE codes that indicate the backend is unreachable or
// rejecting connections, rather than a statement-level problem.
var connectionErrorCodes = map[string]ErrorKind{
	"08000": KindClosed,        // connection_exception
	"08003": KindClosed,        // connection_does_not_exist
	"08006": KindClosed,        // connection_failure
	"28000": KindAuth,          // invalid_authorization_specification
	"28P01": KindAuth,          // invalid_password
	"53300": KindPoolExhausted, // too_many_connections
	"57P01": KindShutdown,      // admin_shutdown
	"57P02": KindShutdown,      // crash_shutdown
	"57P03": KindShutdown,      // cannot_connect_now
}

// Transport-failure phrases, matched last. Kept as a fixed list so the
// retry surface of the gateway stays auditable.
var connectionErrorPhrases = []struct {
	substr string
	kind   ErrorKind
}{
	{"connection refused", KindRefused},
	{"connection reset", KindReset},
	{"broken pipe", KindReset},
	{"i/o timeout", KindTimeout},
	{"timed out", KindTimeout},
	{"connection timed out", KindTimeout},
	{"server closed the connection", KindClosed},
	{"the database system is shutting down", KindShutdown},
	{"the database system is starting up", KindShutdown},
	{"too many clients", KindPoolExhausted},
	{"connection pool exhausted", KindPoolExhausted},
	{"conn closed", KindClosed},
	{"database is closed", KindClosed},
	{"bad connection", KindClosed},
	{"unexpected EOF", KindReset},
}

// Classify reports whether err is a connection-class failure worth one
// coordinated reconnect-and-retry, and which kind it is.
func Classify(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}

	if errors.Is(err, ErrNotConnected) {
		return KindNotConnected, true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return KindClosed, true
	}
	if errors.Is(err, gorm.ErrInvalidDB) {
		return KindNotConnected, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if kind, ok := connectionErrorCodes[pgErr.Code]; ok {
			return kind, true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout, true
		}
		return KindClosed, true
	}

	msg := err.Error()
	for _, p := range connectionErrorPhrases {
		if strings.Contains(msg, p.substr) {
			return p.kind, true
		}
	}

	return "", false
}

// IsConnectionErr is a convenience wrapper around Classify.
func IsConnectionErr(err error) bool {
	_, ok := Classify(err)
	return ok
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
// Services use it to translate identifier collisions that slipped past the
// generator into a user-facing conflict.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	msg := err.Error()

	// PostgreSQL
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(msg, "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}

	return false
}
