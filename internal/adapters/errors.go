package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/sony/gobreaker"
)

// ConnectionError reports a failure to reach or operate a datastore. It keeps
// enough endpoint context to classify the failure for the operator.
type ConnectionError struct {
	Vendor   string
	Host     string
	Port     int
	Database string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	target := e.Host
	if e.Port > 0 {
		target = fmt.Sprintf("%s:%d", e.Host, e.Port)
	}
	if target == "" {
		target = "local"
	}
	return fmt.Sprintf("%s %s %s/%s: %v", e.Vendor, e.Op, target, e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Suggestion returns an actionable hint for the failure, or "".
func (e *ConnectionError) Suggestion() string { return Suggest(e) }

// ConfigurationError reports a datasource or mapping that cannot be used as
// configured: unknown vendor type, missing required field, bad filter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// FailureKind classifies a connection failure.
type FailureKind string

const (
	FailureUnknown     FailureKind = ""
	FailureAuth        FailureKind = "auth"
	FailureUnreachable FailureKind = "unreachable"
	FailureDNS         FailureKind = "dns"
	FailureTimeout     FailureKind = "timeout"
	FailureCircuitOpen FailureKind = "circuit_open"
)

var suggestions = map[FailureKind]string{
	FailureAuth:        "Authentication failed. Verify the username and the password reference resolve to credentials allowed for remote access.",
	FailureUnreachable: "The server refused or dropped the connection. Check that the port is open, remote access is enabled and this host's IP is allowed.",
	FailureDNS:         "The hostname could not be resolved. Do not include a scheme such as http:// in the host field and check for typos.",
	FailureTimeout:     "The connection timed out. Check firewall rules and that the server listens on the configured port.",
	FailureCircuitOpen: "Too many consecutive connection failures to this endpoint. Connection attempts are paused briefly; fix the underlying error and retry.",
}

// Classify inspects err and reports which kind of connection failure it is.
// It never panics; unrecognised errors are FailureUnknown.
func Classify(err error) (kind FailureKind) {
	defer func() {
		if recover() != nil {
			kind = FailureUnknown
		}
	}()
	if err == nil {
		return FailureUnknown
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return FailureCircuitOpen
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return FailureTimeout
		}
		return FailureDNS
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1698:
			return FailureAuth
		case 2003:
			return FailureUnreachable
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "2003") || strings.Contains(msg, "can't connect to mysql server"):
		return FailureUnreachable
	case strings.Contains(msg, "getaddrinfo") || strings.Contains(msg, "no such host") || strings.Contains(msg, "name resolution"):
		return FailureDNS
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "password") || strings.Contains(msg, "authentication failed"):
		return FailureAuth
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return FailureTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no route to host") || strings.Contains(msg, "network is unreachable"):
		return FailureUnreachable
	}
	return FailureUnknown
}

// Suggest maps err to an operator-facing hint. Returns "" when nothing useful
// can be said.
func Suggest(err error) string {
	return suggestions[Classify(err)]
}
