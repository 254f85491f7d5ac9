package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind classifies a failed completion call.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindConnection    Kind = "connection_failure"
	KindModelNotFound Kind = "model_not_found"
	KindService       Kind = "service_error"
	KindUnknown       Kind = "unknown_failure"
)

// Error is returned for every failed completion call.
type Error struct {
	Kind    Kind
	Model   string
	BaseURL string
	Caller  string
	Status  int
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("inference service timed out (model %s at %s)", e.Model, e.BaseURL)
	case KindConnection:
		return fmt.Sprintf("cannot connect to inference service at %s (model %s)", e.BaseURL, e.Model)
	case KindModelNotFound:
		return fmt.Sprintf("model %q not found on %s, pull or create it first", e.Model, e.BaseURL)
	case KindService:
		if e.Status > 0 {
			return fmt.Sprintf("inference service returned status %d for model %s: %s", e.Status, e.Model, e.Detail)
		}
		return fmt.Sprintf("inference service error for model %s: %s", e.Model, e.Detail)
	default:
		return fmt.Sprintf("unexpected inference failure (model %s): %v", e.Model, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classifyTransport maps a failed round trip to a Kind. Timeouts are checked
// first because a dial timeout is also a dial error.
func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection
	}
	return KindUnknown
}

func mentionsMissingModel(detail string) bool {
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "model") && strings.Contains(lower, "not found")
}
