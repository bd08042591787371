package errors

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Class is the retry-relevant category of a registry failure
type Class string

const (
	ClassNone       Class = ""
	ClassTimeout    Class = "timeout"
	ClassConnection Class = "connection"
	ClassServer     Class = "server"
	ClassThrottled  Class = "throttled"
	ClassAuth       Class = "auth"
	ClassRejected   Class = "rejected"
	ClassProtocol   Class = "protocol"
	ClassCanceled   Class = "canceled"
	ClassUnknown    Class = "unknown"
)

// Retryable reports whether another attempt may succeed
func (c Class) Retryable() bool {
	switch c {
	case ClassTimeout, ClassConnection, ClassServer, ClassThrottled:
		return true
	default:
		return false
	}
}

func (c Class) String() string {
	if c == ClassNone {
		return "none"
	}
	return string(c)
}

// Classify maps a registry or transport error to its Class. A nil error
// is ClassNone. Errors explicitly marked with ErrTransient are treated as
// connection failures.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	if stderrors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var statusErr *StatusError
	if As(err, &statusErr) {
		return classifyHTTP(statusErr.Code)
	}

	var dimseErr *DIMSEError
	if As(err, &dimseErr) {
		if dimseErr.IsOutOfResources() {
			return ClassServer
		}
		return ClassRejected
	}

	var assocErr *AssociationError
	if As(err, &assocErr) {
		if assocErr.Permanent {
			return ClassRejected
		}
		return ClassConnection
	}

	var abortErr *AbortError
	if As(err, &abortErr) {
		return ClassConnection
	}

	var timeoutErr *TimeoutError
	if As(err, &timeoutErr) {
		return ClassTimeout
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, ErrConnectionClosed) {
		return ClassConnection
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return ClassConnection
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return ClassConnection
	}
	var nwErr *NetworkError
	if As(err, &nwErr) {
		return ClassConnection
	}

	if Is(err, ErrTransient) {
		return ClassConnection
	}
	if Is(err, ErrInvalidPDU) || Is(err, ErrInvalidMessage) || Is(err, ErrNoPresentationCtx) {
		return ClassProtocol
	}

	return ClassUnknown
}

func classifyHTTP(code int) Class {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassAuth
	case code == http.StatusRequestTimeout:
		return ClassTimeout
	case code == http.StatusTooManyRequests:
		return ClassThrottled
	case code >= 500:
		return ClassServer
	case code >= 400:
		return ClassRejected
	default:
		return ClassProtocol
	}
}
