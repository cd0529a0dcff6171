package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class is the classification verdict for one error.
type Class string

const (
	// ClassExplicit means the policy's Retryable predicate matched.
	ClassExplicit Class = "explicit"
	// ClassStatus means the error carried a retryable HTTP status code.
	ClassStatus Class = "status"
	// ClassTimeout means the error is a timeout.
	ClassTimeout Class = "timeout"
	// ClassConnection means the error is a connection failure.
	ClassConnection Class = "connection"
	// ClassTransientText means the error text matched a known-transient
	// fragment.
	ClassTransientText Class = "transient_text"
	// ClassTerminal means the error is not retryable.
	ClassTerminal Class = "terminal"
)

// Transient reports whether the class permits a retry.
func (c Class) Transient() bool {
	return c != ClassTerminal
}

// statusCoder is implemented by errors carrying an HTTP status code,
// such as platform.APIError. errors.As finds it anywhere in the wrap
// chain.
type statusCoder interface {
	StatusCode() int
}

// timeouter matches net.Error and anything else exposing a timeout flag.
type timeouter interface {
	Timeout() bool
}

// Classify runs the policy's classification rules in priority order:
// explicit predicate, status-code allowlist, timeout class, connection
// class, transient text fragments. Unmatched errors are terminal.
func (p Policy) Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}

	if p.Retryable != nil && p.Retryable(err) {
		return ClassExplicit
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		for _, allowed := range p.RetryableStatusCodes {
			if code == allowed {
				return ClassStatus
			}
		}
	}

	if p.RetryTimeouts && isTimeout(err) {
		return ClassTimeout
	}

	if p.RetryConnectionErrors && isConnectionError(err) {
		return ClassConnection
	}

	if len(p.TransientFragments) > 0 {
		text := err.Error()
		for _, frag := range p.TransientFragments {
			if strings.Contains(text, frag) {
				return ClassTransientText
			}
		}
	}

	return ClassTerminal
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var to timeouter

	return errors.As(err, &to) && to.Timeout()
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
