package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrMalformedResponse is returned when a response body is empty or not
	// the expected JSON
	ErrMalformedResponse = errors.New("malformed response")

	// ErrTimeout is returned when a request exceeds the client's ceiling
	ErrTimeout = errors.New("request timed out")
)

// StatusError is a non-2xx response
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// RejectedError is a 2xx response whose envelope reports success:false
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rejected: %s (%s)", e.Message, e.Code)
	}
	return "rejected: " + e.Message
}

// Kind is the failure class of a request error
type Kind int

const (
	KindNone        Kind = iota // No error
	KindTransient               // Timeouts, gateway errors, unreachable server
	KindApplication             // Any other non-2xx response
	KindMalformed               // Empty or non-JSON body
	KindRejected                // success:false envelope
	KindCancelled               // Caller cancelled the request
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindApplication:
		return "application"
	case KindMalformed:
		return "malformed"
	case KindRejected:
		return "rejected"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Classify maps a request error onto its failure class. The checks are
// ordered: transport-level failures first, then status, body, envelope.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return KindTransient
		}
		return KindApplication
	}

	if errors.Is(err, ErrMalformedResponse) {
		return KindMalformed
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return KindRejected
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}

	return KindApplication
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound
}

// Message returns the most user-presentable text for a request error
func Message(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
