package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Provider error sentinels. Every error returned by a Provider matches exactly
// one of these with errors.Is (rate-limit errors also match ErrRejected).
var (
	ErrUnavailable = errors.New("provider unavailable")
	ErrRejected    = errors.New("provider rejected request")
	ErrRateLimited = errors.New("provider rate limited")
	ErrTimeout     = errors.New("provider timeout")
	ErrInternal    = errors.New("provider internal error")
	ErrCancelled   = errors.New("provider call cancelled")
)

// ErrorKind classifies a ProviderError.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindRejected    ErrorKind = "rejected"
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindInternal    ErrorKind = "internal"
	KindCancelled   ErrorKind = "cancelled"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnavailable:
		return ErrUnavailable
	case KindRejected:
		return ErrRejected
	case KindRateLimited:
		return ErrRateLimited
	case KindTimeout:
		return ErrTimeout
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrInternal
	}
}

// ProviderError is the concrete error type returned by providers.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind.sentinel())
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *ProviderError) Is(target error) bool {
	if target == e.Kind.sentinel() {
		return true
	}
	return e.Kind == KindRateLimited && target == ErrRejected
}

// errFirstToken is the cancellation cause installed by the first-token timer.
var errFirstToken = errors.New("no first token before deadline")

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return KindUnavailable
	case status >= 400 && status < 500:
		return KindRejected
	default:
		return KindInternal
	}
}

// Classify wraps err into a *ProviderError. ctx is the context the call ran
// under; its cancellation cause decides between timeout and cancellation.
// Errors that already are ProviderErrors are returned unchanged.
func Classify(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	kind := KindInternal
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errFirstToken) || errors.Is(err, errFirstToken):
		kind = KindTimeout
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(cause, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled) || errors.Is(cause, context.Canceled):
		kind = KindCancelled
	case isNetworkError(err):
		kind = KindUnavailable
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
