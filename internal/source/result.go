package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ResultKind classifies the outcome of one adapter call.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultRateLimited
	ResultNotFound
	ResultTimeout
	ResultMalformed
	ResultUnknown
)

// String returns the metric/log label of the kind.
func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultRateLimited:
		return "rate_limited"
	case ResultNotFound:
		return "not_found"
	case ResultTimeout:
		return "timeout"
	case ResultMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Class maps the kind onto the upstream error taxonomy.
func (k ResultKind) Class() string {
	switch k {
	case ResultOK:
		return ""
	case ResultRateLimited:
		return "retryable_upstream"
	case ResultNotFound, ResultTimeout:
		return "permanent_upstream"
	case ResultMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// FetchResult is the tagged result of FetchCommunity.
type FetchResult struct {
	Kind    ResultKind
	Threads []Thread
	Message string
}

// OK builds a successful result.
func OK(threads []Thread) FetchResult {
	return FetchResult{Kind: ResultOK, Threads: threads}
}

// RateLimited builds a retryable failure.
func RateLimited(format string, args ...interface{}) FetchResult {
	return FetchResult{Kind: ResultRateLimited, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a permanent failure for missing or forbidden communities.
func NotFound(format string, args ...interface{}) FetchResult {
	return FetchResult{Kind: ResultNotFound, Message: fmt.Sprintf(format, args...)}
}

// Timeout builds a failure for calls that exceeded their budget.
func Timeout(format string, args ...interface{}) FetchResult {
	return FetchResult{Kind: ResultTimeout, Message: fmt.Sprintf(format, args...)}
}

// Malformed builds a failure for responses that fail structural validation.
func Malformed(format string, args ...interface{}) FetchResult {
	return FetchResult{Kind: ResultMalformed, Message: fmt.Sprintf(format, args...)}
}

// Unknown builds a failure that fits no other kind.
func Unknown(format string, args ...interface{}) FetchResult {
	return FetchResult{Kind: ResultUnknown, Message: fmt.Sprintf(format, args...)}
}

// Ok reports whether the call succeeded.
func (r FetchResult) Ok() bool {
	return r.Kind == ResultOK
}

// Err returns nil on success, otherwise an error describing the failure.
func (r FetchResult) Err() error {
	if r.Ok() {
		return nil
	}
	if r.Message == "" {
		return errors.New(r.Kind.String())
	}
	return fmt.Errorf("%s: %s", r.Kind, r.Message)
}

// FromStatus converts a non-2xx HTTP status into a failure result.
// Parameters:
//   - adapter: adapter name for the message.
//   - status: HTTP status code.
// Returns:
//   - FetchResult: typed failure for the status.
func FromStatus(adapter string, status int) FetchResult {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited("%s: upstream returned 429", adapter)
	case status == http.StatusNotFound, status == http.StatusForbidden,
		status == http.StatusUnavailableForLegalReasons, status == http.StatusGone:
		return NotFound("%s: upstream returned %d", adapter, status)
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return Timeout("%s: upstream returned %d", adapter, status)
	default:
		return Unknown("%s: upstream returned %d", adapter, status)
	}
}

// FromError converts a transport error into a failure result.
// Parameters:
//   - ctx: the call context, inspected for deadline expiry.
//   - adapter: adapter name for the message.
//   - err: transport error.
// Returns:
//   - FetchResult: Timeout for deadline errors, Unknown otherwise.
func FromError(ctx context.Context, adapter string, err error) FetchResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout("%s: %v", adapter, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout("%s: %v", adapter, err)
	}
	// rate.Limiter.Wait refuses early when the wait would outlast the deadline
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return Timeout("%s: %v", adapter, err)
	}
	return Unknown("%s: %v", adapter, err)
}
