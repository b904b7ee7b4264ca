package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/timmy/sentiscope/internal/domain"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/metrics"
	"github.com/timmy/sentiscope/internal/source"
)

const (
	defaultAdapterTimeout = 10 * time.Second
	defaultRetryDelay     = 3 * time.Second
)

// ChainConfig tunes how the adapter chain calls each adapter.
type ChainConfig struct {
	AdapterTimeout time.Duration
	RetryDelay     time.Duration
}

// ChainResult is what the chain produced for one community.
type ChainResult struct {
	Threads []source.Thread
	Method  domain.RetrievalMethod
	Adapter string
	// Errors lists one message per failed adapter attempt, in order.
	Errors []string
	// Panicked is set when an adapter failed with a programming error.
	Panicked bool
}

// CommunityFetcher fetches one community through some retrieval strategy.
type CommunityFetcher interface {
	Fetch(ctx context.Context, community string, filters source.Filters) ChainResult
}

// AdapterChain tries adapters in priority order until one succeeds.
// A RateLimited result is retried exactly once after RetryDelay before
// falling through to the next adapter.
type AdapterChain struct {
	adapters []source.Adapter
	cfg      ChainConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewAdapterChain creates a chain over adapters in the given order.
// Parameters:
//   - adapters: adapters in priority order; nil entries are skipped.
//   - cfg: per-call timeout and retry delay; zero values use defaults.
// Returns:
//   - *AdapterChain: chain ready for use.
func NewAdapterChain(adapters []source.Adapter, cfg ChainConfig) *AdapterChain {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = defaultAdapterTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	list := make([]source.Adapter, 0, len(adapters))
	for _, a := range adapters {
		if a != nil {
			list = append(list, a)
		}
	}
	return &AdapterChain{adapters: list, cfg: cfg, sleep: sleepContext}
}

// Adapters returns the adapter names in priority order.
func (c *AdapterChain) Adapters() []string {
	names := make([]string, len(c.adapters))
	for i, a := range c.adapters {
		names[i] = a.Name()
	}
	return names
}

// Fetch runs the chain for one community. ctx is the job context: once it is
// cancelled no retry or further adapter is attempted, while an adapter call
// already in flight still runs to its own deadline.
func (c *AdapterChain) Fetch(ctx context.Context, community string, filters source.Filters) ChainResult {
	var errs []string

	for i, a := range c.adapters {
		if i > 0 && ctx.Err() != nil {
			return ChainResult{Method: domain.MethodFailed, Errors: append(errs, "remaining adapters skipped: job cancelled")}
		}
		actx := logger.WithField(ctx, logger.FieldAdapter, a.Name())

		res, err := c.call(actx, a, community, filters)
		if err == nil && res.Kind == source.ResultRateLimited {
			logger.CtxWarn(actx, "Rate limited, retrying once in %s", c.cfg.RetryDelay)
			errs = append(errs, fmt.Sprintf("%s: %v", a.Name(), res.Err()))
			if c.sleep(ctx, c.cfg.RetryDelay) != nil {
				return ChainResult{Method: domain.MethodFailed, Errors: append(errs, "cancelled during retry delay")}
			}
			res, err = c.call(actx, a, community, filters)
		}
		if err != nil {
			logger.FromContext(actx).WithError(err).Error("Adapter failed with a programming error")
			return ChainResult{Method: domain.MethodFailed, Errors: append(errs, err.Error()), Panicked: true}
		}
		if res.Ok() {
			return ChainResult{Threads: res.Threads, Method: a.Method(), Adapter: a.Name(), Errors: errs}
		}

		logger.With(logger.Fields{
			logger.FieldResult: res.Kind.String(),
			"error_class":      res.Kind.Class(),
		}).Warn(actx, "Adapter failed, falling through: %s", res.Message)
		errs = append(errs, fmt.Sprintf("%s: %v", a.Name(), res.Err()))
	}

	if len(c.adapters) == 0 {
		errs = append(errs, "no adapters configured")
	}
	return ChainResult{Method: domain.MethodFailed, Errors: errs}
}

type callOutcome struct {
	result source.FetchResult
	err    error
}

// call invokes one adapter under its own deadline, detached from job
// cancellation. The adapter runs in a separate goroutine so a call that
// ignores its context still yields a Timeout once the budget is spent.
// Panics become errors.
func (c *AdapterChain) call(ctx context.Context, a source.Adapter, community string, filters source.Filters) (source.FetchResult, error) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.AdapterTimeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("programming error in %s: %v\n%s", a.Name(), r, debug.Stack())}
			}
		}()
		done <- callOutcome{result: a.FetchCommunity(callCtx, community, filters)}
	}()

	out, ok := awaitCall(done, callCtx.Done())
	if !ok {
		out = callOutcome{result: source.Timeout("%s: no response within %s", a.Name(), c.cfg.AdapterTimeout)}
	}

	result := "panic"
	if out.err == nil {
		result = out.result.Kind.String()
	}
	metrics.ObserveAdapterCall(a.Name(), result, start)
	logger.With(logger.Fields{logger.FieldResult: result}).
		WithDuration(time.Since(start)).
		WithCount(len(out.result.Threads)).
		Debug(ctx, "Adapter call finished")

	return out.result, out.err
}

// awaitCall waits for the adapter or the deadline. A result that is ready
// when the deadline fires wins.
func awaitCall(done <-chan callOutcome, expired <-chan struct{}) (callOutcome, bool) {
	select {
	case out := <-done:
		return out, true
	case <-expired:
		select {
		case out := <-done:
			return out, true
		default:
			return callOutcome{}, false
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
