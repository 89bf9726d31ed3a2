// Package retry runs remote calls with a per-attempt timeout and a
// bounded number of retries for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/googleapi"
)

// Policy defines how many times and how patiently a call is retried.
type Policy struct {
	Attempts int           // total attempts, at least 1
	Timeout  time.Duration // timeout of a single attempt, 0 for none
	Initial  time.Duration // first pause between attempts
	Max      time.Duration // maximum pause between attempts
}

var (
	ErrAttempts = errors.New("giving up after")

	// Testing and debugging support.
	sleep   = gax.Sleep
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// Do calls fn until it succeeds, fails with a permanent error, or the
// policy's attempts are used up.  Each attempt gets its own context
// derived from ctx and bounded by the policy's timeout.  The returned
// error wraps the last error of fn.
func Do(ctx context.Context, p Policy, what string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	bo := gax.Backoff{Initial: p.Initial, Max: p.Max, Multiplier: 2}
	var err error
	for attempt := 1; ; attempt++ {
		err = call(ctx, p.Timeout, fn)
		if err == nil {
			if attempt > 1 {
				verbose("%v succeeded on attempt %d", what, attempt)
			}
			return nil
		}
		if attempt >= attempts || !Transient(err) || ctx.Err() != nil {
			break
		}
		pause := bo.Pause()
		log.Printf("WARNING: %v failed (attempt %d of %d), retrying in %v: %v\n", what, attempt, attempts, pause, err)
		if serr := sleep(ctx, pause); serr != nil {
			break
		}
	}
	if attempts > 1 && Transient(err) {
		return fmt.Errorf("%v: %w %d attempts: %w", what, ErrAttempts, attempts, err)
	}
	return fmt.Errorf("%v: %w", what, err)
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// Transient reports whether err is worth retrying: rate limiting and
// server side errors of Google APIs, timeouts, and connections cut in
// the middle of a transfer.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
