package retry //nolint:testpackage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func TestVerbose(t *testing.T) { //nolint:paralleltest
	Verbose(func(fmt string, args ...interface{}) {})
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: true},
		{err: fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), want: true},
		{err: &googleapi.Error{Code: http.StatusNotFound}, want: false},
		{err: &googleapi.Error{Code: http.StatusForbidden}, want: false},
		{err: context.DeadlineExceeded, want: true},
		{err: context.Canceled, want: false},
		{err: io.ErrUnexpectedEOF, want: true},
		{err: errors.New("permanent"), want: false},
	}
	for i, test := range tests {
		if got := Transient(test.err); got != test.want {
			t.Errorf("test %02d: Transient(%v) = %v, want %v", i, test.err, got, test.want)
		}
	}
}

func TestDo(t *testing.T) { //nolint:paralleltest
	saveSleep := sleep
	defer func() { sleep = saveSleep }()
	pauses := 0
	sleep = func(ctx context.Context, d time.Duration) error {
		pauses++
		return nil
	}
	transient := &googleapi.Error{Code: http.StatusInternalServerError}
	permanent := &googleapi.Error{Code: http.StatusBadRequest}
	tests := []struct {
		name      string
		attempts  int
		failures  []error // errors returned by successive calls, then nil
		wantCalls int
		wantErr   error
	}{
		{name: "first call succeeds", attempts: 3, failures: nil, wantCalls: 1},
		{name: "transient then success", attempts: 3, failures: []error{transient, transient}, wantCalls: 3},
		{name: "attempts exhausted", attempts: 3, failures: []error{transient, transient, transient, transient}, wantCalls: 3, wantErr: ErrAttempts},
		{name: "permanent is not retried", attempts: 3, failures: []error{permanent}, wantCalls: 1, wantErr: permanent},
		{name: "zero attempts means one", attempts: 0, failures: []error{transient}, wantCalls: 1, wantErr: transient},
	}
	for i, test := range tests {
		t.Logf(">>> test %02d: %v", i, test.name)
		pauses = 0
		calls := 0
		err := Do(context.Background(), Policy{Attempts: test.attempts, Timeout: time.Second}, "test call", func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Fatalf("attempt context has no deadline")
			}
			calls++
			if calls <= len(test.failures) {
				return test.failures[calls-1]
			}
			return nil
		})
		if !errors.Is(err, test.wantErr) {
			t.Fatalf("Do() = %v, want %v", err, test.wantErr)
		}
		if calls != test.wantCalls {
			t.Fatalf("Do() made %d calls, want %d", calls, test.wantCalls)
		}
		if pauses != calls-1 {
			t.Fatalf("Do() paused %d times, want %d", pauses, calls-1)
		}
	}
}

func TestDoCanceled(t *testing.T) { //nolint:paralleltest
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 5}, "test call", func(ctx context.Context) error {
		calls++
		cancel()
		return context.DeadlineExceeded
	})
	if calls != 1 || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() = %v after %d calls, want one call", err, calls)
	}
}
