/*
Copyright AppsCode Inc. and Contributors

Licensed under the AppsCode Free Trial License 1.0.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://github.com/appscode/licenses/raw/1.0.0/AppsCode-Free-Trial-1.0.0.md

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	kerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
)

func testExecutor(steps int) *Executor {
	e := NewExecutor(steps)
	e.Backoff = wait.Backoff{Steps: steps, Duration: time.Millisecond, Factor: 2}
	return e
}

var configmaps = schema.GroupResource{Resource: "configmaps"}

func TestExecutorAttempts(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		err          error
		wantAttempts int
		wantErr      bool
		exhausted    bool
	}{
		{
			name:         "first attempt succeeds",
			wantAttempts: 1,
		},
		{
			name:         "transient then success",
			failures:     2,
			err:          kerr.NewServerTimeout(configmaps, "list", 1),
			wantAttempts: 3,
		},
		{
			name:         "always transient",
			failures:     100,
			err:          NewTransient(errors.New("connection reset")),
			wantAttempts: 3,
			wantErr:      true,
			exhausted:    true,
		},
		{
			name:         "rate limited",
			failures:     100,
			err:          kerr.NewTooManyRequests("slow down", 0),
			wantAttempts: 3,
			wantErr:      true,
			exhausted:    true,
		},
		{
			name:         "permanent",
			failures:     100,
			err:          kerr.NewForbidden(configmaps, "cm", errors.New("rbac")),
			wantAttempts: 1,
			wantErr:      true,
		},
		{
			name:         "explicit permanent",
			failures:     100,
			err:          NewPermanent(errors.New("bad document")),
			wantAttempts: 1,
			wantErr:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testExecutor(3)
			attempts := 0
			err := e.Do(context.Background(), "test", func() error {
				attempts++
				if attempts <= tt.failures {
					return tt.err
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if attempts != tt.wantAttempts {
				t.Errorf("Do() made %d attempts, want %d", attempts, tt.wantAttempts)
			}
			var re *RetryExhausted
			if got := errors.As(err, &re); got != tt.exhausted {
				t.Fatalf("Do() error = %v, exhausted = %v, want %v", err, got, tt.exhausted)
			}
			if tt.exhausted {
				if re.Attempts != tt.wantAttempts {
					t.Errorf("RetryExhausted.Attempts = %d, want %d", re.Attempts, tt.wantAttempts)
				}
				if !errors.Is(err, tt.err) {
					t.Errorf("RetryExhausted does not wrap the last error: %v", err)
				}
			}
		})
	}
}

func TestExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := testExecutor(3).Do(ctx, "test", func() error {
		called = true
		return nil
	})
	if called {
		t.Errorf("Do() called fn after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"internal", kerr.NewInternalError(errors.New("boom")), Transient},
		{"unavailable", kerr.NewServiceUnavailable("down"), Transient},
		{"timeout", kerr.NewTimeoutError("slow", 1), Transient},
		{"too many requests", kerr.NewTooManyRequests("slow", 1), Transient},
		{"not found", kerr.NewNotFound(configmaps, "cm"), Permanent},
		{"invalid", kerr.NewBadRequest("bad"), Permanent},
		{"unauthorized", kerr.NewUnauthorized("who"), Permanent},
		{"gone", kerr.NewResourceExpired("expired"), Permanent},
		{"cancelled", context.Canceled, Permanent},
		{"wrapped transient", errors.Wrap(NewTransient(errors.New("x")), "ctx"), Transient},
		{"wrapped permanent", errors.Wrap(NewPermanent(errors.New("x")), "ctx"), Permanent},
		{"unknown", errors.New("dial tcp: connection refused"), Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.want {
				t.Errorf("DefaultClassifier() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoffIsCapped(t *testing.T) {
	e := NewExecutor(20)
	if e.Backoff.Cap <= 0 {
		t.Fatalf("Backoff.Cap = %v, want a positive cap", e.Backoff.Cap)
	}
	if e.Backoff.Steps != 20 {
		t.Errorf("Backoff.Steps = %d, want 20", e.Backoff.Steps)
	}

	b := e.Backoff
	var total time.Duration
	for attempt := 1; attempt < 20; attempt++ {
		d := nextDelay(&b)
		if d > e.Backoff.Cap {
			t.Errorf("sleep after attempt %d = %v, exceeds cap %v", attempt, d, e.Backoff.Cap)
		}
		total += d
	}
	if limit := 19 * e.Backoff.Cap; total > limit {
		t.Errorf("total sleep = %v, want at most %v", total, limit)
	}
}

func TestExecutorAttemptsPastCap(t *testing.T) {
	e := NewExecutor(6)
	e.Backoff = wait.Backoff{Steps: 6, Duration: time.Millisecond, Factor: 4, Cap: 2 * time.Millisecond}

	attempts := 0
	err := e.Do(context.Background(), "test", func() error {
		attempts++
		return NewTransient(errors.New("connection reset"))
	})
	var re *RetryExhausted
	if !errors.As(err, &re) {
		t.Fatalf("Do() error = %v, want RetryExhausted", err)
	}
	if attempts != 6 {
		t.Errorf("Do() made %d attempts, want 6", attempts)
	}
}

func TestExecutorCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := NewExecutor(3)
	e.Backoff = wait.Backoff{Steps: 3, Duration: time.Hour, Factor: 1}

	attempts := 0
	err := e.Do(ctx, "test", func() error {
		attempts++
		cancel()
		return NewTransient(errors.New("connection reset"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}
