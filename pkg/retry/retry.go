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

// Package retry wraps remote calls with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultBackoff allows 5 attempts, sleeping 200ms, 400ms, 800ms and 1.6s
// (plus jitter) between them. No single sleep is longer than Cap, however
// many attempts are configured.
var DefaultBackoff = wait.Backoff{
	Steps:    5,
	Duration: 200 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Cap:      30 * time.Second,
}

// Executor runs an operation until it succeeds, fails permanently or runs
// out of attempts. Backoff.Steps is the maximum attempt count and
// Backoff.Cap the longest sleep between two attempts.
type Executor struct {
	Backoff  wait.Backoff
	Classify Classifier
	Log      logr.Logger
}

func NewExecutor(maxAttempts int) *Executor {
	b := DefaultBackoff
	if maxAttempts > 0 {
		b.Steps = maxAttempts
	}
	return &Executor{
		Backoff:  b,
		Classify: DefaultClassifier,
		Log:      logr.Discard(),
	}
}

// Do calls fn at most Backoff.Steps times. Transient failures past the last
// attempt are returned as *RetryExhausted; permanent ones are returned as is.
func (e *Executor) Do(ctx context.Context, op string, fn func() error) error {
	backoff := e.Backoff
	maxAttempts := backoff.Steps
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	classify := e.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	for attempts := 1; ; attempts++ {
		if err := ctx.Err(); err != nil {
			return NewPermanent(err)
		}
		err := fn()
		if err == nil {
			return nil
		}
		if classify(err) != Transient {
			return err
		}
		if attempts >= maxAttempts {
			return &RetryExhausted{Op: op, Attempts: attempts, Err: err}
		}

		delay := nextDelay(&backoff)
		e.Log.V(4).Info("transient failure", "op", op, "attempt", attempts, "retryIn", delay.String(), "error", err.Error())
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return NewPermanent(ctx.Err())
		case <-t.C:
		}
	}
}

// nextDelay steps b and clamps the sleep to b.Cap. wait.Backoff stops
// counting steps once Cap is reached, so the attempt budget is tracked by Do.
func nextDelay(b *wait.Backoff) time.Duration {
	d := b.Step()
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}
