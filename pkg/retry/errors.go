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
	"fmt"
	"net"

	"github.com/pkg/errors"
	kerr "k8s.io/apimachinery/pkg/api/errors"
)

type Class int

const (
	Transient Class = iota
	Permanent
)

func (c Class) String() string {
	if c == Permanent {
		return "Permanent"
	}
	return "Transient"
}

// Classifier labels a failed call as worth retrying or not.
type Classifier func(error) Class

// TransientError marks a failure that may succeed when retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that will not go away by retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func NewPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryExhausted is returned once the attempt budget is spent on transient
// failures. Err is the last failure observed.
type RetryExhausted struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhausted) Unwrap() error { return e.Err }

// DefaultClassifier honors explicit Transient/Permanent wrappers, then
// falls back to the Kubernetes API status of err. Errors it cannot place are
// treated as transient.
func DefaultClassifier(err error) Class {
	var te *TransientError
	if errors.As(err, &te) {
		return Transient
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return Permanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent
	}

	switch {
	case kerr.IsTimeout(err),
		kerr.IsServerTimeout(err),
		kerr.IsTooManyRequests(err),
		kerr.IsInternalError(err),
		kerr.IsServiceUnavailable(err),
		kerr.IsUnexpectedServerError(err):
		return Transient
	}
	var status kerr.APIStatus
	if errors.As(err, &status) {
		code := status.Status().Code
		switch {
		case code >= 500:
			return Transient
		case code >= 400:
			return Permanent
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient
	}
	return Transient
}

func IsTransient(err error) bool {
	return err != nil && DefaultClassifier(err) == Transient
}
