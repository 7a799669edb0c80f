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

package manager

import (
	"sort"
	"sync"

	"stash.appscode.dev/kubedr/pkg/metrics"

	"github.com/pkg/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	engineBackup  = "backup"
	engineRestore = "restore"
)

type Failure struct {
	Key string
	Err error
}

// Summary is the outcome of one namespace. Succeeded lists the keys stored
// by a backup or applied by a restore.
type Summary struct {
	Namespace string
	Succeeded []string
	Skipped   []string
	Failures  []Failure

	engine string
	mu     sync.Mutex
}

func newSummary(engine, namespace string) *Summary {
	return &Summary{engine: engine, Namespace: namespace}
}

func (s *Summary) succeed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Succeeded = append(s.Succeeded, key)
}

func (s *Summary) skip(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped = append(s.Skipped, key)
}

func (s *Summary) fail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, Failure{Key: key, Err: err})
}

// revoke turns every succeeded key into a failure with err and returns how
// many were moved.
func (s *Summary) revoke(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.Succeeded)
	for _, key := range s.Succeeded {
		s.Failures = append(s.Failures, Failure{Key: key, Err: err})
	}
	s.Succeeded = nil
	return n
}

// finish orders the results by key and records them in the object counter.
// It is called once, after the last result of the namespace is known.
func (s *Summary) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Strings(s.Succeeded)
	sort.Strings(s.Skipped)
	sort.SliceStable(s.Failures, func(i, j int) bool {
		return s.Failures[i].Key < s.Failures[j].Key
	})
	metrics.ObjectsProcessed(s.engine, metrics.ResultSuccess, len(s.Succeeded))
	metrics.ObjectsProcessed(s.engine, metrics.ResultSkipped, len(s.Skipped))
	metrics.ObjectsProcessed(s.engine, metrics.ResultFailure, len(s.Failures))
}

// Err aggregates every recorded failure, or returns nil.
func (s *Summary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]error, 0, len(s.Failures))
	for _, f := range s.Failures {
		errs = append(errs, errors.Wrap(f.Err, f.Key))
	}
	return utilerrors.NewAggregate(errs)
}

func aggregate(summaries []*Summary) error {
	var errs []error
	for _, s := range summaries {
		if err := s.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.Flatten(utilerrors.NewAggregate(errs))
}
