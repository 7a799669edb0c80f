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

package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stash.appscode.dev/kubedr/pkg/cluster"
	"stash.appscode.dev/kubedr/pkg/metrics"
	"stash.appscode.dev/kubedr/pkg/registry"
	"stash.appscode.dev/kubedr/pkg/retry"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	kerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	DefaultDeleteTimeout = 2 * time.Minute
	DefaultPollInterval  = time.Second
)

type ClusterOptions struct {
	// DryRun creates objects with server side dry run and never deletes.
	DryRun        bool
	DeleteTimeout time.Duration
	PollInterval  time.Duration
	Log           logr.Logger
}

// ClusterSink replaces every object in the target cluster: an existing
// object with the same name is deleted and the stored one created in its
// place. Applying the same object twice leaves the cluster in the same state.
type ClusterSink struct {
	client cluster.Interface
	exec   *retry.Executor
	opts   ClusterOptions

	mu        sync.RWMutex
	namespace string
}

var _ Interface = &ClusterSink{}

func NewCluster(client cluster.Interface, exec *retry.Executor, opts ClusterOptions) *ClusterSink {
	if opts.DeleteTimeout <= 0 {
		opts.DeleteTimeout = DefaultDeleteTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &ClusterSink{client: client, exec: exec, opts: opts}
}

func (s *ClusterSink) Begin(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespace = namespace
	return nil
}

func (s *ClusterSink) Apply(ctx context.Context, obj *unstructured.Unstructured) error {
	s.mu.RLock()
	namespace := s.namespace
	s.mu.RUnlock()

	kind, err := registry.Resolve(obj.GetKind())
	if err != nil {
		return retry.NewPermanent(err)
	}
	if !s.opts.DryRun {
		if err := s.RemoveIfExists(ctx, namespace, kind, obj.GetName()); err != nil {
			return err
		}
	}

	op := fmt.Sprintf("create %s %s/%s", kind.Resource.Resource, namespace, obj.GetName())
	attempt := 0
	err = metrics.Time("create", kind.Name, func() error {
		return s.exec.Do(ctx, op, func() error {
			attempt++
			_, err := s.client.Create(ctx, namespace, kind, obj.DeepCopy(), s.opts.DryRun)
			if attempt > 1 && kerr.IsAlreadyExists(err) {
				// an earlier attempt reached the server before its response was lost
				return nil
			}
			return err
		})
	})
	if s.opts.DryRun && kerr.IsAlreadyExists(err) {
		// a real run deletes it first
		err = nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to create %s %s/%s", kind.Name, namespace, obj.GetName())
	}
	s.opts.Log.V(3).Info("created object", "kind", kind.Name, "namespace", namespace, "name", obj.GetName(), "dryRun", s.opts.DryRun)
	return nil
}

// RemoveIfExists deletes the named object and waits until the API server no
// longer returns it. A missing object is not an error.
func (s *ClusterSink) RemoveIfExists(ctx context.Context, namespace string, kind registry.Kind, name string) error {
	op := fmt.Sprintf("get %s %s/%s", kind.Resource.Resource, namespace, name)
	err := metrics.Time("get", kind.Name, func() error {
		return s.exec.Do(ctx, op, func() error {
			_, err := s.client.Get(ctx, namespace, kind, name)
			return err
		})
	})
	if kerr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read %s %s/%s", kind.Name, namespace, name)
	}

	op = fmt.Sprintf("delete %s %s/%s", kind.Resource.Resource, namespace, name)
	err = metrics.Time("delete", kind.Name, func() error {
		return s.exec.Do(ctx, op, func() error {
			return s.client.Delete(ctx, namespace, kind, name)
		})
	})
	if kerr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete %s %s/%s", kind.Name, namespace, name)
	}
	s.opts.Log.V(3).Info("deleted existing object", "kind", kind.Name, "namespace", namespace, "name", name)

	return cluster.WaitUntilGone(ctx, s.client, namespace, kind, name, s.opts.PollInterval, s.opts.DeleteTimeout)
}

func (s *ClusterSink) Commit(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespace = ""
	return nil
}
