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
	"context"

	"stash.appscode.dev/kubedr/pkg/cluster"
	"stash.appscode.dev/kubedr/pkg/keys"
	"stash.appscode.dev/kubedr/pkg/metrics"
	"stash.appscode.dev/kubedr/pkg/registry"
	"stash.appscode.dev/kubedr/pkg/sanitizers"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gomodules.xyz/sets"
	kerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

// BackupManager captures the objects of every registered kind in a
// namespace and stores one record per object.
type BackupManager struct {
	opt BackupOptions
}

func NewBackupManager(opt BackupOptions) (*BackupManager, error) {
	opt.setDefaults()
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return &BackupManager{opt: opt}, nil
}

// SaveAll backs up every namespace of the cluster except the excluded ones.
func (m *BackupManager) SaveAll(ctx context.Context) ([]*Summary, error) {
	var namespaces []string
	err := m.opt.Executor.Do(ctx, "list namespaces", func() error {
		var err error
		namespaces, err = m.opt.Client.Namespaces(ctx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list namespaces")
	}

	excluded := sets.NewString(m.opt.ExcludeNamespaces...)
	var selected []string
	for _, ns := range namespaces {
		if excluded.Has(ns) {
			m.opt.Log.V(2).Info("skipping excluded namespace", "namespace", ns)
			continue
		}
		selected = append(selected, ns)
	}
	return m.SaveNamespaces(ctx, selected)
}

func (m *BackupManager) SaveNamespaces(ctx context.Context, namespaces []string) ([]*Summary, error) {
	summaries := make([]*Summary, 0, len(namespaces))
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		s, _ := m.SaveNamespace(ctx, ns)
		summaries = append(summaries, s)
	}
	if err := ctx.Err(); err != nil {
		return summaries, err
	}
	return summaries, aggregate(summaries)
}

// SaveNamespace stores every object of namespace. A failed object does not
// stop the others; all failures are reported in the Summary and returned as
// an aggregate error.
func (m *BackupManager) SaveNamespace(ctx context.Context, namespace string) (*Summary, error) {
	summary := newSummary(engineBackup, namespace)
	log := m.opt.Log.WithValues("namespace", namespace)
	log.Info("backing up namespace")

	for _, kind := range registry.Kinds() {
		if ctx.Err() != nil {
			break
		}
		m.saveKind(ctx, namespace, kind, summary)
	}
	summary.finish()
	log.Info("namespace backed up", "stored", len(summary.Succeeded), "skipped", len(summary.Skipped), "failed", len(summary.Failures))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, summary.Err()
}

func (m *BackupManager) saveKind(ctx context.Context, namespace string, kind registry.Kind, summary *Summary) {
	seen := sets.NewString()
	restarted := false
	for {
		p := cluster.NewPager(m.opt.Client, m.opt.Executor, namespace, kind, cluster.PagerOptions{
			PageSize:      m.opt.PageSize,
			LabelSelector: m.opt.Selector,
		})

		var g errgroup.Group
		g.SetLimit(m.opt.Workers)
		for ctx.Err() == nil && p.Next(ctx) {
			name := p.Object().GetName()
			if seen.Has(name) {
				continue
			}
			seen.Insert(name)
			// started objects run to completion even if ctx is cancelled
			octx := context.WithoutCancel(ctx)
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				m.saveObject(octx, namespace, kind, name, summary)
				return nil
			})
		}
		_ = g.Wait()

		err := p.Err()
		if errors.Is(err, cluster.ErrExpiredContinue) && !restarted {
			restarted = true
			m.opt.Log.Info("continue token expired, listing again", "namespace", namespace, "kind", kind.Name, "seen", seen.Len())
			continue
		}
		if err != nil && ctx.Err() == nil {
			summary.fail(keys.KindPrefix(m.opt.ClusterName, namespace, kind.Name), errors.Wrapf(err, "failed to list %s", kind.Name))
		}
		return
	}
}

func (m *BackupManager) saveObject(ctx context.Context, namespace string, kind registry.Kind, name string, summary *Summary) {
	key := keys.Encode(m.opt.ClusterName, namespace, kind.Name, name)

	var obj *unstructured.Unstructured
	err := metrics.Time("get", kind.Name, func() error {
		return m.opt.Executor.Do(ctx, "get "+key, func() error {
			var err error
			obj, err = m.opt.Client.Get(ctx, namespace, kind, name)
			return err
		})
	})
	if kerr.IsNotFound(err) {
		// deleted since it was listed
		m.opt.Log.V(3).Info("object is gone", "key", key)
		summary.skip(key)
		return
	}
	if err != nil {
		summary.fail(key, err)
		return
	}

	doc := obj.Object
	if !m.opt.SkipSanitize {
		doc, err = sanitizers.NewSanitizer(kind.Name).Sanitize(doc)
		if err != nil {
			summary.fail(key, errors.Wrap(err, "failed to sanitize"))
			return
		}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		summary.fail(key, errors.Wrap(err, "failed to marshal"))
		return
	}

	err = metrics.Time("put", kind.Name, func() error {
		return m.opt.Executor.Do(ctx, "put "+key, func() error {
			return m.opt.Storage.Put(ctx, key, data)
		})
	})
	if err != nil {
		summary.fail(key, err)
		return
	}
	m.opt.Log.V(3).Info("stored object", "key", key)
	summary.succeed(key)
}
