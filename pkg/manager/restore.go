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
	"path"
	"sort"

	"stash.appscode.dev/kubedr/pkg/keys"
	"stash.appscode.dev/kubedr/pkg/metrics"
	"stash.appscode.dev/kubedr/pkg/registry"
	"stash.appscode.dev/kubedr/pkg/retry"
	"stash.appscode.dev/kubedr/pkg/sink"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

const AllNamespaces = "*"

type RestoreRequest struct {
	// ClusterSet is the bucket the records were written to.
	ClusterSet  string
	ClusterName string
	// NamespacePattern is a path.Match glob. Empty matches every namespace.
	NamespacePattern string
	DryRun           bool
}

// RestoreManager reads records back from storage and applies them
// namespace by namespace, one kind at a time in restore order.
type RestoreManager struct {
	opt RestoreOptions
}

func NewRestoreManager(opt RestoreOptions) (*RestoreManager, error) {
	opt.setDefaults()
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return &RestoreManager{opt: opt}, nil
}

// stored groups record names by namespace and kind.
type stored map[string]map[string][]string

// RestoreNamespaces returns one Summary per restored namespace. Keys that
// cannot be parsed are reported in a Summary with an empty Namespace.
func (m *RestoreManager) RestoreNamespaces(ctx context.Context, req RestoreRequest) ([]*Summary, error) {
	if req.ClusterSet != m.opt.Bucket {
		return nil, retry.NewPermanent(errors.Errorf("cluster set %q does not match bucket %q", req.ClusterSet, m.opt.Bucket))
	}
	if err := validateClusterName(req.ClusterName); err != nil {
		return nil, retry.NewPermanent(err)
	}
	pattern := req.NamespacePattern
	if pattern == "" {
		pattern = AllNamespaces
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, retry.NewPermanent(errors.Wrapf(err, "invalid namespace pattern %q", pattern))
	}
	log := m.opt.Log.WithValues("clusterSet", req.ClusterSet, "cluster", req.ClusterName)
	log.Info("starting restore", "namespaces", pattern, "dryRun", req.DryRun)

	var all []string
	prefix := keys.ClusterPrefix(req.ClusterName)
	err := metrics.Time("list", "", func() error {
		return m.opt.Executor.Do(ctx, "list "+prefix, func() error {
			var err error
			all, err = m.opt.Storage.List(ctx, prefix)
			return err
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list records of cluster %s", req.ClusterName)
	}

	var summaries []*Summary
	malformed := newSummary(engineRestore, "")
	records := stored{}
	for _, s := range all {
		key, err := keys.Parse(s)
		if err != nil {
			malformed.fail(s, err)
			continue
		}
		if key.Cluster != req.ClusterName {
			continue
		}
		if ok, _ := path.Match(pattern, key.Namespace); !ok {
			continue
		}
		if records[key.Namespace] == nil {
			records[key.Namespace] = map[string][]string{}
		}
		records[key.Namespace][key.Kind] = append(records[key.Namespace][key.Kind], key.Name)
	}
	if len(malformed.Failures) > 0 {
		malformed.finish()
		summaries = append(summaries, malformed)
	}

	namespaces := make([]string, 0, len(records))
	for ns := range records {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	target := m.opt.NewSink(req.DryRun)
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		summaries = append(summaries, m.restoreNamespace(ctx, target, req.ClusterName, ns, records[ns]))
	}
	if err := ctx.Err(); err != nil {
		return summaries, err
	}
	return summaries, aggregate(summaries)
}

func (m *RestoreManager) restoreNamespace(ctx context.Context, target sink.Interface, clusterName, namespace string, byKind map[string][]string) *Summary {
	summary := newSummary(engineRestore, namespace)
	log := m.opt.Log.WithValues("namespace", namespace)
	log.Info("restoring namespace")
	defer summary.finish()

	for kind, names := range byKind {
		if !registry.IsRestorable(kind) {
			log.Info("kind is not restored, skipping", "kind", kind, "count", len(names))
			for _, name := range names {
				summary.skip(keys.Encode(clusterName, namespace, kind, name))
			}
		}
	}

	if err := target.Begin(ctx, namespace); err != nil {
		summary.fail(keys.NamespacePrefix(clusterName, namespace), errors.Wrap(err, "failed to begin namespace"))
		return summary
	}

	for _, kind := range registry.RestoreOrder() {
		names := byKind[kind.Name]
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)

		var g errgroup.Group
		g.SetLimit(m.opt.Workers)
		for _, name := range names {
			if ctx.Err() != nil {
				break
			}
			key := keys.New(clusterName, namespace, kind.Name, name)
			// started objects run to completion even if ctx is cancelled
			octx := context.WithoutCancel(ctx)
			g.Go(func() error {
				// a free worker does not pick up new objects once ctx is done
				if ctx.Err() != nil {
					return nil
				}
				m.restoreObject(octx, target, key, summary)
				return nil
			})
		}
		// every object of a kind is applied before the next kind starts
		_ = g.Wait()
		if ctx.Err() != nil {
			log.Info("restore cancelled")
			return summary
		}
	}

	if err := target.Commit(ctx); err != nil {
		err = errors.Wrap(err, "failed to commit namespace")
		// objects handed to the sink never reached the cluster
		if summary.revoke(err) == 0 {
			summary.fail(keys.NamespacePrefix(clusterName, namespace), err)
		}
	}
	log.Info("namespace restored", "applied", len(summary.Succeeded), "skipped", len(summary.Skipped), "failed", len(summary.Failures))
	return summary
}

func (m *RestoreManager) restoreObject(ctx context.Context, target sink.Interface, key keys.Key, summary *Summary) {
	id := key.String()
	if m.opt.Exclusions.ExcludesKey(key.Namespace, key.Kind, key.Name) {
		m.opt.Log.V(2).Info("excluded from restore", "key", id)
		summary.skip(id)
		return
	}

	var data []byte
	err := metrics.Time("get", key.Kind, func() error {
		return m.opt.Executor.Do(ctx, "get "+id, func() error {
			var err error
			data, err = m.opt.Storage.Get(ctx, id)
			return err
		})
	})
	if err != nil {
		summary.fail(id, err)
		return
	}

	obj, err := decode(data, key)
	if err != nil {
		summary.fail(id, err)
		return
	}
	if m.opt.Exclusions.Excludes(obj) {
		m.opt.Log.V(2).Info("excluded from restore", "key", id)
		summary.skip(id)
		return
	}

	if err := target.Apply(ctx, obj); err != nil {
		summary.fail(id, err)
		return
	}
	m.opt.Log.V(3).Info("applied object", "key", id)
	summary.succeed(id)
}

// decode turns a record into an object of the key's namespace.
func decode(data []byte, key keys.Key) (*unstructured.Unstructured, error) {
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode record")
	}
	obj := &unstructured.Unstructured{Object: doc}
	if obj.GetKind() == "" {
		obj.SetKind(key.Kind)
	}
	if obj.GetKind() != key.Kind {
		return nil, errors.Errorf("record holds a %s, not a %s", obj.GetKind(), key.Kind)
	}
	if obj.GetAPIVersion() == "" {
		if kind, err := registry.Resolve(key.Kind); err == nil {
			obj.SetAPIVersion(kind.Resource.GroupVersion().String())
		}
	}
	if obj.GetName() == "" {
		obj.SetName(key.Name)
	}
	obj.SetNamespace(key.Namespace)
	return obj, nil
}
