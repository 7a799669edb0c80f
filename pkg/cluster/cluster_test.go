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

package cluster_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"stash.appscode.dev/kubedr/pkg/cluster"
	"stash.appscode.dev/kubedr/pkg/cluster/fake"
	"stash.appscode.dev/kubedr/pkg/registry"
	"stash.appscode.dev/kubedr/pkg/retry"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	kerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

func configMap(namespace, name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"data": map[string]interface{}{"k": name},
	}}
}

func configMaps(namespace string, n int) []*unstructured.Unstructured {
	out := make([]*unstructured.Unstructured, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, configMap(namespace, fmt.Sprintf("cm-%03d", i)))
	}
	return out
}

func fastExecutor(attempts int) *retry.Executor {
	exec := retry.NewExecutor(attempts)
	exec.Backoff = wait.Backoff{Steps: attempts, Duration: time.Millisecond, Factor: 1}
	return exec
}

func mustKind(t *testing.T, name string) registry.Kind {
	t.Helper()
	k, err := registry.Resolve(name)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func drain(ctx context.Context, p *cluster.Pager) []string {
	var names []string
	for p.Next(ctx) {
		names = append(names, p.Object().GetName())
	}
	return names
}

func TestPagerVisitsEveryObjectOnce(t *testing.T) {
	const n = 7
	kind := mustKind(t, "ConfigMap")
	var want []string
	for _, obj := range configMaps("demo", n) {
		want = append(want, obj.GetName())
	}

	for _, size := range []int64{1, 3, n, 1000} {
		t.Run(fmt.Sprintf("page size %d", size), func(t *testing.T) {
			c := fake.New(configMaps("demo", n)...)
			c.Add(configMap("other", "not-listed"))

			p := cluster.NewPager(c, fastExecutor(1), "demo", kind, cluster.PagerOptions{PageSize: size})
			got := drain(context.Background(), p)
			if err := p.Err(); err != nil {
				t.Fatalf("Err() = %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("listed objects mismatch (-want +got):\n%s", diff)
			}
			pages := (n + int(size) - 1) / int(size)
			if got := len(c.ActionsFor("list")); got != pages {
				t.Errorf("list called %d times, want %d", got, pages)
			}
		})
	}
}

func TestPagerEmptyNamespace(t *testing.T) {
	c := fake.New()
	p := cluster.NewPager(c, fastExecutor(1), "empty", mustKind(t, "Secret"), cluster.PagerOptions{})
	if got := drain(context.Background(), p); len(got) != 0 {
		t.Errorf("listed %v, want nothing", got)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestPagerResume(t *testing.T) {
	kind := mustKind(t, "ConfigMap")
	c := fake.New(configMaps("demo", 5)...)
	ctx := context.Background()

	p := cluster.NewPager(c, fastExecutor(1), "demo", kind, cluster.PagerOptions{PageSize: 2})
	var seen []string
	for i := 0; i < 3 && p.Next(ctx); i++ {
		seen = append(seen, p.Object().GetName())
	}
	token := p.Continue()
	if token == "" {
		t.Fatal("Continue() is empty after the first page")
	}

	resumed := cluster.NewPager(c, fastExecutor(1), "demo", kind, cluster.PagerOptions{PageSize: 2, Continue: token})
	rest := drain(ctx, resumed)
	if err := resumed.Err(); err != nil {
		t.Fatal(err)
	}
	// the page holding the third object is replayed
	want := []string{"cm-002", "cm-003", "cm-004"}
	if diff := cmp.Diff(want, rest); diff != "" {
		t.Errorf("resumed listing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"cm-000", "cm-001", "cm-002"}, seen); diff != "" {
		t.Errorf("first listing mismatch (-want +got):\n%s", diff)
	}
}

func TestPagerExpiredContinue(t *testing.T) {
	c := fake.New(configMaps("demo", 4)...)
	c.Reactor = func(a fake.Action) error {
		if a.Verb == "list" && a.Continue != "" {
			return kerr.NewResourceExpired("The provided continue parameter is too old")
		}
		return nil
	}

	p := cluster.NewPager(c, fastExecutor(3), "demo", mustKind(t, "ConfigMap"), cluster.PagerOptions{PageSize: 2})
	got := drain(context.Background(), p)
	if len(got) != 2 {
		t.Errorf("listed %v before the token expired, want 2 objects", got)
	}
	if !errors.Is(p.Err(), cluster.ErrExpiredContinue) {
		t.Errorf("Err() = %v, want ErrExpiredContinue", p.Err())
	}
	// expired tokens are not retried
	if got := len(c.ActionsFor("list")); got != 2 {
		t.Errorf("list called %d times, want 2", got)
	}
}

func TestPagerKindNotServed(t *testing.T) {
	kind := mustKind(t, "ConfigMap")
	c := fake.New(configMaps("demo", 2)...)
	c.Reactor = func(a fake.Action) error {
		return kerr.NewNotFound(kind.Resource.GroupResource(), "")
	}

	p := cluster.NewPager(c, fastExecutor(3), "demo", kind, cluster.PagerOptions{})
	if got := drain(context.Background(), p); len(got) != 0 {
		t.Errorf("listed %v, want nothing", got)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestPagerRetriesTransientFailures(t *testing.T) {
	kind := mustKind(t, "ConfigMap")
	c := fake.New(configMaps("demo", 3)...)
	failures := 2
	c.Reactor = func(a fake.Action) error {
		if failures > 0 {
			failures--
			return kerr.NewServiceUnavailable("etcd leader changed")
		}
		return nil
	}

	p := cluster.NewPager(c, fastExecutor(5), "demo", kind, cluster.PagerOptions{})
	if got := drain(context.Background(), p); len(got) != 3 {
		t.Errorf("listed %v, want 3 objects", got)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestPagerGivesUp(t *testing.T) {
	kind := mustKind(t, "ConfigMap")
	c := fake.New(configMaps("demo", 3)...)
	c.Reactor = func(a fake.Action) error {
		return kerr.NewTooManyRequests("slow down", 1)
	}

	p := cluster.NewPager(c, fastExecutor(3), "demo", kind, cluster.PagerOptions{})
	drain(context.Background(), p)
	var exhausted *retry.RetryExhausted
	if !errors.As(p.Err(), &exhausted) {
		t.Fatalf("Err() = %v, want *RetryExhausted", p.Err())
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
}

func TestWaitUntilGone(t *testing.T) {
	kind := mustKind(t, "ConfigMap")
	ctx := context.Background()

	t.Run("already gone", func(t *testing.T) {
		c := fake.New()
		if err := cluster.WaitUntilGone(ctx, c, "demo", kind, "cm", time.Millisecond, time.Second); err != nil {
			t.Errorf("WaitUntilGone() = %v", err)
		}
	})

	t.Run("goes away", func(t *testing.T) {
		c := fake.New(configMap("demo", "cm"))
		polls := 0
		c.Reactor = func(a fake.Action) error {
			if a.Verb == "get" {
				polls++
				if polls == 3 {
					return kerr.NewNotFound(kind.Resource.GroupResource(), a.Name)
				}
			}
			return nil
		}
		if err := cluster.WaitUntilGone(ctx, c, "demo", kind, "cm", time.Millisecond, time.Minute); err != nil {
			t.Errorf("WaitUntilGone() = %v", err)
		}
		if polls != 3 {
			t.Errorf("polled %d times, want 3", polls)
		}
	})

	t.Run("times out", func(t *testing.T) {
		c := fake.New(configMap("demo", "cm"))
		err := cluster.WaitUntilGone(ctx, c, "demo", kind, "cm", time.Millisecond, 20*time.Millisecond)
		if err == nil {
			t.Error("WaitUntilGone() = nil, want error")
		}
	})

	t.Run("get fails", func(t *testing.T) {
		c := fake.New(configMap("demo", "cm"))
		c.Reactor = func(a fake.Action) error {
			return kerr.NewForbidden(kind.Resource.GroupResource(), a.Name, errors.New("denied"))
		}
		err := cluster.WaitUntilGone(ctx, c, "demo", kind, "cm", time.Millisecond, time.Minute)
		if !kerr.IsForbidden(errors.Cause(err)) && !kerr.IsForbidden(err) {
			t.Errorf("WaitUntilGone() = %v, want Forbidden", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		c := fake.New(configMap("demo", "cm"))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := cluster.WaitUntilGone(cctx, c, "demo", kind, "cm", 10*time.Millisecond, time.Minute)
		if err == nil {
			t.Error("WaitUntilGone() = nil, want error")
		}
	})
}

func TestDynamicClient(t *testing.T) {
	kind := mustKind(t, "ConfigMap")
	listKinds := map[schema.GroupVersionResource]string{
		kind.Resource: "ConfigMapList",
		{Version: "v1", Resource: "namespaces"}: "NamespaceList",
	}
	scheme := runtime.NewScheme()
	gvk := kind.GroupVersionKind()
	scheme.AddKnownTypeWithName(gvk, &unstructured.Unstructured{})
	scheme.AddKnownTypeWithName(gvk.GroupVersion().WithKind(gvk.Kind+"List"), &unstructured.UnstructuredList{})
	di := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds,
		configMap("demo", "a"),
		configMap("demo", "b"),
		configMap("other", "c"),
	)
	c := cluster.New(di)
	ctx := context.Background()

	items, next, err := c.List(ctx, "demo", kind, cluster.ListOptions{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || next != "" {
		t.Errorf("List() = %d items, continue %q", len(items), next)
	}

	obj := configMap("ignored", "d")
	created, err := c.Create(ctx, "demo", kind, obj, false)
	if err != nil {
		t.Fatal(err)
	}
	if created.GetNamespace() != "demo" {
		t.Errorf("created in %q, want demo", created.GetNamespace())
	}
	if _, err := c.Get(ctx, "demo", kind, "d"); err != nil {
		t.Errorf("Get() = %v", err)
	}

	if err := c.Delete(ctx, "demo", kind, "d"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "demo", kind, "d"); !kerr.IsNotFound(err) {
		t.Errorf("Get() after delete = %v, want NotFound", err)
	}
	if err := c.Delete(ctx, "demo", kind, "d"); !kerr.IsNotFound(err) {
		t.Errorf("second Delete() = %v, want NotFound", err)
	}
}
