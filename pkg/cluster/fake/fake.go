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

// Package fake is an in-memory cluster.Interface that records every call.
package fake

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"stash.appscode.dev/kubedr/pkg/cluster"
	"stash.appscode.dev/kubedr/pkg/registry"

	kerr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

type Action struct {
	Verb      string
	Namespace string
	Kind      string
	Name      string
	Continue  string
	DryRun    bool
}

// Reactor runs before every call. A non-nil error is returned to the caller
// in place of the call's result.
type Reactor func(a Action) error

type Cluster struct {
	mu         sync.Mutex
	objects    map[string]*unstructured.Unstructured
	namespaces map[string]bool
	actions    []Action
	serial     int

	Reactor Reactor
}

var _ cluster.Interface = &Cluster{}

func New(objs ...*unstructured.Unstructured) *Cluster {
	c := &Cluster{
		objects:    map[string]*unstructured.Unstructured{},
		namespaces: map[string]bool{},
	}
	c.Add(objs...)
	return c
}

func key(namespace, kind, name string) string {
	return namespace + "/" + kind + "/" + name
}

// Add stores objects as if they had been created by the server.
func (c *Cluster) Add(objs ...*unstructured.Unstructured) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, obj := range objs {
		c.store(obj.DeepCopy())
	}
}

func (c *Cluster) store(obj *unstructured.Unstructured) {
	c.serial++
	obj.SetResourceVersion(strconv.Itoa(c.serial))
	obj.SetUID(types.UID("uid-" + strconv.Itoa(c.serial)))
	c.namespaces[obj.GetNamespace()] = true
	c.objects[key(obj.GetNamespace(), obj.GetKind(), obj.GetName())] = obj
}

func (c *Cluster) AddNamespace(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.namespaces[name] = true
	}
}

// Names returns the names of the stored objects of kind in namespace.
func (c *Cluster) Names(namespace, kind string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, obj := range c.objects {
		if obj.GetNamespace() == namespace && obj.GetKind() == kind {
			out = append(out, obj.GetName())
		}
	}
	sort.Strings(out)
	return out
}

func (c *Cluster) Object(namespace, kind, name string) *unstructured.Unstructured {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key(namespace, kind, name)]
	if !ok {
		return nil
	}
	return obj.DeepCopy()
}

func (c *Cluster) Actions() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Action(nil), c.actions...)
}

// ActionsFor filters Actions by verb.
func (c *Cluster) ActionsFor(verb string) []Action {
	var out []Action
	for _, a := range c.Actions() {
		if a.Verb == verb {
			out = append(out, a)
		}
	}
	return out
}

func (c *Cluster) record(a Action) error {
	c.mu.Lock()
	c.actions = append(c.actions, a)
	reactor := c.Reactor
	c.mu.Unlock()
	if reactor != nil {
		return reactor(a)
	}
	return nil
}

func (c *Cluster) List(_ context.Context, namespace string, kind registry.Kind, opts cluster.ListOptions) ([]unstructured.Unstructured, string, error) {
	if err := c.record(Action{Verb: "list", Namespace: namespace, Kind: kind.Name, Continue: opts.Continue}); err != nil {
		return nil, "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for _, obj := range c.objects {
		if obj.GetNamespace() == namespace && obj.GetKind() == kind.Name {
			names = append(names, obj.GetName())
		}
	}
	sort.Strings(names)

	start := 0
	if opts.Continue != "" {
		var err error
		start, err = strconv.Atoi(opts.Continue)
		if err != nil || start < 0 || start > len(names) {
			return nil, "", kerr.NewBadRequest("invalid continue token " + opts.Continue)
		}
	}
	end := len(names)
	next := ""
	if opts.Limit > 0 && start+int(opts.Limit) < len(names) {
		end = start + int(opts.Limit)
		next = strconv.Itoa(end)
	}
	items := make([]unstructured.Unstructured, 0, end-start)
	for _, name := range names[start:end] {
		items = append(items, *c.objects[key(namespace, kind.Name, name)].DeepCopy())
	}
	return items, next, nil
}

func (c *Cluster) Get(_ context.Context, namespace string, kind registry.Kind, name string) (*unstructured.Unstructured, error) {
	if err := c.record(Action{Verb: "get", Namespace: namespace, Kind: kind.Name, Name: name}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key(namespace, kind.Name, name)]
	if !ok {
		return nil, kerr.NewNotFound(kind.Resource.GroupResource(), name)
	}
	return obj.DeepCopy(), nil
}

func (c *Cluster) Create(_ context.Context, namespace string, kind registry.Kind, obj *unstructured.Unstructured, dryRun bool) (*unstructured.Unstructured, error) {
	if err := c.record(Action{Verb: "create", Namespace: namespace, Kind: kind.Name, Name: obj.GetName(), DryRun: dryRun}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[key(namespace, kind.Name, obj.GetName())]; ok {
		return nil, kerr.NewAlreadyExists(kind.Resource.GroupResource(), obj.GetName())
	}
	created := obj.DeepCopy()
	created.SetNamespace(namespace)
	created.SetKind(kind.Name)
	if dryRun {
		return created, nil
	}
	c.store(created)
	return created.DeepCopy(), nil
}

func (c *Cluster) Delete(_ context.Context, namespace string, kind registry.Kind, name string) error {
	if err := c.record(Action{Verb: "delete", Namespace: namespace, Kind: kind.Name, Name: name}); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(namespace, kind.Name, name)
	obj, ok := c.objects[k]
	if !ok {
		return kerr.NewNotFound(kind.Resource.GroupResource(), name)
	}
	if len(obj.GetFinalizers()) > 0 {
		// stays around, like an object waiting on its finalizers
		now := metav1.Now()
		obj.SetDeletionTimestamp(&now)
		return nil
	}
	delete(c.objects, k)
	return nil
}

func (c *Cluster) Namespaces(_ context.Context) ([]string, error) {
	if err := c.record(Action{Verb: "namespaces"}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for ns := range c.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}
