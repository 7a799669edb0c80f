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

// Package cluster is the boundary to the Kubernetes API: four generic verbs
// over the kinds in the registry, plus paging and deletion helpers.
package cluster

import (
	"context"

	"stash.appscode.dev/kubedr/pkg/registry"

	core "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
)

type ListOptions struct {
	Limit         int64
	Continue      string
	LabelSelector string
}

// Interface is implemented over a shared, connection pooled client and is
// safe for concurrent use. Errors are Kubernetes API status errors, so
// callers test them with k8s.io/apimachinery/pkg/api/errors.
type Interface interface {
	// List returns one page of objects and the token for the next page. The
	// token is empty on the last page.
	List(ctx context.Context, namespace string, kind registry.Kind, opts ListOptions) ([]unstructured.Unstructured, string, error)
	Get(ctx context.Context, namespace string, kind registry.Kind, name string) (*unstructured.Unstructured, error)
	Create(ctx context.Context, namespace string, kind registry.Kind, obj *unstructured.Unstructured, dryRun bool) (*unstructured.Unstructured, error)
	Delete(ctx context.Context, namespace string, kind registry.Kind, name string) error
	Namespaces(ctx context.Context) ([]string, error)
}

type dynamicClient struct {
	di dynamic.Interface
}

func New(di dynamic.Interface) Interface {
	return dynamicClient{di: di}
}

func NewForConfig(config *rest.Config) (Interface, error) {
	config = rest.CopyConfig(config)
	config.QPS = 1e6
	config.Burst = 1e6
	if config.UserAgent == "" {
		config.UserAgent = rest.DefaultKubernetesUserAgent()
	}
	di, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	return New(di), nil
}

func (c dynamicClient) resource(namespace string, kind registry.Kind) dynamic.ResourceInterface {
	if kind.Namespaced {
		return c.di.Resource(kind.Resource).Namespace(namespace)
	}
	return c.di.Resource(kind.Resource)
}

func (c dynamicClient) List(ctx context.Context, namespace string, kind registry.Kind, opts ListOptions) ([]unstructured.Unstructured, string, error) {
	resp, err := c.resource(namespace, kind).List(ctx, metav1.ListOptions{
		Limit:         opts.Limit,
		Continue:      opts.Continue,
		LabelSelector: opts.LabelSelector,
	})
	if err != nil {
		return nil, "", err
	}
	return resp.Items, resp.GetContinue(), nil
}

func (c dynamicClient) Get(ctx context.Context, namespace string, kind registry.Kind, name string) (*unstructured.Unstructured, error) {
	return c.resource(namespace, kind).Get(ctx, name, metav1.GetOptions{})
}

func (c dynamicClient) Create(ctx context.Context, namespace string, kind registry.Kind, obj *unstructured.Unstructured, dryRun bool) (*unstructured.Unstructured, error) {
	if kind.Namespaced {
		obj.SetNamespace(namespace)
	}
	opts := metav1.CreateOptions{}
	if dryRun {
		opts.DryRun = []string{metav1.DryRunAll}
	}
	return c.resource(namespace, kind).Create(ctx, obj, opts)
}

func (c dynamicClient) Delete(ctx context.Context, namespace string, kind registry.Kind, name string) error {
	policy := metav1.DeletePropagationBackground
	return c.resource(namespace, kind).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	})
}

func (c dynamicClient) Namespaces(ctx context.Context) ([]string, error) {
	ri := c.di.Resource(core.SchemeGroupVersion.WithResource("namespaces"))
	var out []string
	var next string
	for {
		resp, err := ri.List(ctx, metav1.ListOptions{
			Limit:    DefaultPageSize,
			Continue: next,
		})
		if err != nil {
			return nil, err
		}
		for _, ns := range resp.Items {
			out = append(out, ns.GetName())
		}
		next = resp.GetContinue()
		if next == "" {
			break
		}
	}
	return out, nil
}
