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

package cluster

import (
	"context"
	"fmt"
	"strings"

	"stash.appscode.dev/kubedr/pkg/metrics"
	"stash.appscode.dev/kubedr/pkg/registry"
	"stash.appscode.dev/kubedr/pkg/retry"

	"github.com/pkg/errors"
	kerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const DefaultPageSize = 250

// ErrExpiredContinue means the server no longer accepts the continue token.
// The listing has to start over from the first page.
var ErrExpiredContinue = errors.New("continue token expired or invalid")

type expiredContinueError struct {
	err error
}

func (e *expiredContinueError) Error() string {
	return fmt.Sprintf("%v: %v", ErrExpiredContinue, e.err)
}

func (e *expiredContinueError) Unwrap() error { return e.err }

func (e *expiredContinueError) Is(target error) bool {
	return target == ErrExpiredContinue
}

func isContinueError(err error) bool {
	return kerr.IsResourceExpired(err) ||
		kerr.IsGone(err) ||
		(kerr.IsBadRequest(err) && strings.Contains(err.Error(), "continue"))
}

type PagerOptions struct {
	PageSize      int64
	Continue      string
	LabelSelector string
}

// Pager lists every object of one kind in a namespace, one page at a time.
// Use it like bufio.Scanner:
//
//	p := NewPager(c, exec, "default", kind, PagerOptions{})
//	for p.Next(ctx) {
//		process(p.Object())
//	}
//	if err := p.Err(); err != nil {
//		return err
//	}
//
// A Pager is not safe for concurrent use.
type Pager struct {
	client    Interface
	exec      *retry.Executor
	namespace string
	kind      registry.Kind
	opts      PagerOptions

	current string
	next    string
	started bool
	items   []unstructured.Unstructured
	pos     int
	obj     *unstructured.Unstructured
	err     error
}

func NewPager(client Interface, exec *retry.Executor, namespace string, kind registry.Kind, opts PagerOptions) *Pager {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Pager{
		client:    client,
		exec:      exec,
		namespace: namespace,
		kind:      kind,
		opts:      opts,
		next:      opts.Continue,
		current:   opts.Continue,
	}
}

// Next advances to the next object, fetching a page when needed. It returns
// false at the end of the listing or on error.
func (p *Pager) Next(ctx context.Context) bool {
	for {
		if p.err != nil {
			return false
		}
		if p.pos < len(p.items) {
			p.obj = &p.items[p.pos]
			p.pos++
			return true
		}
		if p.started && p.next == "" {
			p.obj = nil
			return false
		}
		if !p.fetch(ctx) {
			p.obj = nil
			return false
		}
	}
}

func (p *Pager) fetch(ctx context.Context) bool {
	token := p.next
	var items []unstructured.Unstructured
	var next string

	op := fmt.Sprintf("list %s in %s", p.kind.Resource.Resource, p.namespace)
	err := metrics.Time("list", p.kind.Name, func() error {
		return p.exec.Do(ctx, op, func() error {
			var err error
			items, next, err = p.client.List(ctx, p.namespace, p.kind, ListOptions{
				Limit:         p.opts.PageSize,
				Continue:      token,
				LabelSelector: p.opts.LabelSelector,
			})
			if err != nil && token != "" && isContinueError(err) {
				return retry.NewPermanent(&expiredContinueError{err: err})
			}
			return err
		})
	})
	p.started = true
	p.items, p.pos = nil, 0
	if err != nil {
		if kerr.IsNotFound(err) {
			// kind is not served by this cluster
			p.next = ""
			return false
		}
		p.err = err
		return false
	}
	p.current = token
	p.items = items
	p.next = next
	return true
}

// Object returns the object Next advanced to.
func (p *Pager) Object() *unstructured.Unstructured {
	return p.obj
}

func (p *Pager) Err() error {
	return p.err
}

// Continue returns the token that resumes the listing at the start of the
// page currently being consumed. Objects already seen on that page are
// returned again after a resume.
func (p *Pager) Continue() string {
	return p.current
}
