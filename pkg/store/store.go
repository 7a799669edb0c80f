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

// Package store holds backed up records keyed by cluster/namespace/kind/name.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"stash.appscode.dev/kubedr/pkg/retry"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("record not found")

// Interface is safe for concurrent use.
type Interface interface {
	Put(ctx context.Context, key string, data []byte) error
	// List returns every key starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Namespaces returns the distinct second key fields below the cluster prefix.
func Namespaces(ctx context.Context, s Interface, cluster string) ([]string, error) {
	prefix := cluster + "/"
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		i := strings.Index(rest, "/")
		if i <= 0 {
			continue
		}
		ns := rest[:i]
		if !seen[ns] {
			seen[ns] = true
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() Interface {
	return &memory{data: map[string][]byte{}}
}

func (m *memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, retry.NewPermanent(errors.Wrap(ErrNotFound, key))
	}
	return append([]byte(nil), data...), nil
}
