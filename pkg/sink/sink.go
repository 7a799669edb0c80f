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

// Package sink applies restored objects to a target cluster.
package sink

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Interface receives the objects of one namespace at a time. Begin starts a
// namespace, Apply is called for every object in restore order and Commit
// finishes the namespace. Apply may be called concurrently for objects of
// the same kind.
type Interface interface {
	Begin(ctx context.Context, namespace string) error
	Apply(ctx context.Context, obj *unstructured.Unstructured) error
	Commit(ctx context.Context) error
}
