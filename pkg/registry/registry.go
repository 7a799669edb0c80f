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

// Package registry maps the logical kind names used in backup keys to the
// API resources that serve them.
package registry

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gomodules.xyz/sets"
	appsv1 "k8s.io/api/apps/v1"
	core "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Kind describes how to reach the objects of one logical kind. The group
// version is the resource family, the resource is the plural name used on
// every list/get/create/delete call.
type Kind struct {
	Name       string
	Resource   schema.GroupVersionResource
	Namespaced bool
}

func (k Kind) String() string {
	return k.Name
}

// GroupVersionKind returns the type meta stamped on objects of this kind.
func (k Kind) GroupVersionKind() schema.GroupVersionKind {
	return k.Resource.GroupVersion().WithKind(k.Name)
}

var ErrUnknownKind = errors.New("unknown kind")

type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("kind %q is not registered", e.Kind)
}

func (e *UnknownKindError) Is(target error) bool {
	return target == ErrUnknownKind
}

func coreKind(name, resource string) Kind {
	return Kind{Name: name, Resource: core.SchemeGroupVersion.WithResource(resource), Namespaced: true}
}

func appsKind(name, resource string) Kind {
	return Kind{Name: name, Resource: appsv1.SchemeGroupVersion.WithResource(resource), Namespaced: true}
}

var kinds = map[string]Kind{
	"LimitRange":            coreKind("LimitRange", "limitranges"),
	"ResourceQuota":         coreKind("ResourceQuota", "resourcequotas"),
	"ConfigMap":             coreKind("ConfigMap", "configmaps"),
	"Secret":                coreKind("Secret", "secrets"),
	"Endpoints":             coreKind("Endpoints", "endpoints"),
	"Service":               coreKind("Service", "services"),
	"PodTemplate":           coreKind("PodTemplate", "podtemplates"),
	"Pod":                   coreKind("Pod", "pods"),
	"ReplicationController": coreKind("ReplicationController", "replicationcontrollers"),
	"ControllerRevision":    appsKind("ControllerRevision", "controllerrevisions"),
	"DaemonSet":             appsKind("DaemonSet", "daemonsets"),
	"ReplicaSet":            appsKind("ReplicaSet", "replicasets"),
	"StatefulSet":           appsKind("StatefulSet", "statefulsets"),
	"Deployment":            appsKind("Deployment", "deployments"),

	// captured for inspection, never restored
	"Event":                 coreKind("Event", "events"),
	"PersistentVolumeClaim": coreKind("PersistentVolumeClaim", "persistentvolumeclaims"),
	"ServiceAccount":        coreKind("ServiceAccount", "serviceaccounts"),
}

// Objects of an earlier kind are created before any object of a later kind
// in the same namespace.
var restoreOrder = []string{
	"LimitRange",
	"ResourceQuota",
	"ConfigMap",
	"Secret",
	"Endpoints",
	"Service",
	"PodTemplate",
	"Pod",
	"ReplicationController",
	"ControllerRevision",
	"DaemonSet",
	"ReplicaSet",
	"StatefulSet",
	"Deployment",
}

var orderIndex = func() map[string]int {
	m := make(map[string]int, len(restoreOrder))
	for i, name := range restoreOrder {
		m[name] = i
	}
	return m
}()

// Resolve returns the registered Kind for name.
func Resolve(name string) (Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return Kind{}, &UnknownKindError{Kind: name}
	}
	return k, nil
}

// Kinds returns every registered kind sorted by name.
func Kinds() []Kind {
	names := sets.NewString()
	for name := range kinds {
		names.Insert(name)
	}
	out := make([]Kind, 0, names.Len())
	for _, name := range names.List() {
		out = append(out, kinds[name])
	}
	return out
}

// RestoreOrder returns the restorable kinds in dependency order.
func RestoreOrder() []Kind {
	out := make([]Kind, 0, len(restoreOrder))
	for _, name := range restoreOrder {
		out = append(out, kinds[name])
	}
	return out
}

func IsRestorable(name string) bool {
	_, ok := orderIndex[name]
	return ok
}

// OrderIndex returns the position of name in the restore order, or -1.
func OrderIndex(name string) int {
	if i, ok := orderIndex[name]; ok {
		return i
	}
	return -1
}

// SortByRestoreOrder sorts kind names in place. Kinds outside the restore
// order go last, by name.
func SortByRestoreOrder(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := OrderIndex(names[i]), OrderIndex(names[j])
		switch {
		case a >= 0 && b >= 0:
			return a < b
		case a >= 0:
			return true
		case b >= 0:
			return false
		default:
			return names[i] < names[j]
		}
	})
}
