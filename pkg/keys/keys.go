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

// Package keys encodes the object-store key of a backed up object:
//
//	<cluster>/<namespace>/<kind>/<name>
package keys

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const Delimiter = "/"

var ErrMalformedKey = errors.New("malformed key")

type MalformedKeyError struct {
	Key string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key %q: want cluster/namespace/kind/name", e.Key)
}

func (e *MalformedKeyError) Is(target error) bool {
	return target == ErrMalformedKey
}

type Key struct {
	Cluster   string
	Namespace string
	Kind      string
	Name      string
}

func New(cluster, namespace, kind, name string) Key {
	return Key{Cluster: cluster, Namespace: namespace, Kind: kind, Name: name}
}

func Encode(cluster, namespace, kind, name string) string {
	return New(cluster, namespace, kind, name).String()
}

func (k Key) String() string {
	return strings.Join([]string{k.Cluster, k.Namespace, k.Kind, k.Name}, Delimiter)
}

// Validate reports whether k survives a String/Parse round trip.
func (k Key) Validate() error {
	for field, v := range map[string]string{
		"cluster":   k.Cluster,
		"namespace": k.Namespace,
		"kind":      k.Kind,
		"name":      k.Name,
	} {
		if v == "" {
			return errors.Errorf("key %s: empty %s", k, field)
		}
		if strings.Contains(v, Delimiter) {
			return errors.Errorf("key %s: %s %q contains %q", k, field, v, Delimiter)
		}
	}
	return nil
}

// Parse is the inverse of Key.String.
func Parse(s string) (Key, error) {
	fields := strings.Split(s, Delimiter)
	if len(fields) != 4 {
		return Key{}, &MalformedKeyError{Key: s}
	}
	for _, f := range fields {
		if f == "" {
			return Key{}, &MalformedKeyError{Key: s}
		}
	}
	return New(fields[0], fields[1], fields[2], fields[3]), nil
}

func ClusterPrefix(cluster string) string {
	return cluster + Delimiter
}

func NamespacePrefix(cluster, namespace string) string {
	return ClusterPrefix(cluster) + namespace + Delimiter
}

func KindPrefix(cluster, namespace, kind string) string {
	return NamespacePrefix(cluster, namespace) + kind + Delimiter
}
