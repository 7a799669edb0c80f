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

package sanitizers

import (
	"gomodules.xyz/sets"
)

// removed from every mapping, at any depth
var serverFields = sets.NewString(
	"resourceVersion",
	"uid",
	"selfLink",
)

// removed from every metadata mapping, at any depth
var metadataFields = sets.NewString(
	"clusterName",
	"creationTimestamp",
	"deletionGracePeriodSeconds",
	"deletionTimestamp",
	"finalizers",
	"generateName",
	"generation",
	"initializers",
	"managedFields",
	"ownerReferences",
)

var decoratorAnnotations = sets.NewString(
	"controller-uid",
	"deployment.kubernetes.io/desired-replicas",
	"deployment.kubernetes.io/max-replicas",
	"deployment.kubernetes.io/revision",
	"kubectl.kubernetes.io/last-applied-configuration",
	"pod-template-hash",
	"pv.kubernetes.io/bind-completed",
	"pv.kubernetes.io/bound-by-controller",
)

type metadataSanitizer struct{}

func newMetadataSanitizer() Sanitizer {
	return metadataSanitizer{}
}

// Sanitize returns a copy of in without server assigned fields. in is left
// untouched.
func (s metadataSanitizer) Sanitize(in map[string]interface{}) (map[string]interface{}, error) {
	return cleanUpMap(in), nil
}

func cleanUpMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if serverFields.Has(k) {
			continue
		}
		if k == "metadata" {
			if meta, ok := v.(map[string]interface{}); ok {
				out[k] = cleanUpObjectMeta(meta)
				continue
			}
		}
		out[k] = cleanUpValue(v)
	}
	return out
}

func cleanUpObjectMeta(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if serverFields.Has(k) || metadataFields.Has(k) {
			continue
		}
		if k == "annotations" {
			out[k] = cleanUpAnnotations(v)
			continue
		}
		out[k] = cleanUpValue(v)
	}
	return out
}

func cleanUpValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cleanUpMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cleanUpValue(t[i])
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	default:
		return v
	}
}

func cleanUpAnnotations(in interface{}) interface{} {
	switch m := in.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			if !decoratorAnnotations.Has(k) {
				out[k] = v
			}
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, v := range m {
			if !decoratorAnnotations.Has(k) {
				out[k] = v
			}
		}
		return out
	default:
		return in
	}
}
