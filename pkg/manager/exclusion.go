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
	"os"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	"gomodules.xyz/sets"
	core "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

// Rule excludes a single object from restore.
type Rule struct {
	Namespace string `json:"namespace"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
}

func (r Rule) String() string {
	return r.Namespace + "/" + r.Kind + "/" + r.Name
}

// ExclusionConfig is the format of the file passed with --exclusions.
type ExclusionConfig struct {
	Exclude            []Rule   `json:"exclude,omitempty"`
	SecretNamePatterns []string `json:"secretNamePatterns,omitempty"`
}

// ExclusionRules decides which stored objects a restore leaves alone: the
// objects every cluster creates for itself, and the secrets that carry
// tokens of the source cluster.
type ExclusionRules struct {
	rules       map[Rule]bool
	secretNames []*regexp.Regexp
	secretTypes sets.String
}

var defaultExclusions = ExclusionConfig{
	Exclude: []Rule{
		{Namespace: core.NamespaceDefault, Kind: "Service", Name: "kubernetes"},
		{Namespace: core.NamespaceDefault, Kind: "Endpoints", Name: "kubernetes"},
	},
	SecretNamePatterns: []string{"^default-token-"},
}

func DefaultExclusionRules() *ExclusionRules {
	r := &ExclusionRules{
		rules:       map[Rule]bool{},
		secretTypes: sets.NewString(string(core.SecretTypeServiceAccountToken)),
	}
	if err := r.Merge(defaultExclusions); err != nil {
		panic(err)
	}
	return r
}

// LoadExclusionRules merges the rules in file with the defaults.
func LoadExclusionRules(file string) (*ExclusionRules, error) {
	r := DefaultExclusionRules()
	if file == "" {
		return r, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read exclusion rules")
	}
	var cfg ExclusionConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse exclusion rules in %s", file)
	}
	if err := r.Merge(cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid exclusion rules in %s", file)
	}
	return r, nil
}

func (r *ExclusionRules) Merge(cfg ExclusionConfig) error {
	for _, rule := range cfg.Exclude {
		if rule.Namespace == "" || rule.Kind == "" || rule.Name == "" {
			return errors.Errorf("exclusion rule %s must set namespace, kind and name", rule)
		}
		r.rules[rule] = true
	}
	for _, p := range cfg.SecretNamePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return errors.Wrapf(err, "invalid secret name pattern %q", p)
		}
		r.secretNames = append(r.secretNames, re)
	}
	return nil
}

// Rules lists the exact exclusions, sorted.
func (r *ExclusionRules) Rules() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// ExcludesKey checks the rules that only need the identity of an object.
func (r *ExclusionRules) ExcludesKey(namespace, kind, name string) bool {
	if r.rules[Rule{Namespace: namespace, Kind: kind, Name: name}] {
		return true
	}
	if kind == "Secret" {
		for _, re := range r.secretNames {
			if re.MatchString(name) {
				return true
			}
		}
	}
	return false
}

// Excludes checks every rule against a decoded object.
func (r *ExclusionRules) Excludes(obj *unstructured.Unstructured) bool {
	if r.ExcludesKey(obj.GetNamespace(), obj.GetKind(), obj.GetName()) {
		return true
	}
	if obj.GetKind() == "Secret" {
		t, _, _ := unstructured.NestedString(obj.Object, "type")
		return r.secretTypes.Has(t)
	}
	return false
}
