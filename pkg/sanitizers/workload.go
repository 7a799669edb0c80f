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

import "fmt"

type workloadSanitizer struct{}

func newWorkloadSanitizer() Sanitizer {
	return workloadSanitizer{}
}

func (s workloadSanitizer) Sanitize(in map[string]interface{}) (map[string]interface{}, error) {
	ds := newDefaultSanitizer()
	in, err := ds.Sanitize(in)
	if err != nil {
		return nil, err
	}

	v, ok := in["spec"]
	if !ok {
		return in, nil
	}
	spec, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unable to parse workload spec")
	}
	if err := cleanUpTemplate(spec, "template"); err != nil {
		return nil, err
	}
	return in, nil
}

type podTemplateSanitizer struct{}

func newPodTemplateSanitizer() Sanitizer {
	return podTemplateSanitizer{}
}

func (s podTemplateSanitizer) Sanitize(in map[string]interface{}) (map[string]interface{}, error) {
	ds := newDefaultSanitizer()
	in, err := ds.Sanitize(in)
	if err != nil {
		return nil, err
	}
	if err := cleanUpTemplate(in, "template"); err != nil {
		return nil, err
	}
	return in, nil
}

func cleanUpTemplate(parent map[string]interface{}, field string) error {
	v, ok := parent[field]
	if !ok {
		return nil
	}
	template, ok := v.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unable to parse pod template")
	}
	spec, ok := template["spec"].(map[string]interface{})
	if !ok {
		return nil
	}
	cleanUpPodSpec(spec)
	return nil
}
