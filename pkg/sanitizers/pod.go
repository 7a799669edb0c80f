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
	"fmt"
	"strings"

	"gomodules.xyz/sets"
)

type podSanitizer struct{}

func newPodSanitizer() Sanitizer {
	return podSanitizer{}
}

func (s podSanitizer) Sanitize(in map[string]interface{}) (map[string]interface{}, error) {
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
		return nil, fmt.Errorf("unable to parse pod spec")
	}
	cleanUpPodSpec(spec)
	return in, nil
}

// cleanUpPodSpec drops the node binding and the token volume the service
// account admission plugin injects. The target cluster issues its own token.
func cleanUpPodSpec(spec map[string]interface{}) {
	delete(spec, "nodeName")

	sa, _ := spec["serviceAccountName"].(string)
	if sa == "" {
		sa = "default"
	}
	tokenPrefix := sa + "-token-"

	volumes, ok := spec["volumes"].([]interface{})
	if !ok {
		return
	}
	removed := sets.NewString()
	kept := make([]interface{}, 0, len(volumes))
	for _, v := range volumes {
		vol, ok := v.(map[string]interface{})
		if ok {
			secret, _ := vol["secret"].(map[string]interface{})
			secretName, _ := secret["secretName"].(string)
			if strings.HasPrefix(secretName, tokenPrefix) {
				name, _ := vol["name"].(string)
				removed.Insert(name)
				continue
			}
		}
		kept = append(kept, v)
	}
	if removed.Len() == 0 {
		return
	}
	if len(kept) == 0 {
		delete(spec, "volumes")
	} else {
		spec["volumes"] = kept
	}
	for _, field := range []string{"initContainers", "containers", "ephemeralContainers"} {
		containers, ok := spec[field].([]interface{})
		if !ok {
			continue
		}
		for _, c := range containers {
			container, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			cleanUpVolumeMounts(container, removed)
		}
	}
}

func cleanUpVolumeMounts(container map[string]interface{}, removed sets.String) {
	mounts, ok := container["volumeMounts"].([]interface{})
	if !ok {
		return
	}
	kept := make([]interface{}, 0, len(mounts))
	for _, m := range mounts {
		mount, ok := m.(map[string]interface{})
		if ok {
			if name, _ := mount["name"].(string); removed.Has(name) {
				continue
			}
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		delete(container, "volumeMounts")
		return
	}
	container["volumeMounts"] = kept
}
