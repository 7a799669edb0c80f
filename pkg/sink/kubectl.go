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

package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"stash.appscode.dev/kubedr/pkg/metrics"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	shell "gomodules.xyz/go-sh"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

const (
	KubectlCMD       = "kubectl"
	documentSep      = "---\n"
	manifestFileMode = 0o644
)

type KubectlOptions struct {
	// Path to the kubectl binary. Defaults to kubectl from PATH.
	Path string
	// Dir receives one manifest file per namespace.
	Dir     string
	Context string
	DryRun  bool
	Log     logr.Logger
}

// KubectlSink collects the objects of a namespace into a single manifest and
// hands it to kubectl apply on Commit. Documents keep the order in which
// they were applied.
type KubectlSink struct {
	opts KubectlOptions

	mu        sync.Mutex
	namespace string
	docs      [][]byte
}

var _ Interface = &KubectlSink{}

func NewKubectl(opts KubectlOptions) *KubectlSink {
	if opts.Path == "" {
		opts.Path = KubectlCMD
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	return &KubectlSink{opts: opts}
}

func (s *KubectlSink) Begin(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.opts.Dir, os.ModePerm); err != nil {
		return errors.Wrapf(err, "failed to create manifest dir %s", s.opts.Dir)
	}
	s.namespace = namespace
	s.docs = nil
	return nil
}

func (s *KubectlSink) Apply(_ context.Context, obj *unstructured.Unstructured) error {
	data, err := yaml.Marshal(obj.Object)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s %s", obj.GetKind(), obj.GetName())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, data)
	return nil
}

// ManifestPath returns the file written for namespace.
func (s *KubectlSink) ManifestPath(namespace string) string {
	return filepath.Join(s.opts.Dir, namespace+".yaml")
}

func (s *KubectlSink) Commit(_ context.Context) error {
	s.mu.Lock()
	namespace, docs := s.namespace, s.docs
	s.namespace, s.docs = "", nil
	s.mu.Unlock()

	if len(docs) == 0 {
		return nil
	}
	file := s.ManifestPath(namespace)
	if err := os.WriteFile(file, joinDocuments(docs), manifestFileMode); err != nil {
		return errors.Wrapf(err, "failed to write manifest %s", file)
	}

	return metrics.Time("apply", "", func() error {
		return s.run(file)
	})
}

func (s *KubectlSink) run(file string) error {
	args := []interface{}{"apply", "-f", file}
	if s.opts.Context != "" {
		args = append(args, "--context", s.opts.Context)
	}
	if s.opts.DryRun {
		args = append(args, "--dry-run=client")
	}

	session := shell.NewSession()
	session.ShowCMD = false
	out, err := session.Command(s.opts.Path, args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s apply -f %s failed: %s", s.opts.Path, file, strings.TrimSpace(string(out)))
	}
	s.opts.Log.V(2).Info("applied manifest", "file", file, "output", strings.TrimSpace(string(out)))
	return nil
}

func joinDocuments(docs [][]byte) []byte {
	var buf bytes.Buffer
	for i, doc := range docs {
		if i > 0 {
			buf.WriteString(documentSep)
		}
		buf.Write(doc)
		if len(doc) > 0 && doc[len(doc)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
