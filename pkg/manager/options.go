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
	"strings"

	"stash.appscode.dev/kubedr/pkg/cluster"
	"stash.appscode.dev/kubedr/pkg/keys"
	"stash.appscode.dev/kubedr/pkg/retry"
	"stash.appscode.dev/kubedr/pkg/sink"
	"stash.appscode.dev/kubedr/pkg/store"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// DefaultExcludedNamespaces are skipped when every namespace is backed up.
var DefaultExcludedNamespaces = []string{
	"kube-system",
	"kube-public",
	"kube-node-lease",
	"istio-system",
}

type BackupOptions struct {
	Client   cluster.Interface
	Storage  store.Interface
	Executor *retry.Executor

	// ClusterName is the first field of every key written.
	ClusterName string
	// SkipSanitize stores objects exactly as the API server returns them.
	// Such records keep resourceVersion and uid and cannot be created again.
	SkipSanitize bool
	Selector     string
	PageSize     int64
	// Workers bounds the objects of one kind processed at a time.
	Workers           int
	ExcludeNamespaces []string
	// Log receives progress messages. The zero Logger discards them.
	Log logr.Logger
}

func (opt *BackupOptions) setDefaults() {
	if opt.Executor == nil {
		opt.Executor = retry.NewExecutor(0)
	}
	if opt.PageSize <= 0 {
		opt.PageSize = cluster.DefaultPageSize
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.ExcludeNamespaces == nil {
		opt.ExcludeNamespaces = DefaultExcludedNamespaces
	}
}

func (opt BackupOptions) Validate() error {
	var errs []error
	if opt.Client == nil {
		errs = append(errs, errors.New("cluster client is required"))
	}
	if opt.Storage == nil {
		errs = append(errs, errors.New("storage is required"))
	}
	if err := validateClusterName(opt.ClusterName); err != nil {
		errs = append(errs, err)
	}
	if opt.Workers < 0 {
		errs = append(errs, errors.Errorf("workers must not be negative, found %d", opt.Workers))
	}
	return utilerrors.NewAggregate(errs)
}

// SinkFactory returns the sink a restore run applies objects to.
type SinkFactory func(dryRun bool) sink.Interface

type RestoreOptions struct {
	Storage  store.Interface
	NewSink  SinkFactory
	Executor *retry.Executor

	// Bucket is the object store bucket Storage reads from. A restore request
	// naming a different cluster set is rejected.
	Bucket     string
	Exclusions *ExclusionRules
	Workers    int
	// Log receives progress messages. The zero Logger discards them.
	Log logr.Logger
}

func (opt *RestoreOptions) setDefaults() {
	if opt.Executor == nil {
		opt.Executor = retry.NewExecutor(0)
	}
	if opt.Exclusions == nil {
		opt.Exclusions = DefaultExclusionRules()
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
}

func (opt RestoreOptions) Validate() error {
	var errs []error
	if opt.Storage == nil {
		errs = append(errs, errors.New("storage is required"))
	}
	if opt.NewSink == nil {
		errs = append(errs, errors.New("sink is required"))
	}
	if opt.Workers < 0 {
		errs = append(errs, errors.Errorf("workers must not be negative, found %d", opt.Workers))
	}
	return utilerrors.NewAggregate(errs)
}

func validateClusterName(name string) error {
	if name == "" {
		return errors.New("cluster name is required")
	}
	if strings.Contains(name, keys.Delimiter) {
		return errors.Errorf("cluster name %q must not contain %q", name, keys.Delimiter)
	}
	return nil
}
