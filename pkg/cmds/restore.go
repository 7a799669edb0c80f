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

package cmds

import (
	"time"

	"stash.appscode.dev/kubedr/pkg/cluster"
	"stash.appscode.dev/kubedr/pkg/manager"
	"stash.appscode.dev/kubedr/pkg/retry"
	"stash.appscode.dev/kubedr/pkg/sink"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gomodules.xyz/flags"
	"k8s.io/klog/v2"
)

const (
	StrategyCluster = "cluster"
	StrategyKubectl = "kubectl"
)

type restoreOptions struct {
	namespace     string
	dryRun        bool
	strategy      string
	kubectl       string
	kubeContext   string
	workDir       string
	exclusions    string
	workers       int
	deleteTimeout time.Duration
}

func NewCmdRestore(g *globalOptions) *cobra.Command {
	opt := restoreOptions{
		namespace:     manager.AllNamespaces,
		strategy:      StrategyCluster,
		kubectl:       sink.KubectlCMD,
		workDir:       "/tmp/kubedr",
		workers:       1,
		deleteTimeout: sink.DefaultDeleteTimeout,
	}
	cmd := &cobra.Command{
		Use:               "restore",
		Short:             "Apply stored objects to the cluster in dependency order",
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.EnsureRequiredFlags(cmd, "cluster-name")
			if opt.strategy != StrategyCluster && opt.strategy != StrategyKubectl {
				return errors.Errorf("unknown strategy %q, use %s or %s", opt.strategy, StrategyCluster, StrategyKubectl)
			}
			return runRestore(g, opt)
		},
	}
	cmd.Flags().StringVarP(&opt.namespace, "namespace", "n", opt.namespace, "Glob selecting the namespaces to restore")
	cmd.Flags().BoolVar(&opt.dryRun, "dry-run", opt.dryRun, "Validate the objects without changing the cluster")
	cmd.Flags().StringVar(&opt.strategy, "strategy", opt.strategy, "How objects are applied: cluster (delete then create) or kubectl (kubectl apply)")
	cmd.Flags().StringVar(&opt.kubectl, "kubectl", opt.kubectl, "Path to kubectl, used by the kubectl strategy")
	cmd.Flags().StringVar(&opt.kubeContext, "kube-context", opt.kubeContext, "kubeconfig context passed to kubectl")
	cmd.Flags().StringVar(&opt.workDir, "work-dir", opt.workDir, "Directory for the manifests of the kubectl strategy")
	cmd.Flags().StringVar(&opt.exclusions, "exclusions", opt.exclusions, "YAML file with exclusion rules added to the defaults")
	cmd.Flags().IntVar(&opt.workers, "workers", opt.workers, "Objects of one kind applied at a time")
	cmd.Flags().DurationVar(&opt.deleteTimeout, "delete-timeout", opt.deleteTimeout, "How long to wait for a replaced object to be deleted")
	return cmd
}

func (opt restoreOptions) sinkFactory(client cluster.Interface, exec *retry.Executor) manager.SinkFactory {
	return func(dryRun bool) sink.Interface {
		if opt.strategy == StrategyKubectl {
			return sink.NewKubectl(sink.KubectlOptions{
				Path:    opt.kubectl,
				Dir:     opt.workDir,
				Context: opt.kubeContext,
				DryRun:  dryRun,
				Log:     klog.NewKlogr().WithName("kubectl"),
			})
		}
		return sink.NewCluster(client, exec, sink.ClusterOptions{
			DryRun:        dryRun,
			DeleteTimeout: opt.deleteTimeout,
			Log:           klog.NewKlogr().WithName("sink"),
		})
	}
}

func runRestore(g *globalOptions, opt restoreOptions) error {
	ctx, cancel := signalContext()
	defer cancel()
	defer g.pushMetrics("kubedr_restore")

	exclusions, err := manager.LoadExclusionRules(opt.exclusions)
	if err != nil {
		return err
	}
	for _, r := range exclusions.Rules() {
		klog.V(2).Infof("Excluding %s", r)
	}

	var client cluster.Interface
	if opt.strategy == StrategyCluster {
		config, err := g.restConfig()
		if err != nil {
			return errors.Wrap(err, "failed to build kube config")
		}
		if client, err = cluster.NewForConfig(config); err != nil {
			return err
		}
	}
	storage, err := g.storage(ctx)
	if err != nil {
		return err
	}

	exec := g.executor()
	mgr, err := manager.NewRestoreManager(manager.RestoreOptions{
		Storage:    storage,
		NewSink:    opt.sinkFactory(client, exec),
		Executor:   exec,
		Bucket:     g.bucket,
		Exclusions: exclusions,
		Workers:    opt.workers,
		Log:        klog.NewKlogr().WithName("restore"),
	})
	if err != nil {
		return err
	}

	summaries, err := mgr.RestoreNamespaces(ctx, manager.RestoreRequest{
		ClusterSet:       g.bucket,
		ClusterName:      g.clusterName,
		NamespacePattern: opt.namespace,
		DryRun:           opt.dryRun,
	})
	for _, s := range summaries {
		klog.Infof("Namespace %s: %d applied, %d skipped, %d failed", s.Namespace, len(s.Succeeded), len(s.Skipped), len(s.Failures))
	}
	return err
}
