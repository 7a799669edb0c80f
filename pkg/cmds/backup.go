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
	"stash.appscode.dev/kubedr/pkg/cluster"
	"stash.appscode.dev/kubedr/pkg/manager"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gomodules.xyz/flags"
	"k8s.io/klog/v2"
)

type backupOptions struct {
	namespaces        []string
	allNamespaces     bool
	excludeNamespaces []string
	workers           int
	pageSize          int64
	selector          string
	sanitize          bool
}

func NewCmdBackup(g *globalOptions) *cobra.Command {
	opt := backupOptions{
		workers:           1,
		pageSize:          cluster.DefaultPageSize,
		sanitize:          true,
		excludeNamespaces: manager.DefaultExcludedNamespaces,
	}
	cmd := &cobra.Command{
		Use:               "backup",
		Short:             "Store the objects of namespaces in the object store",
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.EnsureRequiredFlags(cmd, "cluster-name")
			if opt.allNamespaces == (len(opt.namespaces) > 0) {
				return errors.New("exactly one of --namespace or --all-namespaces is required")
			}
			return runBackup(g, opt)
		},
	}
	cmd.Flags().StringSliceVarP(&opt.namespaces, "namespace", "n", opt.namespaces, "Namespace to back up. May be repeated.")
	cmd.Flags().BoolVar(&opt.allNamespaces, "all-namespaces", opt.allNamespaces, "Back up every namespace except the excluded ones")
	cmd.Flags().StringSliceVar(&opt.excludeNamespaces, "exclude-namespace", opt.excludeNamespaces, "Namespace skipped by --all-namespaces")
	cmd.Flags().IntVar(&opt.workers, "workers", opt.workers, "Objects of one kind processed at a time")
	cmd.Flags().Int64Var(&opt.pageSize, "page-size", opt.pageSize, "Objects requested per list call")
	cmd.Flags().StringVarP(&opt.selector, "selector", "l", opt.selector, "Label selector for the objects to back up")
	cmd.Flags().BoolVar(&opt.sanitize, "sanitize", opt.sanitize, "Strip server assigned fields before storing")
	return cmd
}

func runBackup(g *globalOptions, opt backupOptions) error {
	ctx, cancel := signalContext()
	defer cancel()
	defer g.pushMetrics("kubedr_backup")

	config, err := g.restConfig()
	if err != nil {
		return errors.Wrap(err, "failed to build kube config")
	}
	client, err := cluster.NewForConfig(config)
	if err != nil {
		return err
	}
	storage, err := g.storage(ctx)
	if err != nil {
		return err
	}

	mgr, err := manager.NewBackupManager(manager.BackupOptions{
		Client:            client,
		Storage:           storage,
		Executor:          g.executor(),
		ClusterName:       g.clusterName,
		SkipSanitize:      !opt.sanitize,
		Selector:          opt.selector,
		PageSize:          opt.pageSize,
		Workers:           opt.workers,
		ExcludeNamespaces: opt.excludeNamespaces,
		Log:               klog.NewKlogr().WithName("backup"),
	})
	if err != nil {
		return err
	}

	var summaries []*manager.Summary
	if opt.allNamespaces {
		summaries, err = mgr.SaveAll(ctx)
	} else {
		summaries, err = mgr.SaveNamespaces(ctx, opt.namespaces)
	}
	for _, s := range summaries {
		klog.Infof("Namespace %s: %d stored, %d skipped, %d failed", s.Namespace, len(s.Succeeded), len(s.Skipped), len(s.Failures))
	}
	return err
}
