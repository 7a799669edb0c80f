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
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"stash.appscode.dev/kubedr/pkg/metrics"
	"stash.appscode.dev/kubedr/pkg/retry"
	"stash.appscode.dev/kubedr/pkg/store"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gomodules.xyz/flags"
	v "gomodules.xyz/x/version"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

type globalOptions struct {
	kubeconfig     string
	master         string
	bucket         string
	clusterName    string
	s3Endpoint     string
	s3Region       string
	s3PathStyle    bool
	localDir       string
	maxAttempts    int
	pushgatewayURL string
}

func (o *globalOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.kubeconfig, "kubeconfig", o.kubeconfig, "Path to kubeconfig file with authorization information (the master location is set by the master flag).")
	fs.StringVar(&o.master, "master", o.master, "The address of the Kubernetes API server (overrides any value in kubeconfig)")
	fs.StringVar(&o.bucket, "bucket", o.bucket, "Object store bucket holding the backups of the cluster set")
	fs.StringVar(&o.clusterName, "cluster-name", o.clusterName, "Name of the cluster the records belong to")
	fs.StringVar(&o.s3Endpoint, "s3-endpoint", o.s3Endpoint, "S3 compatible endpoint, e.g. a MinIO server. Defaults to AWS.")
	fs.StringVar(&o.s3Region, "s3-region", o.s3Region, "Region of the bucket")
	fs.BoolVar(&o.s3PathStyle, "s3-path-style", o.s3PathStyle, "Use path style addressing for the bucket")
	fs.StringVar(&o.localDir, "local-dir", o.localDir, "Keep records in this directory instead of an object store")
	fs.IntVar(&o.maxAttempts, "max-attempts", o.maxAttempts, "Attempts made for each call to the cluster or the object store")
	fs.StringVar(&o.pushgatewayURL, "pushgateway-url", o.pushgatewayURL, "Push run metrics to this Prometheus Pushgateway")
}

func (o *globalOptions) restConfig() (*rest.Config, error) {
	return clientcmd.BuildConfigFromFlags(o.master, o.kubeconfig)
}

func (o *globalOptions) storage(ctx context.Context) (store.Interface, error) {
	if o.localDir != "" {
		klog.Infof("Using records in directory %s", o.localDir)
		return store.NewDirectory(o.localDir), nil
	}
	return store.NewS3FromEnv(ctx, store.S3Options{
		Bucket:    o.bucket,
		Region:    o.s3Region,
		Endpoint:  o.s3Endpoint,
		PathStyle: o.s3PathStyle,
	})
}

func (o *globalOptions) executor() *retry.Executor {
	exec := retry.NewExecutor(o.maxAttempts)
	exec.Log = klog.NewKlogr().WithName("retry")
	return exec
}

func (o *globalOptions) pushMetrics(job string) {
	if o.pushgatewayURL == "" {
		return
	}
	if err := metrics.Push(o.pushgatewayURL, job); err != nil {
		klog.Errorf("Failed to push metrics to %s: %v", o.pushgatewayURL, err)
	}
}

// signalContext is cancelled on the first SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func NewRootCmd() *cobra.Command {
	opt := &globalOptions{
		maxAttempts: retry.DefaultBackoff.Steps,
	}
	rootCmd := &cobra.Command{
		Use:               "kubedr",
		Short:             "Back up and restore Kubernetes namespaces",
		DisableAutoGenTag: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if err := bindEnv(c); err != nil {
				return err
			}
			flags.PrintFlags(c.Flags())
			return nil
		},
	}
	opt.AddFlags(rootCmd.PersistentFlags())

	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(NewCmdBackup(opt))
	rootCmd.AddCommand(NewCmdRestore(opt))
	rootCmd.AddCommand(v.NewCmdVersion())
	return rootCmd
}
