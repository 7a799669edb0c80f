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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stash.appscode.dev/kubedr/pkg/store"

	"github.com/google/go-cmp/cmp"
)

func execute(args ...string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.Execute()
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "backup without namespaces",
			args:    []string{"backup", "--cluster-name", "prod"},
			wantErr: "exactly one of",
		},
		{
			name:    "backup with namespaces and all namespaces",
			args:    []string{"backup", "--cluster-name", "prod", "-n", "demo", "--all-namespaces"},
			wantErr: "exactly one of",
		},
		{
			name:    "restore with unknown strategy",
			args:    []string{"restore", "--cluster-name", "prod", "--strategy", "helm"},
			wantErr: "unknown strategy",
		},
		{
			name:    "restore with missing exclusions file",
			args:    []string{"restore", "--cluster-name", "prod", "--exclusions", "/nonexistent/exclusions.yaml"},
			wantErr: "exclusion rules",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

// restoreFixture stores records for the namespaces demo and other and
// writes a kubectl stand-in that appends its arguments to argsFile.
type restoreFixture struct {
	records, workDir, argsFile, kubectl string
}

func newRestoreFixture(t *testing.T) restoreFixture {
	t.Helper()
	dir := t.TempDir()
	f := restoreFixture{
		records:  filepath.Join(dir, "records"),
		workDir:  filepath.Join(dir, "manifests"),
		argsFile: filepath.Join(dir, "args"),
		kubectl:  filepath.Join(dir, "kubectl"),
	}
	if err := os.WriteFile(f.kubectl, []byte("#!/bin/sh\necho \"$@\" >> "+f.argsFile+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	st := store.NewDirectory(f.records)
	for key, doc := range map[string]string{
		"prod/demo/Deployment/web": "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: web\n",
		"prod/demo/ConfigMap/conf": "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: conf\ndata:\n  a: b\n",
		"prod/other/ConfigMap/x":   "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: x\n",
	} {
		if err := st.Put(context.Background(), key, []byte(doc)); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f restoreFixture) args(t *testing.T) string {
	t.Helper()
	args, err := os.ReadFile(f.argsFile)
	if err != nil {
		t.Fatal(err)
	}
	return string(args)
}

func TestRestoreWithKubectl(t *testing.T) {
	f := newRestoreFixture(t)

	err := execute("restore",
		"--cluster-name", "prod",
		"--local-dir", f.records,
		"--namespace", "demo",
		"--strategy", "kubectl",
		"--kubectl", f.kubectl,
		"--work-dir", f.workDir,
		"--dry-run",
	)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	manifest, err := os.ReadFile(filepath.Join(f.workDir, "demo.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cm := strings.Index(string(manifest), "kind: ConfigMap")
	deploy := strings.Index(string(manifest), "kind: Deployment")
	if cm < 0 || deploy < 0 || cm > deploy {
		t.Errorf("manifest does not list the ConfigMap before the Deployment:\n%s", manifest)
	}
	if !strings.Contains(string(manifest), "namespace: demo") {
		t.Errorf("manifest objects are not placed in demo:\n%s", manifest)
	}
	if _, err := os.Stat(filepath.Join(f.workDir, "other.yaml")); !os.IsNotExist(err) {
		t.Error("namespace other was restored")
	}
	if args := f.args(t); !strings.Contains(args, "--dry-run=client") {
		t.Errorf("kubectl args = %q, want a client dry run", args)
	}
}

func TestRestoreFlagsFromEnvironment(t *testing.T) {
	f := newRestoreFixture(t)
	t.Setenv("DR_CLUSTERNAME", "prod")
	t.Setenv("DR_LOCAL_DIR", f.records)
	t.Setenv("DR_RESTORE_STRATEGY", "kubectl")
	t.Setenv("DR_KUBECTL", f.kubectl)
	t.Setenv("DR_WORK_DIR", f.workDir)
	t.Setenv("DR_RESTORE_DRY_RUN", "true")
	// the command line wins over the environment
	t.Setenv("DR_NAMESPACE", "other")

	if err := execute("restore", "--namespace", "demo"); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.workDir, "demo.yaml")); err != nil {
		t.Errorf("namespace demo was not restored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.workDir, "other.yaml")); !os.IsNotExist(err) {
		t.Error("namespace other was restored")
	}
	if args := f.args(t); !strings.Contains(args, "--dry-run=client") {
		t.Errorf("kubectl args = %q, want a client dry run", args)
	}
}

func TestInvalidEnvironmentValue(t *testing.T) {
	t.Setenv("DR_CLUSTER_NAME", "prod")
	t.Setenv("DR_RESTORE_WORKERS", "many")

	err := execute("restore")
	if err == nil || !strings.Contains(err.Error(), "DR_RESTORE_WORKERS") {
		t.Errorf("Execute() error = %v, want the offending variable named", err)
	}
}

func TestEnvNames(t *testing.T) {
	tests := []struct {
		cmd, flag string
		want      []string
	}{
		{"restore", "dry-run", []string{"restore_dry-run", "dry-run", "restore_dryrun", "dryrun"}},
		{"backup", "bucket", []string{"backup_bucket", "bucket"}},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, envNames(tt.cmd, tt.flag)); diff != "" {
				t.Errorf("envNames() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
