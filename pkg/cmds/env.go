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
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// EnvPrefix prefixes the environment variables read for unset flags.
const EnvPrefix = "DR"

// envNames lists the variable keys for flag name of command cmd, most
// specific first: DR_RESTORE_DRY_RUN, DR_DRY_RUN, then the same without
// dashes (DR_RESTORE_CLUSTERNAME, DR_CLUSTERNAME).
func envNames(cmd, name string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range []string{name, strings.ReplaceAll(name, "-", "")} {
		for _, key := range []string{cmd + "_" + n, n} {
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	return out
}

// bindEnv fills every flag left unset on the command line from the
// environment. Flags given explicitly always win.
func bindEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "help" {
			return
		}
		for _, key := range envNames(cmd.Name(), f.Name) {
			if !v.IsSet(key) {
				continue
			}
			if err := cmd.Flags().Set(f.Name, v.GetString(key)); err != nil {
				errs = append(errs, errors.Wrapf(err, "invalid value for --%s from %s_%s", f.Name, EnvPrefix, strings.ToUpper(strings.NewReplacer("-", "_").Replace(key))))
			}
			return
		}
	})
	return utilerrors.NewAggregate(errs)
}
