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

package cluster

import (
	"context"
	"time"

	"stash.appscode.dev/kubedr/pkg/registry"

	"github.com/juju/clock"
	jujuretry "github.com/juju/retry"
	"github.com/pkg/errors"
	kerr "k8s.io/apimachinery/pkg/api/errors"
)

var errExists = errors.New("exists")

// WaitUntilGone polls until name is no longer found. Deletion is
// asynchronous for objects with finalizers or graceful termination, and a
// create issued before it completes fails with AlreadyExists.
func WaitUntilGone(ctx context.Context, c Interface, namespace string, kind registry.Kind, name string, delay, timeout time.Duration) error {
	err := jujuretry.Call(jujuretry.CallArgs{
		Clock: clock.WallClock,
		Func: func() error {
			_, err := c.Get(ctx, namespace, kind, name)
			if err == nil {
				return errExists
			}
			if kerr.IsNotFound(err) {
				return nil
			}
			return err
		},
		IsFatalError: func(err error) bool {
			return err != errExists
		},
		Delay:       delay,
		MaxDuration: timeout,
		Stop:        ctx.Done(),
	})
	if jujuretry.IsDurationExceeded(err) {
		return errors.Errorf("%s %s/%s still exists after %s", kind.Name, namespace, name, timeout)
	}
	if jujuretry.IsRetryStopped(err) {
		return ctx.Err()
	}
	return err
}
