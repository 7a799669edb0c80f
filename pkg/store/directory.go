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

package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stash.appscode.dev/kubedr/pkg/retry"

	"github.com/pkg/errors"
)

const recordExt = ".yaml"

// directory keeps one file per record at <root>/<key>.yaml.
type directory struct {
	root string
}

func NewDirectory(root string) Interface {
	return directory{root: root}
}

func (d directory) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key)) + recordExt
}

func (d directory) Put(_ context.Context, key string, data []byte) error {
	path := d.path(key)
	err := os.MkdirAll(filepath.Dir(path), 0o777)
	if err != nil {
		return err
	}
	// write then rename so a reader never sees half a record
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (d directory) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, recordExt) {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), recordExt)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (d directory) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, retry.NewPermanent(errors.Wrap(ErrNotFound, key))
	}
	return data, err
}
