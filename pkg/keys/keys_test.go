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

package keys

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, Delimiter, "")
		if s == "" {
			return "x"
		}
		return s
	}
	f := func(c, n, k, name string) bool {
		want := New(clean(c), clean(n), clean(k), clean(name))
		got, err := Parse(Encode(want.Cluster, want.Namespace, want.Kind, want.Name))
		return err == nil && got == want
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr bool
	}{
		{in: "cluster1/default/ConfigMap/cm1", want: New("cluster1", "default", "ConfigMap", "cm1")},
		{in: "cluster1/default/ConfigMap", wantErr: true},
		{in: "cluster1/default/ConfigMap/cm1/extra", wantErr: true},
		{in: "cluster1//ConfigMap/cm1", wantErr: true},
		{in: "/default/ConfigMap/cm1", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var mke *MalformedKeyError
				if !errors.As(err, &mke) || !errors.Is(err, ErrMalformedKey) {
					t.Errorf("Parse() error = %#v, want MalformedKeyError", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := New("c", "ns", "Secret", "s").Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := New("c", "ns", "Secret", "a/b").Validate(); err == nil {
		t.Errorf("Validate() accepted a name with a delimiter")
	}
	if err := New("", "ns", "Secret", "s").Validate(); err == nil {
		t.Errorf("Validate() accepted an empty cluster")
	}
}

func TestPrefixes(t *testing.T) {
	k := New("c1", "ns", "Pod", "p")
	for _, p := range []string{ClusterPrefix("c1"), NamespacePrefix("c1", "ns"), KindPrefix("c1", "ns", "Pod")} {
		if !strings.HasPrefix(k.String(), p) {
			t.Errorf("%q is not a prefix of %q", p, k)
		}
	}
	if strings.HasPrefix(Encode("c1", "ns2", "Pod", "p"), NamespacePrefix("c1", "ns")) {
		t.Errorf("namespace prefix matches a longer namespace name")
	}
}
