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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"k8s.io/klog/v2"
)

const namespace = "kubedr"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Registry holds every kubedr collector. Runs are short lived, so metrics
// are pushed rather than scraped.
var Registry = prometheus.NewRegistry()

var (
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of calls to the cluster API and the object store.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "kind", "result"},
	)
	objectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_total",
			Help:      "Objects processed by the backup and restore engines.",
		},
		[]string{"engine", "result"},
	)
)

func init() {
	Registry.MustRegister(operationDuration, objectsTotal)
}

// Time runs fn and records how long it took.
func Time(op, kind string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	operationDuration.WithLabelValues(op, kind, result).Observe(elapsed.Seconds())
	klog.V(4).InfoS("Timed operation", "operation", op, "kind", kind, "duration", elapsed, "result", result)
	return err
}

// ObjectsProcessed adds n objects with the same result.
func ObjectsProcessed(engine, result string, n int) {
	if n > 0 {
		objectsTotal.WithLabelValues(engine, result).Add(float64(n))
	}
}

// Push sends the current values to a Prometheus push gateway.
func Push(url, job string) error {
	return push.New(url, job).Gatherer(Registry).Push()
}
