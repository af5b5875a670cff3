// Package metrics records batch metrics on a per-batch registry and writes
// them as a node-exporter textfile when the batch ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gtp/internal/domain"
)

const MetricsNamespace = "gtp"

// Recorder holds a batch's metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	modulesTotal   *prometheus.CounterVec
	moduleDuration prometheus.Histogram
	slotWait       prometheus.Histogram
	rerunsTotal    prometheus.Counter
	batchExitCode  prometheus.Gauge
	slots          prometheus.Gauge
}

// NewRecorder creates a recorder on a fresh registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		modulesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "modules_total",
			Help:      "Modules finished, by result",
		}, []string{"result"}),
		moduleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "module_duration_seconds",
			Help:      "Wall-clock time of a module across all attempts",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		slotWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "slot_wait_seconds",
			Help:      "Time a dispatched module waited for a free GPU",
			Buckets:   prometheus.ExponentialBuckets(0.01, 10, 7),
		}),
		rerunsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "reruns_total",
			Help:      "Module attempts beyond the first",
		}),
		batchExitCode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "batch_exit_code",
			Help:      "Exit code of the batch",
		}),
		slots: f.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "slots",
			Help:      "GPU slots in the pool",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) SetSlots(n int) {
	if r == nil {
		return
	}
	r.slots.Set(float64(n))
}

func (r *Recorder) ObserveSlotWait(d time.Duration) {
	if r == nil {
		return
	}
	r.slotWait.Observe(d.Seconds())
}

// RecordModule counts a finished or skipped module
func (r *Recorder) RecordModule(res domain.ModuleResult) {
	if r == nil {
		return
	}
	r.modulesTotal.WithLabelValues(string(res.Status)).Inc()
	if res.Status == domain.StatusSkipped {
		return
	}
	r.moduleDuration.Observe(res.Outcome.Duration.Seconds())
	if res.Outcome.Attempts > 1 {
		r.rerunsTotal.Add(float64(res.Outcome.Attempts - 1))
	}
}

func (r *Recorder) SetExitCode(code int) {
	if r == nil {
		return
	}
	r.batchExitCode.Set(float64(code))
}

// WriteTextfile writes every metric to path in the text exposition format
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
