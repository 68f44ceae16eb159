package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "padcheck_runs_total",
		Help: "Total number of layout round-trips by backend and result",
	}, []string{"backend", "result"})

	MismatchedElements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "padcheck_mismatched_elements_total",
		Help: "Total number of float slots whose read-back differed from the prediction",
	})

	GuardSlots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "padcheck_guard_slots_total",
		Help: "Float slots still holding the guard pattern after read-back",
	}, []string{"kind"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "padcheck_phase_duration_seconds",
		Help:    "Duration of each round-trip phase",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	BufferBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "padcheck_buffer_bytes",
		Help: "Size of the buffers allocated for the last round-trip",
	}, []string{"buffer"})

	BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "padcheck_backend_errors_total",
		Help: "Backend failures by phase",
	}, []string{"phase"})
)

const (
	ResultPass     = "pass"
	ResultMismatch = "mismatch"
	ResultError    = "error"
)

func RecordRun(backend, result string) {
	Runs.WithLabelValues(backend, result).Inc()
}

func RecordMismatches(n int) {
	if n > 0 {
		MismatchedElements.Add(float64(n))
	}
}

// RecordGuards splits surviving guard slots into expected padding and
// unexpected data slots.
func RecordGuards(padding, data int) {
	GuardSlots.WithLabelValues("padding").Add(float64(padding))
	GuardSlots.WithLabelValues("data").Add(float64(data))
}

func RecordPhase(phase string, d time.Duration) {
	PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func RecordBuffer(name string, bytes int) {
	BufferBytes.WithLabelValues(name).Set(float64(bytes))
}

func RecordBackendError(phase string) {
	BackendErrors.WithLabelValues(phase).Inc()
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// format, for one-shot runs that exit before any scrape.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
