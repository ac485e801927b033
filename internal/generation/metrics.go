// internal/generation/metrics.go
package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"codeweave/internal/database"
	"codeweave/internal/parser"
	"codeweave/internal/versioning"
)

// Metrics holds the pipeline's Prometheus collectors
type Metrics struct {
	ParseTotal             *prometheus.CounterVec
	FilesMaterializedTotal *prometheus.CounterVec
	FilesSkippedTotal      prometheus.Counter
	ProjectVersionsTotal   *prometheus.CounterVec
	GenerationDuration     prometheus.Histogram
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ParseTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeweave_parse_total",
			Help: "Model replies parsed, by the stage that produced the result",
		}, []string{"stage"}),
		FilesMaterializedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeweave_files_materialized_total",
			Help: "File versions written, by operation",
		}, []string{"operation"}),
		FilesSkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeweave_files_skipped_total",
			Help: "File tree entries skipped for having an unusable shape",
		}),
		ProjectVersionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeweave_project_versions_total",
			Help: "Reconciliations, by outcome",
		}, []string{"result"}),
		GenerationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeweave_generation_duration_seconds",
			Help:    "Time spent handling one model reply, settle delay included",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveParse implements parser.Observer
func (m *Metrics) ObserveParse(stage parser.Stage) {
	m.ParseTotal.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) observeFile(fv *database.FileVersion) {
	op := versioning.OperationWrite
	if fv.IsDeleted {
		op = versioning.OperationDelete
	}
	m.FilesMaterializedTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) observeReconcile(outcome versioning.Outcome) {
	m.ProjectVersionsTotal.WithLabelValues(string(outcome)).Inc()
}
