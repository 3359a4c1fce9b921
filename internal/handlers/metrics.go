package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"site-mass-upload/internal/models"
)

// UploadMetrics holds the Prometheus collectors for the mass-upload API
type UploadMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	parsedRows    *prometheus.CounterVec
	importedRows  *prometheus.CounterVec
	revalidations *prometheus.CounterVec
}

// NewUploadMetrics registers the mass-upload collectors on registry
func NewUploadMetrics(registry *prometheus.Registry) *UploadMetrics {
	factory := promauto.With(registry)

	return &UploadMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mass_upload",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of mass-upload API requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mass_upload",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency distribution for mass-upload API requests.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"endpoint"}),
		parsedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mass_upload",
			Name:      "parsed_rows_total",
			Help:      "Rows parsed for preview by entity and status.",
		}, []string{"entity", "status"}),
		importedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mass_upload",
			Name:      "import_rows_total",
			Help:      "Submitted rows by entity and disposition.",
		}, []string{"entity", "disposition"}),
		revalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mass_upload",
			Name:      "lookup_errors_total",
			Help:      "Reference lookups that did not resolve during revalidation.",
		}, []string{"entity"}),
	}
}

// ObserveParse counts the rows of a preview by status
func (m *UploadMetrics) ObserveParse(res *models.ParseResult) {
	if m == nil || res == nil {
		return
	}
	m.parsedRows.WithLabelValues(res.Entity, string(models.RowStatusValid)).Add(float64(res.ValidRows))
	m.parsedRows.WithLabelValues(res.Entity, string(models.RowStatusWarning)).Add(float64(res.WarningRows))
	m.parsedRows.WithLabelValues(res.Entity, string(models.RowStatusError)).Add(float64(res.ErrorRows))
	m.parsedRows.WithLabelValues(res.Entity, "skipped").Add(float64(res.SkippedRows))
}

// ObserveImport counts submitted rows by disposition
func (m *UploadMetrics) ObserveImport(entity string, summary models.ImportSummary) {
	if m == nil {
		return
	}
	m.importedRows.WithLabelValues(entity, "inserted").Add(float64(summary.Inserted))
	m.importedRows.WithLabelValues(entity, "updated").Add(float64(summary.Updated))
	m.importedRows.WithLabelValues(entity, "skipped").Add(float64(summary.Skipped))
	m.importedRows.WithLabelValues(entity, "error").Add(float64(summary.Errors))
}

// ObserveLookupErrors counts unresolved references
func (m *UploadMetrics) ObserveLookupErrors(entity string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.revalidations.WithLabelValues(entity).Add(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Instrument wraps a handler with request and latency collectors
func (m *UploadMetrics) Instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(context.WithValue(r.Context(), endpointKey{}, endpoint))
		if m == nil {
			next(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		m.requests.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		m.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type endpointKey struct{}

// endpointFrom returns the endpoint label set by Instrument
func endpointFrom(ctx context.Context) string {
	endpoint, _ := ctx.Value(endpointKey{}).(string)
	return endpoint
}
