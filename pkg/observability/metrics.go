package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	billingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_operations_total",
		Help: "Billing operations by outcome.",
	}, []string{"operation", "status"})

	seatAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_assignments_total",
		Help: "Seat assignments by seat type and outcome.",
	}, []string{"seat_type", "result"})
)

// ObserveBillingOp records the outcome of a billing operation.
func ObserveBillingOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	billingOperations.WithLabelValues(operation, status).Inc()
}

// ObserveSeatAssignment counts a seat assignment attempt by outcome.
func ObserveSeatAssignment(seatType, result string) {
	seatAssignments.WithLabelValues(seatType, result).Inc()
}

// statusRecorder captures the response code for metric labels.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// NewMetricsMiddleware instruments HTTP handlers with request duration
// metrics. The route pattern, not the raw URL, is used as the path label.
func NewMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			httpRequestDuration.WithLabelValues(
				r.Method, path, strconv.Itoa(rec.status),
			).Observe(time.Since(start).Seconds())
		})
	}
}
