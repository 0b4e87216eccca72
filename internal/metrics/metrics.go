// Package metrics exports streaming counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/srg/tsamp/internal/groutine"
	"github.com/srg/tsamp/internal/streaming"
	"github.com/srg/tsamp/pkg/telux"
)

// StreamMetrics counts stream requests per stream name. It implements streaming.Observer.
type StreamMetrics struct {
	registry *prometheus.Registry

	issuedTotal    *prometheus.CounterVec
	bytesTotal     *prometheus.CounterVec
	completedTotal *prometheus.CounterVec
	shortTotal     *prometheus.CounterVec
	shortfallBytes *prometheus.CounterVec
	timeoutsTotal  *prometheus.CounterVec
	inFlight       *prometheus.GaugeVec
}

var _ streaming.Observer = (*StreamMetrics)(nil)

// New creates the metrics on a private registry.
func New() (*StreamMetrics, error) {
	m := &StreamMetrics{
		registry: prometheus.NewRegistry(),
		issuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsamp_stream_buffers_issued_total",
			Help: "Total number of read or write requests issued",
		}, []string{"stream"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsamp_stream_bytes_total",
			Help: "Total number of bytes transferred by completed requests",
		}, []string{"stream"}),
		completedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsamp_stream_completions_total",
			Help: "Total number of completed requests by error code",
		}, []string{"stream", "code"}),
		shortTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsamp_stream_short_transfers_total",
			Help: "Total number of requests that transferred fewer bytes than asked",
		}, []string{"stream"}),
		shortfallBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsamp_stream_shortfall_bytes_total",
			Help: "Total number of bytes missing from short transfers",
		}, []string{"stream"}),
		timeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsamp_stream_timeouts_total",
			Help: "Total number of waits for a free buffer or readiness that timed out",
		}, []string{"stream"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tsamp_stream_in_flight",
			Help: "Requests issued and not yet completed",
		}, []string{"stream"}),
	}
	if err := m.registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register stream metrics: %w", err)
	}
	return m, nil
}

func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.issuedTotal.Describe(ch)
	m.bytesTotal.Describe(ch)
	m.completedTotal.Describe(ch)
	m.shortTotal.Describe(ch)
	m.shortfallBytes.Describe(ch)
	m.timeoutsTotal.Describe(ch)
	m.inFlight.Describe(ch)
}

func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.issuedTotal.Collect(ch)
	m.bytesTotal.Collect(ch)
	m.completedTotal.Collect(ch)
	m.shortTotal.Collect(ch)
	m.shortfallBytes.Collect(ch)
	m.timeoutsTotal.Collect(ch)
	m.inFlight.Collect(ch)
}

func (m *StreamMetrics) OnIssue(stream string, _ int) {
	m.issuedTotal.WithLabelValues(stream).Inc()
	m.inFlight.WithLabelValues(stream).Inc()
}

func (m *StreamMetrics) OnComplete(stream string, bytes int, code telux.ErrorCode) {
	m.inFlight.WithLabelValues(stream).Dec()
	m.completedTotal.WithLabelValues(stream, code.String()).Inc()
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(stream).Add(float64(bytes))
	}
}

func (m *StreamMetrics) OnShortTransfer(stream string, shortfall int) {
	m.shortTotal.WithLabelValues(stream).Inc()
	m.shortfallBytes.WithLabelValues(stream).Add(float64(shortfall))
}

func (m *StreamMetrics) OnTimeout(stream string) {
	m.timeoutsTotal.WithLabelValues(stream).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *StreamMetrics) Handler(logger *logrus.Logger) http.Handler {
	opts := promhttp.HandlerOpts{ErrorHandling: promhttp.HTTPErrorOnError}
	if logger != nil {
		opts.ErrorLog = logger
	}
	return promhttp.HandlerFor(m.registry, opts)
}

// Serve exposes /metrics on addr until ctx is done. It returns the bound address once
// listening, so ":0" can be used.
func (m *StreamMetrics) Serve(ctx context.Context, addr string, logger *logrus.Logger) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler(logger))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan error, 1)
	groutine.Go(ctx, "metrics-http", func(ctx context.Context) {
		errc := make(chan error, 1)
		go func() { errc <- srv.Serve(ln) }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			<-errc
			done <- err
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			done <- err
		}
	})

	if logger != nil {
		logger.WithField("addr", ln.Addr().String()).Info("Serving metrics")
	}
	return ln.Addr(), done, nil
}
