// Package metrics exposes Prometheus counters and gauges for the session
// and transport layers. Rendering (progress bars, CLI output) stays
// external; these are the raw observability series a caller's renderer or
// a scrape target consumes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ymodem_frames_sent_total",
		Help: "Total YMODEM frames written to the transport.",
	})
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ymodem_frames_received_total",
		Help: "Total YMODEM frames validated by the receiver.",
	})
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ymodem_bytes_sent_total",
		Help: "Total file payload bytes written by the sender.",
	})
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ymodem_bytes_received_total",
		Help: "Total file payload bytes reassembled by the receiver.",
	})
	Retransmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ymodem_retransmissions_total",
		Help: "Total NAKs observed by the sender across all sessions.",
	})
	Cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ymodem_cancellations_total",
		Help: "Total sessions ended by a double-CAN cancellation.",
	})
	SessionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ymodem_sessions_in_flight",
		Help: "Number of sender/receiver sessions currently running.",
	})
	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ymodem_transport_errors_total",
		Help: "Permanent transport failures by transport kind.",
	}, []string{"transport"})
)

// Serve starts a Prometheus scrape endpoint at /metrics on addr. It never
// blocks; the caller decides whether and when to shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
