// Package metrics instruments the router daemon with Prometheus
// counters/gauges, following the nil-safe optional-recorder pattern the
// teacher codebase uses (pkg/metrics/prometheus/badger.go): every method
// is a no-op on a nil *Recorder, so callers never need to branch on
// whether metrics are enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the daemon's Prometheus collectors. A nil *Recorder is
// valid and every method on it is a no-op.
type Recorder struct {
	reg *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsLoggedOn prometheus.Gauge
	bytesRouted         prometheus.Counter
	messagesFannedOut   prometheus.Counter
	messagesQueued      prometheus.Counter
	messagesDropped     *prometheus.CounterVec
	messagesExpired     prometheus.Counter
	queueBytes          prometheus.Gauge
	blocklistCloses     prometheus.Counter
}

// New creates a Recorder registered against a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	return &Recorder{
		reg: reg,
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cpdlcd_connections_accepted_total",
			Help: "Total number of accepted TCP connections.",
		}),
		connectionsLoggedOn: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "cpdlcd_connections_logged_on",
			Help: "Current number of connections with a completed logon.",
		}),
		bytesRouted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cpdlcd_bytes_routed_total",
			Help: "Total bytes of message frames routed to live connections.",
		}),
		messagesFannedOut: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cpdlcd_messages_fanned_out_total",
			Help: "Total message deliveries, counting one per recipient connection.",
		}),
		messagesQueued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cpdlcd_messages_queued_total",
			Help: "Total messages queued for an offline recipient.",
		}),
		messagesDropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cpdlcd_messages_dropped_total",
			Help: "Total messages dropped, by reason.",
		}, []string{"reason"}),
		messagesExpired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cpdlcd_messages_expired_total",
			Help: "Total queued messages dropped for exceeding the queue TTL.",
		}),
		queueBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "cpdlcd_queue_bytes",
			Help: "Current total bytes accounted against the queue byte budget.",
		}),
		blocklistCloses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cpdlcd_blocklist_closes_total",
			Help: "Total connections closed due to a blocklist match.",
		}),
	}
}

// Handler returns the /metrics HTTP exposition handler, or nil if r is
// nil.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return nil
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Recorder) ConnectionAccepted() {
	if r == nil {
		return
	}
	r.connectionsAccepted.Inc()
}

func (r *Recorder) SetLoggedOnCount(n int) {
	if r == nil {
		return
	}
	r.connectionsLoggedOn.Set(float64(n))
}

func (r *Recorder) BytesRouted(n int) {
	if r == nil {
		return
	}
	r.bytesRouted.Add(float64(n))
}

func (r *Recorder) MessageFannedOut(n int) {
	if r == nil {
		return
	}
	r.messagesFannedOut.Add(float64(n))
}

func (r *Recorder) MessageQueued() {
	if r == nil {
		return
	}
	r.messagesQueued.Inc()
}

func (r *Recorder) MessageDropped(reason string) {
	if r == nil {
		return
	}
	r.messagesDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) MessageExpired() {
	if r == nil {
		return
	}
	r.messagesExpired.Inc()
}

func (r *Recorder) SetQueueBytes(n int64) {
	if r == nil {
		return
	}
	r.queueBytes.Set(float64(n))
}

func (r *Recorder) BlocklistClose() {
	if r == nil {
		return
	}
	r.blocklistCloses.Inc()
}
