package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives engine and API measurements.
type Recorder interface {
	IncTicks(outcome string)
	ObserveTickDuration(d time.Duration)
	IncFetches(result string)
	IncNotifications(result string)
	IncCacheHits()
	IncCacheMisses()
	SetScheduledWatchers(n int)
	IncRequestsTotal(route string, status int)
	ObserveRequestDuration(route string, d time.Duration)
}

// Prometheus records into a dedicated registry.
type Prometheus struct {
	registry          *prometheus.Registry
	ticksTotal        *prometheus.CounterVec
	tickDuration      prometheus.Histogram
	fetchesTotal      *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	scheduled         prometheus.Gauge
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New returns a Prometheus recorder when enabled and a no-op one otherwise.
func New(enabled bool) Recorder {
	if !enabled {
		return Noop{}
	}
	return NewPrometheus(prometheus.NewRegistry())
}

// NewPrometheus registers the campwatch collectors on reg.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		ticksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campwatch_ticks_total",
			Help: "Watcher ticks by outcome",
		}, []string{"outcome"}),

		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "campwatch_tick_duration_seconds",
			Help:    "Duration of watcher ticks in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		fetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campwatch_upstream_fetches_total",
			Help: "Upstream availability fetches by result",
		}, []string{"result"}),

		notificationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campwatch_notifications_total",
			Help: "Notifications by result",
		}, []string{"result"}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "campwatch_cache_hits_total",
			Help: "Availability cache hits",
		}),

		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "campwatch_cache_misses_total",
			Help: "Availability cache misses",
		}),

		scheduled: f.NewGauge(prometheus.GaugeOpts{
			Name: "campwatch_scheduled_watchers",
			Help: "Watchers with an active daily trigger",
		}),

		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campwatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) IncTicks(outcome string) {
	p.ticksTotal.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveTickDuration(d time.Duration) {
	p.tickDuration.Observe(d.Seconds())
}

func (p *Prometheus) IncFetches(result string) {
	p.fetchesTotal.WithLabelValues(result).Inc()
}

func (p *Prometheus) IncNotifications(result string) {
	p.notificationTotal.WithLabelValues(result).Inc()
}

func (p *Prometheus) IncCacheHits() {
	p.cacheHits.Inc()
}

func (p *Prometheus) IncCacheMisses() {
	p.cacheMisses.Inc()
}

func (p *Prometheus) SetScheduledWatchers(n int) {
	p.scheduled.Set(float64(n))
}

func (p *Prometheus) IncRequestsTotal(route string, status int) {
	p.requestsTotal.WithLabelValues(route, statusBucket(status)).Inc()
}

func (p *Prometheus) ObserveRequestDuration(route string, d time.Duration) {
	p.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) IncTicks(string)                              {}
func (Noop) ObserveTickDuration(time.Duration)            {}
func (Noop) IncFetches(string)                            {}
func (Noop) IncNotifications(string)                      {}
func (Noop) IncCacheHits()                                {}
func (Noop) IncCacheMisses()                              {}
func (Noop) SetScheduledWatchers(int)                     {}
func (Noop) IncRequestsTotal(string, int)                 {}
func (Noop) ObserveRequestDuration(string, time.Duration) {}
