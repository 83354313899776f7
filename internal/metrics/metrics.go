// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error kinds recorded by ObserveError.
const (
	ErrorNavigation = "navigation"
	ErrorNoTables   = "no_tables"
	ErrorExtract    = "extract"
	ErrorPanic      = "panic"
	ErrorAcquire    = "acquire"
	ErrorPage       = "page"
)

var (
	discoveredTotal            prometheus.Counter
	attemptedTotal             prometheus.Counter
	succeededTotal             prometheus.Counter
	failedTotal                prometheus.Counter
	errorsTotal                *prometheus.CounterVec
	scrapeDurationSeconds      prometheus.Histogram
	pageLoadDurationSeconds    prometheus.Histogram
	contextAcquireSeconds      prometheus.Histogram
	poolUtilizationPercent     prometheus.Gauge
	activePages                *prometheus.GaugeVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	entitiesExtractedTotal     prometheus.Counter
	outputBytesWrittenTotal    prometheus.Counter
	notificationsTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		discoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_discovered_total",
			Help: "Total number of catalog records discovered.",
		})
		attemptedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_attempted_total",
			Help: "Total number of page scrapes attempted.",
		})
		succeededTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_succeeded_total",
			Help: "Total number of page scrapes that produced at least one entity.",
		})
		failedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_failed_total",
			Help: "Total number of page scrapes that produced no entity.",
		})
		errorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_errors_total",
				Help: "Total number of task errors, labeled by kind.",
			},
			[]string{"kind"},
		)
		scrapeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_scrape_duration_seconds",
			Help:    "Histogram of end-to-end page scrape durations.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		})
		pageLoadDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_page_load_duration_seconds",
			Help:    "Histogram of page load durations up to a candidate table.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		})
		contextAcquireSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_context_acquire_seconds",
			Help:    "Histogram of time spent waiting for a rendering context.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		})
		poolUtilizationPercent = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_pool_utilization_percent",
			Help: "Share of scheduled tasks completed, in percent.",
		})
		activePages = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scraper_active_pages",
				Help: "Pages currently open, labeled by context index.",
			},
			[]string{"context"},
		)
		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
		entitiesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_entities_extracted_total",
			Help: "Total number of entities produced by page extraction.",
		})
		outputBytesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_output_bytes_total",
			Help: "Total number of bytes written to the output store.",
		})
		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_notifications_total",
				Help: "Total number of run notifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDiscovered records the size of the discovered catalog.
func ObserveDiscovered(n int) {
	if discoveredTotal == nil {
		return
	}
	discoveredTotal.Add(float64(n))
}

// ObserveTask records the outcome and duration of one page scrape.
func ObserveTask(success bool, duration time.Duration, entities int) {
	if attemptedTotal == nil {
		return
	}
	attemptedTotal.Inc()
	if success {
		succeededTotal.Inc()
	} else {
		failedTotal.Inc()
	}
	entitiesExtractedTotal.Add(float64(entities))
	scrapeDurationSeconds.Observe(duration.Seconds())
}

// ObserveError increments the error counter for kind.
func ObserveError(kind string) {
	if errorsTotal == nil {
		return
	}
	errorsTotal.WithLabelValues(kind).Inc()
}

// ObservePageLoad records how long a page took to show a candidate table.
func ObservePageLoad(duration time.Duration) {
	if pageLoadDurationSeconds == nil {
		return
	}
	pageLoadDurationSeconds.Observe(duration.Seconds())
}

// ObserveContextAcquire records the wait for a rendering context.
func ObserveContextAcquire(duration time.Duration) {
	if contextAcquireSeconds == nil {
		return
	}
	contextAcquireSeconds.Observe(duration.Seconds())
}

// SetPoolUtilization sets the completion gauge.
func SetPoolUtilization(percent float64) {
	if poolUtilizationPercent == nil {
		return
	}
	poolUtilizationPercent.Set(percent)
}

// SetActivePages sets the open page gauge for one context.
func SetActivePages(contextIndex, n int) {
	if activePages == nil {
		return
	}
	activePages.WithLabelValues(strconv.Itoa(contextIndex)).Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaysSeconds == nil {
		return
	}
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveOutputWrite records bytes written to the output store.
func ObserveOutputWrite(n int) {
	if outputBytesWrittenTotal == nil {
		return
	}
	outputBytesWrittenTotal.Add(float64(n))
}

// ObserveNotification records a run notification outcome.
func ObserveNotification(outcome string) {
	if notificationsTotal == nil {
		return
	}
	notificationsTotal.WithLabelValues(outcome).Inc()
}
