package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecap_http_requests_total",
		Help: "HTTP requests by content kind and status code.",
	}, []string{"kind", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livecap_http_request_duration_seconds",
		Help:    "HTTP request latency by content kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	segmentsObservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livecap_segments_observed_total",
		Help: "Media segments observed in the transcoder playlist.",
	})

	cuesStoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecap_cues_stored_total",
		Help: "Finalized cues stored, by language.",
	}, []string{"language"})

	vttWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecap_vtt_writes_total",
		Help: "Subtitle segment files written, by language.",
	}, []string{"language"})

	vttWriteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecap_vtt_write_failures_total",
		Help: "Subtitle segment writes that failed after all retries, by language.",
	}, []string{"language"})

	releasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livecap_releases_total",
		Help: "Segments released into the serving window.",
	})

	stallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livecap_release_stalls_total",
		Help: "Releases that stalled waiting for staging files.",
	})

	servingMediaSequence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livecap_serving_media_sequence",
		Help: "Current EXT-X-MEDIA-SEQUENCE of the serving playlists.",
	})

	gateOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livecap_gate_open",
		Help: "1 once the buffer admission gate has opened.",
	})
)

// requestKind buckets a request path for metric labels.
func requestKind(path string) string {
	switch {
	case strings.HasSuffix(path, ".m3u8"):
		return "playlist"
	case strings.HasSuffix(path, ".ts"):
		return "segment"
	case strings.HasSuffix(path, ".vtt"):
		return "subtitle"
	default:
		return "other"
	}
}

// prometheusMiddleWare counts requests and measures their latency.
func prometheusMiddleWare(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		kind := requestKind(r.URL.Path)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(kind))
		defer func() {
			timer.ObserveDuration()
			httpRequestsTotal.WithLabelValues(kind, strconv.Itoa(ww.Status())).Inc()
		}()
		next.ServeHTTP(ww, r)
	}
	return http.HandlerFunc(fn)
}
