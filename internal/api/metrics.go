package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	audioRequestsDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicemap_audio_requests_denied_total",
		Help: "Number of audio requests denied for security reasons",
	}, []string{"reason"})

	audioRequestsAllowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicemap_audio_requests_allowed_total",
		Help: "Number of audio requests served",
	})

	audioCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicemap_audio_cache_hits_total",
		Help: "Number of audio requests answered with 304 Not Modified",
	})
)

func recordAudioRequestAllowed() {
	audioRequestsAllowedTotal.Inc()
}

func recordAudioRequestDenied(reason string) {
	audioRequestsDeniedTotal.WithLabelValues(reason).Inc()
}

func recordAudioCacheHit() {
	audioCacheHitsTotal.Inc()
}
