package projection

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicemap_refresh_duration_seconds",
		Help:    "Duration of refresh operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 10),
	})

	pointsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicemap_points",
		Help: "Number of stimulus points in the last projection",
	})

	groupStress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicemap_group_stress1",
		Help: "Normalized stress-1 of the last embedding per listener group",
	}, []string{"group"})

	lastRefreshTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicemap_last_refresh_timestamp",
		Help: "Timestamp of the last successful refresh (Unix timestamp)",
	})
)

func recordRefreshMetrics(duration time.Duration, points int, doc *Document) {
	refreshDuration.Observe(duration.Seconds())
	pointsGauge.Set(float64(points))
	for _, gp := range doc.Groups {
		groupStress.WithLabelValues(string(gp.Group)).Set(gp.Stress1)
	}
	lastRefreshTime.Set(float64(time.Now().Unix()))
}
