// Package metrics holds the Prometheus collectors shared by the auth flow, the
// upload coordinator and the processing handler.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recipereels_auth_outcomes_total",
		Help: "Auth flow results by operation and resulting state",
	}, []string{"operation", "result"})

	UploadStages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recipereels_upload_stage_total",
		Help: "Upload coordinator stage completions by stage and result",
	}, []string{"stage", "result"})

	UploadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recipereels_upload_duration_seconds",
		Help:    "Wall time of a complete upload job",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	ReelsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recipereels_reels_processed_total",
		Help: "Processing function requests by result",
	}, []string{"result"})
)

// Register registers every collector on reg (or the default registerer if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{AuthOutcomes, UploadStages, UploadDuration, ReelsProcessed} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
