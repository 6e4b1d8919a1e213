package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainingtime",
		Name:      "watch_sessions_active",
		Help:      "Number of open watch sessions",
	})

	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trainingtime",
		Name:      "watch_sessions_opened_total",
		Help:      "Total watch sessions opened",
	})

	sessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trainingtime",
			Name:      "watch_sessions_closed_total",
			Help:      "Total watch sessions closed, by reason",
		},
		[]string{"reason"},
	)

	surfaceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trainingtime",
			Name:      "surface_events_total",
			Help:      "Surface events reported by clients",
		},
		[]string{"event"},
	)

	seeksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trainingtime",
		Name:      "seeks_rejected_total",
		Help:      "Seeks clamped to the furthest reached position",
	})

	videosCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trainingtime",
		Name:      "videos_completed_total",
		Help:      "Watch sessions that played to the end",
	})

	progressWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trainingtime",
			Name:      "progress_writes_total",
			Help:      "Progress persistence attempts, by result",
		},
		[]string{"result"},
	)

	libraryScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trainingtime",
			Name:      "library_scans_total",
			Help:      "Library scans, by result",
		},
		[]string{"result"},
	)

	libraryVideos = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainingtime",
		Name:      "library_videos",
		Help:      "Videos found by the last library scan",
	})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
