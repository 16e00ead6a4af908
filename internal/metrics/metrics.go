package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_engine_tasks_submitted_total",
		Help: "Total number of download tasks submitted",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_engine_tasks_completed_total",
		Help: "Total number of download tasks completed",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_engine_tasks_failed_total",
		Help: "Total number of download tasks failed",
	})

	TasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_engine_tasks_cancelled_total",
		Help: "Total number of download tasks cancelled",
	})

	ActiveDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "download_engine_active_downloads",
		Help: "Number of downloads with a live transport handle",
	})

	QueuedTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "download_engine_queued_tasks",
		Help: "Number of tasks waiting in the pending queue",
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_engine_download_bytes_total",
		Help: "Total bytes downloaded",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "download_engine_download_duration_seconds",
		Help:    "Download duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
