package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_reports_received_total",
		Help: "Position reports accepted into the live cache",
	})
	ReportsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_reports_rejected_total",
		Help: "Position reports rejected by the normalizer",
	})
	ReportsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_reports_superseded_total",
		Help: "Reports ignored because a newer one was already cached",
	})
	TrackedDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleettrack_tracked_devices",
		Help: "Devices currently present in the live cache",
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleettrack_subscribers",
		Help: "Currently attached broadcast subscribers",
	})
	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_broadcasts_total",
		Help: "Snapshot broadcasts published to the hub",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_subscriber_frames_dropped_total",
		Help: "Frames dropped because a subscriber buffer was full",
	})
	StaleEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_stale_evictions_total",
		Help: "Cache entries evicted by the stale reaper",
	})
	FlushBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_flush_batches_total",
		Help: "History batches flushed to the durable sink",
	})
	FlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_flush_failures_total",
		Help: "History batches dropped after a sink failure",
	})
	FlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleettrack_flush_latency_seconds",
		Help:    "Durable sink batch append latency",
		Buckets: prometheus.DefBuckets,
	})
	MirrorDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_mirror_dropped_total",
		Help: "Latest-position mirror writes dropped (queue full)",
	})
	MirrorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleettrack_mirror_errors_total",
		Help: "Latest-position mirror write errors",
	})
)

func ObserveFlushLatency(start time.Time) {
	FlushLatency.Observe(time.Since(start).Seconds())
}
