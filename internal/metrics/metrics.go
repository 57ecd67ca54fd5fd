package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "radio",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ListenersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "listeners_connected",
		Help:      "Number of HTTP stream listeners currently attached.",
	})

	WSClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "ws_clients_connected",
		Help:      "Number of websocket event clients currently attached.",
	})

	ChunksBroadcastTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "chunks_broadcast_total",
		Help:      "Total audio chunks fanned out to sinks.",
	})

	BytesBroadcastTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "bytes_broadcast_total",
		Help:      "Total audio bytes fanned out to sinks.",
	})

	SilenceSecondsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "silence_seconds_total",
		Help:      "Seconds spent broadcasting the silence fallback.",
	})

	TracksPlayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "tracks_played_total",
		Help:      "Total tracks the engine started playing.",
	})

	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "downloads_total",
		Help:      "Track downloads by source and outcome.",
	}, []string{"source", "outcome"})

	CacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "cache_size_bytes",
		Help:      "Current total size of the track cache in bytes.",
	})

	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "cache_evictions_total",
		Help:      "Total cache files evicted to stay under the size limit.",
	})

	IcecastConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "icecast_connected",
		Help:      "Whether the icecast upstream push is connected (0 or 1).",
	})

	IcecastReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "radio",
		Name:      "icecast_reconnects_total",
		Help:      "Total icecast reconnect attempts.",
	})

	IcecastBufferedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "icecast_buffered_bytes",
		Help:      "Bytes held in the icecast pending buffer.",
	})

	StoreItems = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "radio",
		Name:      "store_items",
		Help:      "Items held per persisted store.",
	}, []string{"store"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ListenersConnected,
		WSClientsConnected,
		ChunksBroadcastTotal,
		BytesBroadcastTotal,
		SilenceSecondsTotal,
		TracksPlayedTotal,
		DownloadsTotal,
		CacheSizeBytes,
		CacheEvictionsTotal,
		IcecastConnected,
		IcecastReconnectsTotal,
		IcecastBufferedBytes,
		StoreItems,
	)
}
