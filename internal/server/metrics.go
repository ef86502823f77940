package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serverMetrics struct {
	connectionsOpened prometheus.Counter
	connectionsOpen   prometheus.Gauge
	packets           *prometheus.CounterVec
	broadcasts        prometheus.Counter
	bytesForwarded    prometheus.Counter
	framesDropped     prometheus.Counter
	writeErrors       prometheus.Counter
	unhandled         prometheus.Counter
}

var (
	serverMetricsOnce sync.Once
	serverMetricsInst *serverMetrics
)

func metrics() *serverMetrics {
	serverMetricsOnce.Do(func() {
		serverMetricsInst = newServerMetrics()
	})
	return serverMetricsInst
}

func newServerMetrics() *serverMetrics {
	return &serverMetrics{
		connectionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "connections_opened_total",
			Help:      "Total accepted TCP connections",
		}),
		connectionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "connections_open",
			Help:      "Currently registered connections",
		}),
		packets: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "packets_total",
			Help:      "Packets dispatched, labeled by message type",
		}, []string{"type"}),
		broadcasts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "broadcasts_total",
			Help:      "Room broadcast operations",
		}),
		bytesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "media_bytes_forwarded_total",
			Help:      "Bytes written by the media forward pool",
		}),
		framesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "media_frames_dropped_total",
			Help:      "Media frames dropped because the forward queue was full",
		}),
		writeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "write_errors_total",
			Help:      "Failed or short socket writes",
		}),
		unhandled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "goatlink",
			Subsystem: "server",
			Name:      "unhandled_messages_total",
			Help:      "Packets with no registered handler",
		}),
	}
}
