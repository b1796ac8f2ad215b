package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/fnk59456/uwb-bridge/internal/outbound"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Messages      MessageMetrics   `json:"messages"`
	Publisher     *outbound.Stats  `json:"publisher,omitempty"`
	InfluxDB      *InfluxDBMetrics `json:"influxdb,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedMessages  uint64 `json:"dropped_messages"`
}

// MQTTMetrics contains broker session statistics.
type MQTTMetrics struct {
	Connected   bool   `json:"connected"`
	Status      string `json:"status"`
	QueueLength int    `json:"queue_length"`
}

// MessageMetrics contains recent-message buffer statistics.
type MessageMetrics struct {
	Total    uint64 `json:"total"`
	Buffered int    `json:"buffered"`
	Capacity int    `json:"capacity"`
}

// InfluxDBMetrics contains telemetry sink statistics.
type InfluxDBMetrics struct {
	Breaker string `json:"breaker"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sess := s.bridge.Session()
	buffered, capacity := s.recorder.Buffered()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedMessages:  s.hub.Dropped(),
		},
		MQTT: MQTTMetrics{
			Connected:   sess.IsConnected(),
			Status:      sess.Status().String(),
			QueueLength: s.bridge.QueueLength(),
		},
		Messages: MessageMetrics{
			Total:    s.recorder.Total(),
			Buffered: buffered,
			Capacity: capacity,
		},
	}

	if s.trigger != nil {
		stats := s.trigger.Stats()
		metrics.Publisher = &stats
	}
	if s.sink != nil {
		metrics.InfluxDB = &InfluxDBMetrics{Breaker: s.sink.BreakerState()}
	}

	writeJSON(w, http.StatusOK, metrics)
}
