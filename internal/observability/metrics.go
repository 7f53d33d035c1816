// Package observability declares the process-wide Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsReceived counts whole records the stream reader handed to the buffer.
	RecordsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostream_records_received_total",
		Help: "Records delivered by the stream reader into the buffer",
	})

	// RecordsDropped counts records the reader could not enqueue because the session ended.
	RecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostream_records_dropped_total",
		Help: "Records discarded because the buffer was closed",
	})

	// RecordsEmitted counts records fanned out to all four outlets.
	RecordsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostream_records_emitted_total",
		Help: "Records decoded and emitted on every outlet",
	})

	// RecordsSkipped counts records the dispatcher could not decode.
	RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostream_records_skipped_total",
		Help: "Records skipped by the dispatcher",
	}, []string{"reason"}) // reason: malformed, missing_field, notice

	// EmitErrors counts outlet writes that failed.
	EmitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostream_emit_errors_total",
		Help: "Outlet emissions that returned an error",
	}, []string{"outlet"})

	// BufferDepth tracks records waiting between reader and dispatcher.
	BufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geostream_buffer_depth",
		Help: "Records currently queued in the session buffer",
	})

	// SessionState tracks the controller state (0=Idle, 1=Running, 2=Stopping).
	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geostream_session_state",
		Help: "Current session state (0=Idle, 1=Running, 2=Stopping)",
	})

	// SessionStarts counts successful session starts.
	SessionStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostream_session_starts_total",
		Help: "Sessions that connected successfully",
	})

	// ConnectFailures counts failed connection attempts by HTTP status ("0" for network errors).
	ConnectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostream_connect_failures_total",
		Help: "Failed attempts to open the stream",
	}, []string{"status"})

	// StreamReconnects counts reconnect attempts after a dropped connection.
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostream_stream_reconnects_total",
		Help: "Reconnect attempts made by the stream client",
	})

	// StreamStalls counts connections dropped by the stall watchdog.
	StreamStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostream_stream_stalls_total",
		Help: "Connections closed because no data arrived within the stall timeout",
	})

	// FeedThrottled counts messages the Telegram feed dropped to stay under its rate.
	FeedThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostream_feed_throttled_total",
		Help: "Messages not forwarded to the Telegram feed due to rate limiting",
	})

	// WebSocketClients tracks connected websocket outlet clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geostream_websocket_clients",
		Help: "Connected websocket outlet clients",
	})
)
