package rlpx

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds optional channel instrumentation. It never gates or blocks
// core logic (spec.md §5's single-threaded, non-suspending core); a
// Channel constructed with a nil *Metrics simply skips every increment.
type Metrics struct {
	HandshakeSuccess prometheus.Counter
	HandshakeFailure prometheus.Counter
	FramesSent       prometheus.Counter
	FramesReceived   prometheus.Counter
	ActiveChannels   prometheus.Gauge
}

// NewMetrics registers a standard set of channel counters/gauges on reg and
// returns them bundled for use by one or more Channels.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HandshakeSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinyether",
			Subsystem: "rlpx",
			Name:      "handshake_success_total",
			Help:      "Number of RLPx handshakes completed successfully.",
		}),
		HandshakeFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinyether",
			Subsystem: "rlpx",
			Name:      "handshake_failure_total",
			Help:      "Number of RLPx handshakes that failed.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinyether",
			Subsystem: "rlpx",
			Name:      "frames_sent_total",
			Help:      "Number of RLPx frames sent.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tinyether",
			Subsystem: "rlpx",
			Name:      "frames_received_total",
			Help:      "Number of RLPx frames received.",
		}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tinyether",
			Subsystem: "rlpx",
			Name:      "active_channels",
			Help:      "Number of channels currently in the ACTIVE state.",
		}),
	}
	reg.MustRegister(m.HandshakeSuccess, m.HandshakeFailure, m.FramesSent, m.FramesReceived, m.ActiveChannels)
	return m
}
