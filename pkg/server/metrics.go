package server

import "sync/atomic"

// MetricsCollector counts server activity with atomic counters, cheap
// enough to stay on unconditionally. Status and the debug endpoint
// read it through Snapshot; the Prometheus side lives in
// pkg/middleware and is wired separately.
type MetricsCollector struct {
	ticks            atomic.Int64
	packets          atomic.Int64
	commandsAccepted atomic.Int64
	commandsRejected atomic.Int64
	framesSent       atomic.Int64
	saves            atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Ticks            int64 `json:"ticks"`
	Packets          int64 `json:"packets"`
	CommandsAccepted int64 `json:"commands_accepted"`
	CommandsRejected int64 `json:"commands_rejected"`
	FramesSent       int64 `json:"frames_sent"`
	Saves            int64 `json:"saves"`
}

func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Ticks:            m.ticks.Load(),
		Packets:          m.packets.Load(),
		CommandsAccepted: m.commandsAccepted.Load(),
		CommandsRejected: m.commandsRejected.Load(),
		FramesSent:       m.framesSent.Load(),
		Saves:            m.saves.Load(),
	}
}
