package metrics

import (
	"time"
)

// SystemMetrics is an immutable snapshot of host resources taken once per
// guardian tick. Unavailable readings are zero (or nil for temperature);
// the collector never fails a tick over a bad probe.
type SystemMetrics struct {
	Timestamp time.Time `json:"timestamp"`
	RAMPct    float64   `json:"ram_pct"`
	RAMGB     float64   `json:"ram_gb"`
	CPUPct    float64   `json:"cpu_pct"`
	DiskPct   float64   `json:"disk_pct"`
	// TempC is nil on hosts without a readable thermal sensor
	TempC       *float64 `json:"temp_c,omitempty"`
	BackendPIDs []int32  `json:"backend_pids"`

	// Flags stamped by the control loop when the snapshot is taken
	Degraded      bool `json:"degraded"`
	IntakeBlocked bool `json:"intake_blocked"`
	EmergencyMode bool `json:"emergency_mode"`
}

// Window is a bounded FIFO of snapshots sized to the hysteresis measurement
// window. Owned exclusively by the control loop; not safe for concurrent use.
type Window struct {
	size    int
	entries []SystemMetrics
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, entries: make([]SystemMetrics, 0, size)}
}

// Push appends a snapshot, evicting the oldest once the window is full.
func (w *Window) Push(m SystemMetrics) {
	if len(w.entries) == w.size {
		copy(w.entries, w.entries[1:])
		w.entries[len(w.entries)-1] = m
		return
	}
	w.entries = append(w.entries, m)
}

// Latest returns the most recent snapshot, or a zero value when empty.
func (w *Window) Latest() SystemMetrics {
	if len(w.entries) == 0 {
		return SystemMetrics{}
	}
	return w.entries[len(w.entries)-1]
}

// All returns the snapshots oldest-first. The slice is a copy.
func (w *Window) All() []SystemMetrics {
	out := make([]SystemMetrics, len(w.entries))
	copy(out, w.entries)
	return out
}
