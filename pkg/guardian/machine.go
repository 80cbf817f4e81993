package guardian

import (
	"time"

	"github.com/sentryhost/guardian/pkg/metrics"
)

// boolWindow is the fixed-size sliding window of soft-trigger evaluations.
// The BROWNOUT/DEGRADED transitions fire only when it is full and every
// entry is true.
type boolWindow struct {
	size    int
	entries []bool
}

func newBoolWindow(size int) *boolWindow {
	if size < 1 {
		size = 1
	}
	return &boolWindow{size: size, entries: make([]bool, 0, size)}
}

func (w *boolWindow) push(v bool) {
	if len(w.entries) == w.size {
		copy(w.entries, w.entries[1:])
		w.entries[len(w.entries)-1] = v
		return
	}
	w.entries = append(w.entries, v)
}

func (w *boolWindow) allTrue() bool {
	if len(w.entries) < w.size {
		return false
	}
	for _, v := range w.entries {
		if !v {
			return false
		}
	}
	return true
}

func (w *boolWindow) reset() {
	w.entries = w.entries[:0]
}

// Machine holds the transition logic of the guardian: state, the sliding
// soft-trigger window, the recovery timer, and the lockdown deadline.
// Evaluate is pure with respect to side effects: it decides, the control
// loop acts. Not safe for concurrent use; the loop is the single writer.
type Machine struct {
	config Config

	state     State
	enteredAt time.Time

	softWindow *boolWindow
	// recoveryStart is unset until a good sample arrives; any bad sample
	// resets it to unset
	recoveryStart *time.Time
	lockdownUntil time.Time
}

func NewMachine(config Config) *Machine {
	return &Machine{
		config:     config,
		state:      StateNormal,
		enteredAt:  time.Now(),
		softWindow: newBoolWindow(config.MeasurementWindow),
	}
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) EnteredAt() time.Time {
	return m.enteredAt
}

// LockdownUntil returns the release deadline while in LOCKDOWN.
func (m *Machine) LockdownUntil() (time.Time, bool) {
	if m.state != StateLockdown {
		return time.Time{}, false
	}
	return m.lockdownUntil, true
}

// Evaluate advances the machine by one tick and returns the side effect the
// loop must execute. Hard triggers bypass hysteresis entirely; lockdown
// ignores metrics and releases purely on elapsed time.
func (m *Machine) Evaluate(now time.Time, sample metrics.SystemMetrics) Action {
	if m.state == StateLockdown {
		if !now.Before(m.lockdownUntil) {
			m.transition(StateNormal, now)
			return ActionDeactivate
		}
		return ActionNone
	}

	if m.hardTrigger(sample) {
		m.transition(StateEmergency, now)
		return ActionKill
	}

	soft := sample.RAMPct >= m.config.RAMSoftPct || sample.CPUPct >= m.config.CPUSoftPct
	m.softWindow.push(soft)

	switch m.state {
	case StateNormal:
		if m.softWindow.allTrue() {
			m.transition(StateBrownout, now)
			return ActionActivateModerate
		}

	case StateBrownout, StateDegraded:
		if m.recovered(sample) {
			if m.recoveryStart == nil {
				t := now
				m.recoveryStart = &t
			} else if now.Sub(*m.recoveryStart) >= m.config.RecoveryWindow {
				m.transition(StateNormal, now)
				return ActionDeactivate
			}
		} else {
			// A single bad sample resets the recovery timer to unset
			m.recoveryStart = nil
		}

		if m.state == StateBrownout && m.softWindow.allTrue() {
			m.transition(StateDegraded, now)
			return ActionActivateHeavy
		}
	}

	return ActionNone
}

// ResolveEmergency is called by the loop after a successful kill sequence.
func (m *Machine) ResolveEmergency(now time.Time) {
	m.transition(StateNormal, now)
}

// EnterLockdown is called by the loop when the rate limiter rejects a kill
// or the kill sequence fails.
func (m *Machine) EnterLockdown(now time.Time) {
	m.lockdownUntil = now.Add(m.config.LockdownDuration)
	m.transition(StateLockdown, now)
}

func (m *Machine) hardTrigger(sample metrics.SystemMetrics) bool {
	if sample.RAMPct >= m.config.RAMHardPct {
		return true
	}
	if sample.CPUPct >= m.config.CPUHardPct {
		return true
	}
	if sample.DiskPct >= m.config.DiskHardPct {
		return true
	}
	if sample.TempC != nil && *sample.TempC >= m.config.TempHardC {
		return true
	}
	return false
}

func (m *Machine) recovered(sample metrics.SystemMetrics) bool {
	return sample.RAMPct <= m.config.RAMRecoveryPct && sample.CPUPct <= m.config.CPURecoveryPct
}

// transition records the new state and clears per-state bookkeeping. The
// soft window restarts on every transition: escalating past BROWNOUT requires a
// second full window, and a fresh NORMAL starts with no history.
func (m *Machine) transition(next State, now time.Time) {
	m.state = next
	m.enteredAt = now
	m.softWindow.reset()
	m.recoveryStart = nil
}
