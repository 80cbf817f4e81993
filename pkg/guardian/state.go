package guardian

// State is the guardian's operating mode. Exactly one value is active at a
// time and only the control loop mutates it.
type State string

const (
	// StateNormal: full service, no degradation active
	StateNormal State = "NORMAL"
	// StateBrownout: soft trigger sustained for one measurement window,
	// moderate degradation applied
	StateBrownout State = "BROWNOUT"
	// StateDegraded: soft trigger sustained for a second full window,
	// heavy degradation applied
	StateDegraded State = "DEGRADED"
	// StateEmergency: a hard threshold breached on a single tick; resolved
	// within the same tick by the kill sequence (or by lockdown)
	StateEmergency State = "EMERGENCY"
	// StateLockdown: automated remediation failed or was rate-limited;
	// manual intervention expected, releases purely on elapsed time
	StateLockdown State = "LOCKDOWN"
)

// Action is the side effect a transition asks the control loop to execute.
// Transition logic stays pure; execution (and its failures) stay in the loop.
type Action int

const (
	ActionNone Action = iota
	// ActionActivateModerate on entering BROWNOUT
	ActionActivateModerate
	// ActionActivateHeavy on entering DEGRADED
	ActionActivateHeavy
	// ActionDeactivate on returning to NORMAL
	ActionDeactivate
	// ActionKill on entering EMERGENCY; the loop consults the rate
	// limiter before running the sequence
	ActionKill
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionActivateModerate:
		return "activate_moderate"
	case ActionActivateHeavy:
		return "activate_heavy"
	case ActionDeactivate:
		return "deactivate"
	case ActionKill:
		return "kill"
	default:
		return "unknown"
	}
}
