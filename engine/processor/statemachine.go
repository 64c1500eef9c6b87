package processor

import "github.com/upweb-network/monitor-engine/domain/monitoring"

// decision is what applying one Check to a TargetState produces.
type decision struct {
	next          monitoring.IncidentState
	openIncident  bool
	closeIncident bool
	emit          monitoring.Transition // zero value: no notification
}

// applyCheck runs the Incident State Machine transition table from spec
// §4.4 for one ordered Check against a Target's current state, grounded on
// PilotFiber-icmp-mon's handleSuccessfulProbe/handleFailedProbe switch
// structure (reference: other_examples state_machine.go).
func applyCheck(state *monitoring.TargetState, success bool, alertThreshold, recoveryThreshold int) decision {
	if recoveryThreshold < 1 {
		recoveryThreshold = 1
	}

	switch state.Current {
	case monitoring.StateHealthy:
		if success {
			return decision{next: monitoring.StateHealthy}
		}
		state.ConsecutiveCount = 1
		if alertThreshold <= 1 {
			return decision{next: monitoring.StateDown, openIncident: true, emit: monitoring.TransitionDown}
		}
		return decision{next: monitoring.StateFailing}

	case monitoring.StateFailing:
		if success {
			state.ConsecutiveCount = 0
			return decision{next: monitoring.StateHealthy}
		}
		state.ConsecutiveCount++
		if state.ConsecutiveCount >= alertThreshold {
			return decision{next: monitoring.StateDown, openIncident: true, emit: monitoring.TransitionDown}
		}
		return decision{next: monitoring.StateFailing}

	case monitoring.StateDown:
		if !success {
			return decision{next: monitoring.StateDown}
		}
		state.ConsecutiveCount = 1
		if recoveryThreshold <= 1 {
			return decision{next: monitoring.StateHealthy, closeIncident: true, emit: monitoring.TransitionUp}
		}
		return decision{next: monitoring.StateRecovering}

	case monitoring.StateRecovering:
		if !success {
			state.ConsecutiveCount = 0
			return decision{next: monitoring.StateDown}
		}
		state.ConsecutiveCount++
		if state.ConsecutiveCount >= recoveryThreshold {
			return decision{next: monitoring.StateHealthy, closeIncident: true, emit: monitoring.TransitionUp}
		}
		return decision{next: monitoring.StateRecovering}

	default:
		// Unseen target: treat as Healthy baseline (spec §4.4 default state).
		state.Current = monitoring.StateHealthy
		return applyCheck(state, success, alertThreshold, recoveryThreshold)
	}
}
