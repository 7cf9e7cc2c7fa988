package task

import "strings"

type State string

const (
	StateUnknown  State = "unknown"
	StateStaging  State = "staging"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateFailed   State = "failed"
	StateKilled   State = "killed"
	StateLost     State = "lost"
)

// ParseState maps a Mesos task state, e.g. TASK_RUNNING, onto a State.
func ParseState(mesosState string) State {
	switch strings.TrimPrefix(strings.ToUpper(mesosState), "TASK_") {
	case "STAGING", "STARTING":
		return StateStaging
	case "RUNNING":
		return StateRunning
	case "FINISHED":
		return StateFinished
	case "FAILED", "ERROR":
		return StateFailed
	case "KILLED", "KILLING":
		return StateKilled
	case "LOST":
		return StateLost
	default:
		return StateUnknown
	}
}

func (s State) IsTerminal() bool {
	switch s {
	case StateFinished, StateFailed, StateKilled, StateLost:
		return true
	}
	return false
}
