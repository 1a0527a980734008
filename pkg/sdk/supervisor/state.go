package supervisor

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the supervised process.
type State int

const (
	StateNotStarted State = iota
	StateLaunching
	StateRunning
	StateExited     // exited with status 0
	StateCrashed    // exited non-zero, was killed, or failed to spawn
	StateRestarting // waiting out the restart delay
	StateStopped    // stopped by its owner
	StateFailed     // restart budget exhausted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateCrashed:
		return "crashed"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// EventType is a lifecycle signal. Spawn, Exit and Error come from the child;
// the rest are issued by the supervisor itself.
type EventType int

const (
	EventLaunch EventType = iota
	EventSpawn
	EventExit
	EventError
	EventRestart
	EventStop
	EventGiveUp
)

func (e EventType) String() string {
	switch e {
	case EventLaunch:
		return "launch"
	case EventSpawn:
		return "spawn"
	case EventExit:
		return "exit"
	case EventError:
		return "error"
	case EventRestart:
		return "restart"
	case EventStop:
		return "stop"
	case EventGiveUp:
		return "give-up"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Event is emitted to the OnEvent hook after each transition.
type Event struct {
	Type         EventType
	State        State // state after the transition
	RunID        string
	PID          int
	ExitCode     int
	RestartCount int
	Err          error
	Time         time.Time
}

// next computes the state that follows ev in state s. exitCode is only
// consulted for EventExit.
func next(s State, ev EventType, exitCode int) (State, error) {
	switch ev {
	case EventLaunch:
		if s == StateNotStarted || s == StateRestarting {
			return StateLaunching, nil
		}
	case EventSpawn:
		if s == StateLaunching {
			return StateRunning, nil
		}
	case EventExit:
		if s == StateRunning {
			if exitCode == 0 {
				return StateExited, nil
			}
			return StateCrashed, nil
		}
	case EventError:
		if s == StateLaunching || s == StateRunning {
			return StateCrashed, nil
		}
	case EventRestart:
		if s == StateExited || s == StateCrashed {
			return StateRestarting, nil
		}
	case EventStop:
		if !s.Terminal() {
			return StateStopped, nil
		}
	case EventGiveUp:
		if s == StateExited || s == StateCrashed {
			return StateFailed, nil
		}
	}
	return s, fmt.Errorf("invalid transition: %s in state %s", ev, s)
}
