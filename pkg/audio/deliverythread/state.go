package deliverythread

import (
	"fmt"
)

type State int

const (
	StateUnstarted = State(iota)
	StateRunning
	StateAborting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateAborting:
		return "aborting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown_state_%d", int(s))
	}
}
