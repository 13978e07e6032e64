package device

import "fmt"

// State is the position of a Session in the instrument workflow.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateFrontendConfigured
	StateSetupConfigured
	StateMeasuring
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateFrontendConfigured:
		return "frontend-configured"
	case StateSetupConfigured:
		return "setup-configured"
	case StateMeasuring:
		return "measuring"
	case StateIdle:
		return "idle"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
