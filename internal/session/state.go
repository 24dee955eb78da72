package session

import "fmt"

// State is the connection state of a device session
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateLost
	StateRetrying
)

// String returns the wire name of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLost:
		return "lost"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event drives the connection state machine
type Event int

const (
	EventConnectRequested Event = iota
	EventConnectSucceeded
	EventConnectFailed
	EventHealthFailed
	EventRetryRequested
	EventRetrySucceeded
	EventRetryFailed
	EventDisconnectRequested
)

func (e Event) String() string {
	switch e {
	case EventConnectRequested:
		return "connect-requested"
	case EventConnectSucceeded:
		return "connect-succeeded"
	case EventConnectFailed:
		return "connect-failed"
	case EventHealthFailed:
		return "health-failed"
	case EventRetryRequested:
		return "retry-requested"
	case EventRetrySucceeded:
		return "retry-succeeded"
	case EventRetryFailed:
		return "retry-failed"
	case EventDisconnectRequested:
		return "disconnect-requested"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

type edge struct {
	from State
	ev   Event
}

var transitions = map[edge]State{
	{StateDisconnected, EventConnectRequested}: StateConnecting,
	{StateConnecting, EventConnectSucceeded}:   StateConnected,
	{StateConnecting, EventConnectFailed}:      StateDisconnected,
	{StateConnected, EventHealthFailed}:        StateLost,
	{StateLost, EventRetryRequested}:           StateRetrying,
	{StateRetrying, EventRetrySucceeded}:       StateConnected,
	{StateRetrying, EventRetryFailed}:          StateLost,
	{StateConnected, EventDisconnectRequested}: StateDisconnected,
	{StateLost, EventDisconnectRequested}:      StateDisconnected,
}

// Transition returns the state that follows from applying ev in state from.
// It has no side effects.
func Transition(from State, ev Event) (State, error) {
	if to, ok := transitions[edge{from, ev}]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev, from)
}
