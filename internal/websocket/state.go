package websocket

import "time"

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

type event int

const (
	eventConnect    event = iota // dial requested, manually or by the reconnect timer
	eventOpened                  // handshake succeeded
	eventFailed                  // handshake failed
	eventDropped                 // open connection closed by the peer or the network
	eventDisconnect              // manual disconnect
)

// transitions lists every legal (state, event) pair. Events missing from a
// state's row are ignored.
var transitions = map[State]map[event]State{
	StateDisconnected: {
		eventConnect:    StateConnecting,
		eventDisconnect: StateDisconnected,
	},
	StateConnecting: {
		eventOpened:     StateConnected,
		eventFailed:     StateDisconnected,
		eventDisconnect: StateDisconnected,
	},
	StateConnected: {
		eventDropped:    StateDisconnected,
		eventDisconnect: StateDisconnected,
	},
}

func transition(from State, ev event) (State, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// backoff schedules reconnection attempts with linearly growing delays:
// attempt n waits base*n. After max attempts it reports exhaustion until
// reset.
type backoff struct {
	base     time.Duration
	max      int
	attempts int
}

func (b *backoff) next() (delay time.Duration, attempt int, ok bool) {
	if b.attempts >= b.max {
		return 0, b.attempts, false
	}
	b.attempts++
	return b.base * time.Duration(b.attempts), b.attempts, true
}

func (b *backoff) reset() {
	b.attempts = 0
}
