package connstate

// Status is the connection status of a named resource.
type Status string

const (
	Uninitialized Status = "UNINITIALIZED"
	Connecting    Status = "CONNECTING"
	Connected     Status = "CONNECTED"
	Retrying      Status = "RETRYING"
	Failed        Status = "FAILED"
	Disconnected  Status = "DISCONNECTED"
)

func (s Status) String() string { return string(s) }

// Event drives a status transition.
type Event string

const (
	EventConnect    Event = "connect"
	EventRetry      Event = "retry"
	EventSucceed    Event = "succeed"
	EventFail       Event = "fail"
	EventDisconnect Event = "disconnect"
)

// transitions is the full table of allowed moves. Anything missing is
// rejected. A terminal or connected resource only leaves its state through an
// explicit connect.
var transitions = map[Status]map[Event]Status{
	Uninitialized: {
		EventConnect: Connecting,
	},
	Connecting: {
		EventRetry:      Retrying,
		EventSucceed:    Connected,
		EventFail:       Failed,
		EventDisconnect: Disconnected,
	},
	Retrying: {
		EventRetry:      Retrying,
		EventSucceed:    Connected,
		EventFail:       Failed,
		EventDisconnect: Disconnected,
	},
	Connected: {
		EventConnect:    Connecting,
		EventDisconnect: Disconnected,
	},
	Failed: {
		EventConnect: Connecting,
	},
	Disconnected: {
		EventConnect: Connecting,
	},
}

// Next returns the status reached from s on ev.
func Next(s Status, ev Event) (Status, bool) {
	to, ok := transitions[s][ev]
	return to, ok
}
