package domain

// ConnectionState is the lifecycle state of one client's connection to one document.
type ConnectionState string

// Connection states.
const (
	ConnDisconnected     ConnectionState = "disconnected"
	ConnConnecting       ConnectionState = "connecting"
	ConnConnected        ConnectionState = "connected"
	ConnError            ConnectionState = "error"
	ConnPermissionDenied ConnectionState = "permission_denied"
)

// String returns the string representation.
func (s ConnectionState) String() string {
	return string(s)
}

// IsTerminal reports whether no further reconnection may happen.
func (s ConnectionState) IsTerminal() bool {
	return s == ConnPermissionDenied
}

// Description returns a human-readable description of the state.
func (s ConnectionState) Description() string {
	switch s {
	case ConnDisconnected:
		return "Offline"
	case ConnConnecting:
		return "Connecting"
	case ConnConnected:
		return "Live"
	case ConnError:
		return "Connection lost"
	case ConnPermissionDenied:
		return "Editing access revoked"
	default:
		return "Unknown"
	}
}

// ConnectionStatus is the observable state of the connection controller.
type ConnectionStatus struct {
	// State is the current lifecycle state.
	State ConnectionState

	// Attempts counts automatic reconnection attempts since the last success.
	Attempts int

	// LastError is the reason for the last failure, if any.
	LastError string

	// RetryScheduled is true while an automatic reconnection is pending.
	RetryScheduled bool
}
