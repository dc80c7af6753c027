package models

// ConnectionPhase is the lifecycle phase of the push channel.
type ConnectionPhase string

const (
	ConnectionIdle       ConnectionPhase = "idle"
	ConnectionConnecting ConnectionPhase = "connecting"
	ConnectionOpen       ConnectionPhase = "open"
	ConnectionClosed     ConnectionPhase = "closed"
)

// ConnectionState describes the push channel as seen by its owner.
// Attempt counts consecutive failed connection cycles and is reset only
// when a message is actually received, not merely when a dial succeeds.
type ConnectionState struct {
	Phase   ConnectionPhase
	Attempt int
}
