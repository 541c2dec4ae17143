package speechstream

// State represents the current state of a streaming session.
type State string

const (
	// StateIdle is the initial state before Start.
	StateIdle State = "Idle"

	// StateConfigSent indicates the config frame has been written and no
	// audio has been sent yet.
	StateConfigSent State = "ConfigSent"

	// StateStreaming indicates at least one audio frame has been written.
	StateStreaming State = "Streaming"

	// StateDraining indicates the write direction is half-closed. Results
	// may still arrive until the backend ends the stream.
	StateDraining State = "Draining"

	// StateClosed indicates the session ended normally or was canceled.
	StateClosed State = "Closed"

	// StateErrored indicates a configuration or transport failure.
	StateErrored State = "Errored"
)

// IsActive returns true while the session holds an open channel.
func (s State) IsActive() bool {
	switch s {
	case StateConfigSent, StateStreaming, StateDraining:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the state cannot transition further.
func (s State) IsTerminal() bool {
	switch s {
	case StateClosed, StateErrored:
		return true
	default:
		return false
	}
}

// CanWrite reports whether frames may still be written in this state.
func (s State) CanWrite() bool {
	return s == StateConfigSent || s == StateStreaming
}

func (s State) String() string {
	return string(s)
}
