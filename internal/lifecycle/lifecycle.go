package lifecycle

import "sync/atomic"

// State reports whether the process is draining. The health handler returns 503 with status
// shutting-down while it is set; main sets it on SIGTERM/SIGINT before stopping the listener.
type State struct {
	shuttingDown atomic.Bool
}

// New returns a State that is not shutting down.
func New() *State {
	return &State{}
}

// BeginShutdown marks the process as draining.
func (s *State) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// IsShuttingDown returns true once BeginShutdown was called. A nil State is never shutting down.
func (s *State) IsShuttingDown() bool {
	return s != nil && s.shuttingDown.Load()
}
