package domain

import (
	"errors"
	"time"
)

var (
	ErrAlreadyStreaming = errors.New("already streaming, stop the current session first")
	ErrNotStreaming     = errors.New("no active session")
	ErrStaleSession     = errors.New("session is no longer active")
	ErrIncompleteRoute  = errors.New("routing inputs incomplete for backend mode")
	ErrWrongBackend     = errors.New("operation not available for the active backend")
	ErrNoInboundURL     = errors.New("no inbound url available")
	ErrNoOutboundURL    = errors.New("no outbound url available yet")
	ErrUnknownMode      = errors.New("unknown backend mode")
	ErrNoBackendURL     = errors.New("no self-hosted url provided")
)

type BackendMode string

const (
	BackendCloud      BackendMode = "cloud"
	BackendSelfHosted BackendMode = "self_hosted"
)

type SessionState string

const (
	SessionIdle      SessionState = "IDLE"
	SessionStreaming SessionState = "STREAMING"
)

// StreamSession is the single bridge session. Generation changes on every
// start and stop and is captured by background work to detect staleness.
type StreamSession struct {
	State       SessionState
	Mode        BackendMode
	SessionID   string
	InboundURL  string
	OutboundURL string
	PipelineID  string
	Generation  uint64
	StartedAt   time.Time
}

func (s StreamSession) IsStreaming() bool {
	return s.State == SessionStreaming
}

type RoutingInputs struct {
	SessionID  string
	InboundURL string
	PipelineID string
}

// Validate reports whether the inputs carry everything the mode needs to
// route media.
func (r RoutingInputs) Validate(mode BackendMode) error {
	switch mode {
	case BackendCloud:
		if r.SessionID == "" || r.InboundURL == "" {
			return ErrIncompleteRoute
		}
	case BackendSelfHosted:
		if r.InboundURL == "" {
			return ErrIncompleteRoute
		}
	default:
		return ErrUnknownMode
	}
	return nil
}
