package domain

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

var ErrInvalidCandidate = errors.New("candidate and sessionId are required")

type IceCandidate struct {
	SessionID string
	Init      webrtc.ICECandidateInit
}

func (c IceCandidate) Validate() error {
	if c.SessionID == "" || c.Init.Candidate == "" {
		return ErrInvalidCandidate
	}
	return nil
}

// CandidateForwarder submits one trickled candidate to the upstream session.
type CandidateForwarder interface {
	ForwardCandidate(ctx context.Context, sessionID string, candidate webrtc.ICECandidateInit) error
}
