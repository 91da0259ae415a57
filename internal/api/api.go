// Package api holds the JSON shapes of the control surface and the relay
// page protocol.
package api

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/pipeline"
)

// StreamRequest is the body of /api/stream/start and /api/stream/update.
// Parameter fields that are absent keep their saved value.
type StreamRequest struct {
	Backend    string `json:"backend"`
	Capture    string `json:"capture"`
	ScopeURL   string `json:"scope_url"`
	PipelineID string `json:"pipeline_id"`
	domain.ParamsPatch
}

type StreamResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	StreamID string `json:"stream_id,omitempty"`
	RelayURL string `json:"relay_url,omitempty"`
	Backend  string `json:"backend,omitempty"`
}

type ScopeRequest struct {
	URL        string `json:"url"`
	PipelineID string `json:"pipeline_id"`
}

type PipelineLoadResponse struct {
	Success    bool   `json:"success"`
	PipelineID string `json:"pipeline_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

type OfferAccepted struct {
	ID string `json:"id"`
}

type PendingResult struct {
	Status string `json:"status"`
}

type ScopeAnswer struct {
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

type CandidateRequest struct {
	SessionID     string  `json:"sessionId"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

type CandidateResponse struct {
	Success bool `json:"success"`
	Queued  bool `json:"queued"`
}

type ICEServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

type SourceStatus struct {
	Connected      bool       `json:"connected"`
	Producers      int        `json:"producers"`
	FramesReceived uint64     `json:"frames_received"`
	LastFrameAt    *time.Time `json:"last_frame_at"`
}

// StatusResponse is served by /status and /api/status. The first block
// keeps the field names the relay page reads.
type StatusResponse struct {
	State       string  `json:"state"`
	Streaming   bool    `json:"streaming"`
	Connected   bool    `json:"connected"`
	StreamID    *string `json:"stream_id"`
	WHIPURL     *string `json:"whip_url"`
	WHEPURL     *string `json:"whep_url"`
	BackendMode *string `json:"backend_mode"`
	ScopeURL    *string `json:"scope_url"`

	PipelineID       string              `json:"pipeline_id,omitempty"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	Source           SourceStatus        `json:"source"`
	Frames           pipeline.Stats      `json:"frames"`
	Params           domain.StreamParams `json:"params"`
	Viewers          int                 `json:"viewers"`
	Exchanges        int                 `json:"exchanges"`
	QueuedCandidates int                 `json:"queued_candidates"`
}
