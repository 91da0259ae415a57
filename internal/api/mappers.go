package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/service"
)

// Wire names used by the control panel for the two backends.
const (
	BackendDaydream = "daydream"
	BackendScope    = "scope"
)

// ToBackendMode accepts both the control panel names and the internal
// ones. An empty name means cloud.
func ToBackendMode(name string) (domain.BackendMode, error) {
	switch strings.ToLower(name) {
	case "", BackendDaydream, string(domain.BackendCloud):
		return domain.BackendCloud, nil
	case BackendScope, string(domain.BackendSelfHosted), "selfhosted":
		return domain.BackendSelfHosted, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownMode, name)
}

func ToWireBackend(mode domain.BackendMode) string {
	switch mode {
	case domain.BackendCloud:
		return BackendDaydream
	case domain.BackendSelfHosted:
		return BackendScope
	}
	return ""
}

func (r StreamRequest) ToStartRequest() (service.StartRequest, error) {
	mode, err := ToBackendMode(r.Backend)
	if err != nil {
		return service.StartRequest{}, err
	}
	capture := service.CaptureSource
	if strings.EqualFold(r.Capture, string(service.CaptureTest)) {
		capture = service.CaptureTest
	}
	return service.StartRequest{
		Mode:          mode,
		Capture:       capture,
		SelfHostedURL: r.ScopeURL,
		PipelineID:    r.PipelineID,
		Params:        r.ParamsPatch,
	}, nil
}

func (r CandidateRequest) ToDomain() domain.IceCandidate {
	return domain.IceCandidate{
		SessionID: r.SessionID,
		Init: webrtc.ICECandidateInit{
			Candidate:     r.Candidate,
			SDPMid:        r.SDPMid,
			SDPMLineIndex: r.SDPMLineIndex,
		},
	}
}

func ToScopeAnswer(ex domain.PendingExchange) ScopeAnswer {
	return ScopeAnswer{
		SDP:       string(ex.Answer),
		Type:      webrtc.SDPTypeAnswer.String(),
		SessionID: ex.UpstreamSessionID,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func ToApiStatus(st service.Status) StatusResponse {
	sess := st.Session
	resp := StatusResponse{
		State:       string(sess.State),
		Streaming:   sess.IsStreaming(),
		Connected:   true,
		StreamID:    optional(sess.SessionID),
		WHIPURL:     optional(sess.InboundURL),
		WHEPURL:     optional(sess.OutboundURL),
		BackendMode: optional(ToWireBackend(sess.Mode)),
		PipelineID:  sess.PipelineID,
		StartedAt:   optionalTime(sess.StartedAt),
		Source: SourceStatus{
			Connected:      st.Source.Connected,
			Producers:      st.Source.Producers,
			FramesReceived: st.Source.FramesReceived,
			LastFrameAt:    optionalTime(st.Source.LastFrameAt),
		},
		Frames:           st.Pipeline,
		Params:           st.Params,
		Viewers:          st.Viewers,
		Exchanges:        st.Exchanges,
		QueuedCandidates: st.QueuedCandidates,
	}
	if sess.Mode == domain.BackendSelfHosted {
		resp.ScopeURL = resp.WHIPURL
		resp.WHIPURL = nil
	}
	return resp
}
