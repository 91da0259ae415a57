package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

// whipNegotiator pushes the relay page's offer to the cloud ingest url.
type whipNegotiator struct {
	cloud   domain.CloudBackend
	url     string
	timeout time.Duration
}

func (n whipNegotiator) Kind() domain.ExchangeKind { return domain.ExchangeWHIP }
func (n whipNegotiator) Timeout() time.Duration { return n.timeout }

func (n whipNegotiator) Negotiate(ctx context.Context, offer []byte) (domain.Answer, error) {
	answer, playbackURL, err := n.cloud.ExchangeSDP(ctx, n.url, offer)
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{SDP: answer, PlaybackURL: playbackURL}, nil
}

// whepNegotiator pulls the transformed stream from the playback url.
type whepNegotiator struct {
	cloud   domain.CloudBackend
	url     string
	timeout time.Duration
}

func (n whepNegotiator) Kind() domain.ExchangeKind { return domain.ExchangeWHEP }
func (n whepNegotiator) Timeout() time.Duration { return n.timeout }

func (n whepNegotiator) Negotiate(ctx context.Context, offer []byte) (domain.Answer, error) {
	answer, _, err := n.cloud.ExchangeSDP(ctx, n.url, offer)
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{SDP: answer}, nil
}

type scopeNegotiator struct {
	scope      domain.SelfHostedBackend
	baseURL    string
	pipelineID string
	params     domain.StreamParams
	timeout    time.Duration
}

func (n scopeNegotiator) Kind() domain.ExchangeKind { return domain.ExchangeScope }
func (n scopeNegotiator) Timeout() time.Duration { return n.timeout }

func (n scopeNegotiator) Negotiate(ctx context.Context, offer []byte) (domain.Answer, error) {
	answer, err := n.scope.SendOffer(ctx, n.baseURL, parseOffer(offer), n.pipelineID, n.params)
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{SDP: []byte(answer.SDP), SessionID: answer.SessionID}, nil
}

// parseOffer accepts either a JSON session description or a bare SDP body.
// A missing or unknown type is read as an offer.
func parseOffer(offer []byte) webrtc.SessionDescription {
	var desc struct {
		SDP  string `json:"sdp"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(offer, &desc); err != nil || desc.SDP == "" {
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(offer)}
	}
	sdpType := webrtc.NewSDPType(desc.Type)
	if sdpType == webrtc.SDPTypeUnknown {
		sdpType = webrtc.SDPTypeOffer
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}
}
