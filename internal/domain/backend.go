package domain

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// StreamParams are the transformation parameters sent to either backend.
type StreamParams struct {
	ModelID           string  `json:"model_id" yaml:"modelId"`
	Prompt            string  `json:"prompt" yaml:"prompt"`
	NegativePrompt    string  `json:"negative_prompt" yaml:"negativePrompt"`
	GuidanceScale     float64 `json:"guidance_scale" yaml:"guidanceScale"`
	Delta             float64 `json:"delta" yaml:"delta"`
	Width             int     `json:"width" yaml:"width"`
	Height            int     `json:"height" yaml:"height"`
	NumInferenceSteps int     `json:"num_inference_steps" yaml:"numInferenceSteps"`
	DoAddNoise        bool    `json:"do_add_noise" yaml:"doAddNoise"`
	TIndexList        []int   `json:"t_index_list" yaml:"tIndexList"`
	DepthScale        float64 `json:"depth_scale" yaml:"depthScale"`
	CannyScale        float64 `json:"canny_scale" yaml:"cannyScale"`
	TileScale         float64 `json:"tile_scale" yaml:"tileScale"`
	DenoisingSteps    []int   `json:"denoising_step_list" yaml:"denoisingStepList"`
}

func DefaultStreamParams() StreamParams {
	return StreamParams{
		ModelID:           "stabilityai/sdxl-turbo",
		Prompt:            "anime style, vibrant colors, detailed",
		NegativePrompt:    "blurry, low quality, flat, 2d",
		GuidanceScale:     1.0,
		Delta:             0.7,
		Width:             512,
		Height:            512,
		NumInferenceSteps: 50,
		DoAddNoise:        true,
		TIndexList:        []int{11},
		DepthScale:        0.45,
		CannyScale:        0.0,
		TileScale:         0.21,
		DenoisingSteps:    []int{1000, 750},
	}
}

type CloudStream struct {
	ID      string
	WHIPURL string
	ModelID string
}

type CloudBackend interface {
	CreateStream(ctx context.Context, params StreamParams) (CloudStream, error)
	UpdateStream(ctx context.Context, streamID string, params StreamParams) error
	DeleteStream(ctx context.Context, streamID string) error
	// ExchangeSDP posts an offer to a WHIP or WHEP endpoint and returns the
	// answer plus the playback url header when present.
	ExchangeSDP(ctx context.Context, url string, offer []byte) (answer []byte, playbackURL string, err error)
}

type ScopeAnswer struct {
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type ProbeResult struct {
	URL        string             `json:"url"`
	Reachable  bool               `json:"reachable"`
	Pipelines  []string           `json:"pipelines"`
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
	Error      string             `json:"error,omitempty"`
}

type PipelineStatus map[string]any

type SelfHostedBackend interface {
	SendOffer(ctx context.Context, baseURL string, offer webrtc.SessionDescription, pipelineID string, params StreamParams) (ScopeAnswer, error)
	SendICECandidate(ctx context.Context, baseURL string, sessionID string, candidate webrtc.ICECandidateInit) error
	ICEServers(ctx context.Context, baseURL string) ([]webrtc.ICEServer, error)
	Probe(ctx context.Context, baseURL string) ProbeResult
	PipelineStatus(ctx context.Context, baseURL string) (PipelineStatus, error)
	LoadPipeline(ctx context.Context, baseURL string, pipelineID string) error
}

// ParamsPatch carries the parameters a control request wants to change.
// Nil fields keep their current value.
type ParamsPatch struct {
	ModelID        *string  `json:"model_id"`
	Prompt         *string  `json:"prompt"`
	NegativePrompt *string  `json:"negative_prompt"`
	GuidanceScale  *float64 `json:"guidance_scale"`
	Delta          *float64 `json:"delta"`
	DepthScale     *float64 `json:"depth_scale"`
	CannyScale     *float64 `json:"canny_scale"`
	TileScale      *float64 `json:"tile_scale"`
}

func (p ParamsPatch) Apply(params StreamParams) StreamParams {
	if p.ModelID != nil && *p.ModelID != "" {
		params.ModelID = *p.ModelID
	}
	if p.Prompt != nil {
		params.Prompt = *p.Prompt
	}
	if p.NegativePrompt != nil {
		params.NegativePrompt = *p.NegativePrompt
	}
	if p.GuidanceScale != nil {
		params.GuidanceScale = *p.GuidanceScale
	}
	if p.Delta != nil {
		params.Delta = *p.Delta
	}
	if p.DepthScale != nil {
		params.DepthScale = *p.DepthScale
	}
	if p.CannyScale != nil {
		params.CannyScale = *p.CannyScale
	}
	if p.TileScale != nil {
		params.TileScale = *p.TileScale
	}
	return params
}
