// Package selfhosted talks to a Scope instance, locally or behind a
// RunPod style proxy.
package selfhosted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/valyala/fasthttp"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

const userAgent = "DaydreamBridge/1.0"

var DefaultICEServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

type Config struct {
	OfferTimeout   time.Duration
	RequestTimeout time.Duration
	LoadTimeout    time.Duration
	NoiseScale     float64
	InputMode      string
}

type Client struct {
	doer backend.Doer

	mu  sync.RWMutex
	cfg Config
}

func NewClient(doer backend.Doer, cfg Config) *Client {
	return &Client{doer: doer, cfg: cfg}
}

func (c *Client) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func apiURL(baseURL, endpoint string) string {
	return strings.TrimRight(baseURL, "/") + "/api/v1" + endpoint
}

// request carries the headers proxies in front of Scope insist on.
func request(baseURL, method, url, operation string, timeout time.Duration) backend.Request {
	base := strings.TrimRight(baseURL, "/")
	return backend.Request{
		Method:      method,
		URL:         url,
		ContentType: "application/json",
		Timeout:     timeout,
		Operation:   operation,
		Headers: map[string]string{
			"Accept":     "application/json",
			"Referer":    base + "/",
			"Origin":     base,
			"User-Agent": userAgent,
		},
	}
}

type prompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type initialParameters struct {
	InputMode         string   `json:"input_mode"`
	Prompts           []prompt `json:"prompts"`
	NegativePrompt    string   `json:"negative_prompt"`
	DenoisingStepList []int    `json:"denoising_step_list"`
	GuidanceScale     float64  `json:"guidance_scale"`
	NoiseScale        float64  `json:"noise_scale"`
	NoiseController   bool     `json:"noise_controller"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	PipelineIDs       []string `json:"pipeline_ids"`
}

type offerPayload struct {
	SDP               string            `json:"sdp"`
	Type              string            `json:"type"`
	InitialParameters initialParameters `json:"initialParameters"`
}

// SendOffer posts the relay page's offer together with the initial
// generation parameters and returns Scope's answer.
func (c *Client) SendOffer(ctx context.Context, baseURL string, offer webrtc.SessionDescription, pipelineID string, params domain.StreamParams) (domain.ScopeAnswer, error) {
	cfg := c.config()
	inputMode := cfg.InputMode
	if inputMode == "" {
		inputMode = "video"
	}

	payload := offerPayload{
		SDP:  offer.SDP,
		Type: offer.Type.String(),
		InitialParameters: initialParameters{
			InputMode:         inputMode,
			Prompts:           []prompt{{Text: params.Prompt, Weight: 1.0}},
			NegativePrompt:    params.NegativePrompt,
			DenoisingStepList: params.DenoisingSteps,
			GuidanceScale:     params.GuidanceScale,
			NoiseScale:        cfg.NoiseScale,
			NoiseController:   true,
			Width:             params.Width,
			Height:            params.Height,
			PipelineIDs:       []string{pipelineID},
		},
	}

	req := request(baseURL, fasthttp.MethodPost, apiURL(baseURL, "/webrtc/offer"), "offer", cfg.OfferTimeout)
	var answer domain.ScopeAnswer
	if _, err := backend.DoJSON(ctx, c.doer, req, payload, &answer); err != nil {
		return domain.ScopeAnswer{}, fmt.Errorf("scope offer: %w", err)
	}
	if answer.SDP == "" {
		return domain.ScopeAnswer{}, errors.New("scope offer: empty answer")
	}
	if answer.Type == "" {
		answer.Type = webrtc.SDPTypeAnswer.String()
	}
	slog.Info("connected to scope", "sessionID", answer.SessionID, "pipeline", pipelineID)
	return answer, nil
}

type candidatesPayload struct {
	Candidates []webrtc.ICECandidateInit `json:"candidates"`
}

func (c *Client) SendICECandidate(ctx context.Context, baseURL string, sessionID string, candidate webrtc.ICECandidateInit) error {
	if sessionID == "" {
		return domain.ErrNotStreaming
	}
	cfg := c.config()
	req := request(baseURL, fasthttp.MethodPatch, apiURL(baseURL, "/webrtc/offer/"+sessionID), "ice_candidate", cfg.RequestTimeout)
	payload := candidatesPayload{Candidates: []webrtc.ICECandidateInit{candidate}}
	if _, err := backend.DoJSON(ctx, c.doer, req, payload, nil); err != nil {
		return fmt.Errorf("scope ice candidate: %w", err)
	}
	return nil
}

// ICEServers falls back to public STUN when Scope cannot be asked.
func (c *Client) ICEServers(ctx context.Context, baseURL string) ([]webrtc.ICEServer, error) {
	var out struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	req := request(baseURL, fasthttp.MethodGet, apiURL(baseURL, "/webrtc/ice-servers"), "ice_servers", c.config().RequestTimeout)
	if _, err := backend.DoJSON(ctx, c.doer, req, nil, &out); err != nil {
		slog.Warn("failed to get ice servers from scope", "error", err)
		return DefaultICEServers, err
	}
	if len(out.ICEServers) == 0 {
		return DefaultICEServers, nil
	}
	return out.ICEServers, nil
}

// Probe reports whether baseURL answers on any of health, ice-servers,
// pipeline status or the root page, in that order, and collects the
// available pipelines when it does.
func (c *Client) Probe(ctx context.Context, baseURL string) domain.ProbeResult {
	result := domain.ProbeResult{URL: baseURL, Pipelines: []string{}}
	timeout := c.config().RequestTimeout

	base := strings.TrimRight(baseURL, "/")
	endpoints := []string{
		base + "/health",
		apiURL(baseURL, "/webrtc/ice-servers"),
		apiURL(baseURL, "/pipeline/status"),
		base,
	}

	var lastErr error
	for _, url := range endpoints {
		if _, err := c.doer.Do(ctx, request(baseURL, fasthttp.MethodGet, url, "probe", timeout)); err != nil {
			lastErr = err
			slog.Debug("scope probe failed", "url", url, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		result.Reachable = true
		break
	}

	if !result.Reachable {
		if lastErr != nil {
			result.Error = lastErr.Error()
		}
		return result
	}

	if pipelines, err := c.Pipelines(ctx, baseURL); err == nil {
		result.Pipelines = pipelines
	}
	result.ICEServers, _ = c.ICEServers(ctx, baseURL)
	return result
}

// Pipelines lists the pipeline ids Scope publishes schemas for.
func (c *Client) Pipelines(ctx context.Context, baseURL string) ([]string, error) {
	var out struct {
		Pipelines map[string]any `json:"pipelines"`
	}
	req := request(baseURL, fasthttp.MethodGet, apiURL(baseURL, "/pipelines/schemas"), "pipelines", c.config().RequestTimeout)
	if _, err := backend.DoJSON(ctx, c.doer, req, nil, &out); err != nil {
		return nil, fmt.Errorf("scope pipelines: %w", err)
	}
	ids := make([]string, 0, len(out.Pipelines))
	for id := range out.Pipelines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (c *Client) PipelineStatus(ctx context.Context, baseURL string) (domain.PipelineStatus, error) {
	status := domain.PipelineStatus{}
	req := request(baseURL, fasthttp.MethodGet, apiURL(baseURL, "/pipeline/status"), "pipeline_status", c.config().RequestTimeout)
	if _, err := backend.DoJSON(ctx, c.doer, req, nil, &status); err != nil {
		return domain.PipelineStatus{"status": "unknown"}, fmt.Errorf("scope pipeline status: %w", err)
	}
	return status, nil
}

func (c *Client) LoadPipeline(ctx context.Context, baseURL string, pipelineID string) error {
	payload := map[string][]string{"pipeline_ids": {pipelineID}}
	req := request(baseURL, fasthttp.MethodPost, apiURL(baseURL, "/pipeline/load"), "pipeline_load", c.config().LoadTimeout)
	if _, err := backend.DoJSON(ctx, c.doer, req, payload, nil); err != nil {
		return fmt.Errorf("scope pipeline load %s: %w", pipelineID, err)
	}
	slog.Info("scope pipeline load initiated", "pipeline", pipelineID)
	return nil
}
