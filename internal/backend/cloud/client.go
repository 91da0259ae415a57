// Package cloud talks to the Daydream stream API.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

const (
	pipelineName      = "streamdiffusion"
	PlaybackURLHeader = "livepeer-playback-url"
)

var ErrNoAPIKey = errors.New("daydream api key is not configured")

type Config struct {
	BaseURL       string
	APIKey        string
	ClientSource  string
	CreateTimeout time.Duration
	UpdateTimeout time.Duration
	SDPTimeout    time.Duration
}

type Client struct {
	doer backend.Doer

	mu  sync.RWMutex
	cfg Config
}

func NewClient(doer backend.Doer, cfg Config) *Client {
	return &Client{doer: doer, cfg: cfg}
}

// SetConfig swaps credentials and timeouts, e.g. after a config reload.
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

func (c *Client) request(cfg Config, method, path, operation string, timeout time.Duration) (backend.Request, error) {
	if cfg.APIKey == "" {
		return backend.Request{}, ErrNoAPIKey
	}
	req := backend.Request{
		Method:    method,
		URL:       strings.TrimRight(cfg.BaseURL, "/") + path,
		Bearer:    cfg.APIKey,
		Timeout:   timeout,
		Operation: operation,
	}
	if cfg.ClientSource != "" {
		req.Headers = map[string]string{"x-client-source": cfg.ClientSource}
	}
	return req, nil
}

type streamPayload struct {
	Pipeline string        `json:"pipeline"`
	Params   streamRequest `json:"params"`
}

type streamRequest struct {
	ModelID           string       `json:"model_id"`
	Prompt            string       `json:"prompt"`
	NegativePrompt    string       `json:"negative_prompt"`
	GuidanceScale     float64      `json:"guidance_scale"`
	Delta             float64      `json:"delta"`
	Width             int          `json:"width,omitempty"`
	Height            int          `json:"height,omitempty"`
	NumInferenceSteps int          `json:"num_inference_steps,omitempty"`
	DoAddNoise        *bool        `json:"do_add_noise,omitempty"`
	TIndexList        []int        `json:"t_index_list,omitempty"`
	ControlNets       []ControlNet `json:"controlnets,omitempty"`
}

type streamResponse struct {
	ID      string `json:"id"`
	WHIPURL string `json:"whip_url"`
	Params  struct {
		ModelID string `json:"model_id"`
	} `json:"params"`
}

// CreateStream creates a stream resource and returns its WHIP ingest url.
func (c *Client) CreateStream(ctx context.Context, params domain.StreamParams) (domain.CloudStream, error) {
	cfg := c.config()
	req, err := c.request(cfg, fasthttp.MethodPost, "/streams", "create_stream", cfg.CreateTimeout)
	if err != nil {
		return domain.CloudStream{}, err
	}

	addNoise := params.DoAddNoise
	payload := streamPayload{
		Pipeline: pipelineName,
		Params: streamRequest{
			ModelID:           params.ModelID,
			Prompt:            params.Prompt,
			NegativePrompt:    params.NegativePrompt,
			GuidanceScale:     params.GuidanceScale,
			Delta:             params.Delta,
			Width:             params.Width,
			Height:            params.Height,
			NumInferenceSteps: params.NumInferenceSteps,
			DoAddNoise:        &addNoise,
			TIndexList:        params.TIndexList,
			ControlNets:       ControlNetsFor(params, false),
		},
	}

	var out streamResponse
	if _, err := backend.DoJSON(ctx, c.doer, req, payload, &out); err != nil {
		return domain.CloudStream{}, fmt.Errorf("create stream: %w", err)
	}
	if out.ID == "" || out.WHIPURL == "" {
		return domain.CloudStream{}, fmt.Errorf("create stream: response is missing id or whip_url")
	}

	stream := domain.CloudStream{ID: out.ID, WHIPURL: out.WHIPURL, ModelID: out.Params.ModelID}
	if stream.ModelID == "" {
		stream.ModelID = params.ModelID
	}
	slog.Info("stream created", "id", stream.ID, "whipURL", stream.WHIPURL)
	return stream, nil
}

// UpdateStream pushes live parameters. Every supported ControlNet is sent,
// including ones at zero scale, so a slider moved to zero takes effect.
func (c *Client) UpdateStream(ctx context.Context, streamID string, params domain.StreamParams) error {
	if streamID == "" {
		return domain.ErrNotStreaming
	}
	cfg := c.config()
	req, err := c.request(cfg, fasthttp.MethodPatch, "/streams/"+streamID, "update_stream", cfg.UpdateTimeout)
	if err != nil {
		return err
	}

	payload := streamPayload{
		Pipeline: pipelineName,
		Params: streamRequest{
			ModelID:        params.ModelID,
			Prompt:         params.Prompt,
			NegativePrompt: params.NegativePrompt,
			GuidanceScale:  params.GuidanceScale,
			Delta:          params.Delta,
			ControlNets:    ControlNetsFor(params, true),
		},
	}
	if _, err := backend.DoJSON(ctx, c.doer, req, payload, nil); err != nil {
		return fmt.Errorf("update stream %s: %w", streamID, err)
	}
	slog.Debug("stream updated", "id", streamID, "delta", params.Delta)
	return nil
}

func (c *Client) DeleteStream(ctx context.Context, streamID string) error {
	cfg := c.config()
	req, err := c.request(cfg, fasthttp.MethodDelete, "/streams/"+streamID, "delete_stream", cfg.UpdateTimeout)
	if err != nil {
		return err
	}
	if _, err := c.doer.Do(ctx, req); err != nil {
		return fmt.Errorf("delete stream %s: %w", streamID, err)
	}
	return nil
}

// ExchangeSDP posts an SDP offer to a WHIP or WHEP endpoint.
func (c *Client) ExchangeSDP(ctx context.Context, url string, offer []byte) ([]byte, string, error) {
	cfg := c.config()
	req := backend.Request{
		Method:      fasthttp.MethodPost,
		URL:         url,
		ContentType: "application/sdp",
		Bearer:      cfg.APIKey,
		Body:        offer,
		Timeout:     cfg.SDPTimeout,
		Operation:   "exchange_sdp",
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if len(resp.Body) == 0 {
		return nil, "", errors.New("empty sdp answer")
	}
	return resp.Body, resp.HeaderValue(PlaybackURLHeader), nil
}
