package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend/backendtest"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

func testConfig() Config {
	return Config{
		BaseURL:       backendtest.BaseURL + "/v1",
		APIKey:        "key",
		ClientSource:  "bridge-test",
		CreateTimeout: time.Second,
		UpdateTimeout: time.Second,
		SDPTimeout:    time.Second,
	}
}

func TestCreateStream(t *testing.T) {
	var got streamPayload
	doer := backendtest.NewServer(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/v1/streams" || !ctx.IsPost() {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		if string(ctx.Request.Header.Peek("x-client-source")) != "bridge-test" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetBodyString(`{"id":"str_1","whip_url":"https://ingest/whip/str_1","params":{"model_id":"stabilityai/sdxl-turbo"}}`)
	})

	c := NewClient(doer, testConfig())
	stream, err := c.CreateStream(context.Background(), domain.DefaultStreamParams())
	if err != nil {
		t.Fatalf("CreateStream() error = %v", err)
	}
	if stream.ID != "str_1" || stream.WHIPURL != "https://ingest/whip/str_1" {
		t.Errorf("CreateStream() = %+v", stream)
	}

	if got.Pipeline != "streamdiffusion" {
		t.Errorf("pipeline = %q, want streamdiffusion", got.Pipeline)
	}
	// Default canny scale is zero, so only depth and tile are requested.
	if len(got.Params.ControlNets) != 2 {
		t.Fatalf("controlnets = %+v, want depth and tile", got.Params.ControlNets)
	}
	if got.Params.ControlNets[0].Preprocessor != "depth_tensorrt" || got.Params.ControlNets[1].Preprocessor != "feedback" {
		t.Errorf("controlnets = %+v", got.Params.ControlNets)
	}
}

func TestCreateStreamMissingFields(t *testing.T) {
	doer := backendtest.NewServer(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"id":"str_1"}`)
	})
	if _, err := NewClient(doer, testConfig()).CreateStream(context.Background(), domain.DefaultStreamParams()); err == nil {
		t.Error("CreateStream() error = nil, want missing whip_url error")
	}
}

func TestNoAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	c := NewClient(nil, cfg)
	if _, err := c.CreateStream(context.Background(), domain.DefaultStreamParams()); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("CreateStream() error = %v, want %v", err, ErrNoAPIKey)
	}
}

func TestUpdateStreamSendsZeroScales(t *testing.T) {
	var got streamPayload
	var method string
	doer := backendtest.NewServer(t, func(ctx *fasthttp.RequestCtx) {
		method = string(ctx.Method())
		_ = json.Unmarshal(ctx.PostBody(), &got)
	})

	params := domain.DefaultStreamParams()
	params.Prompt = "watercolor"
	if err := NewClient(doer, testConfig()).UpdateStream(context.Background(), "str_1", params); err != nil {
		t.Fatalf("UpdateStream() error = %v", err)
	}
	if method != fasthttp.MethodPatch {
		t.Errorf("method = %s, want PATCH", method)
	}
	if got.Params.Prompt != "watercolor" || len(got.Params.ControlNets) != 3 {
		t.Errorf("update payload = %+v", got.Params)
	}
}

func TestExchangeSDP(t *testing.T) {
	doer := backendtest.NewServer(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.ContentType()) != "application/sdp" {
			ctx.SetStatusCode(fasthttp.StatusUnsupportedMediaType)
			return
		}
		ctx.Response.Header.Set("livepeer-playback-url", "https://play/whep/1")
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetBodyString("v=0 answer")
	})

	answer, playback, err := NewClient(doer, testConfig()).ExchangeSDP(context.Background(), backendtest.BaseURL+"/whip", []byte("v=0 offer"))
	if err != nil {
		t.Fatalf("ExchangeSDP() error = %v", err)
	}
	if string(answer) != "v=0 answer" || playback != "https://play/whep/1" {
		t.Errorf("ExchangeSDP() = %q, %q", answer, playback)
	}
}

func TestControlNetsFor(t *testing.T) {
	params := domain.DefaultStreamParams()
	params.ModelID = "stabilityai/sd-turbo"
	params.TileScale = 0.5
	params.CannyScale = 0.3

	cns := ControlNetsFor(params, false)
	if len(cns) != 2 {
		t.Fatalf("ControlNetsFor() = %+v, want depth and canny only", cns)
	}

	params.ModelID = "unknown/model"
	if cns := ControlNetsFor(params, true); cns != nil {
		t.Errorf("ControlNetsFor(unknown) = %+v, want nil", cns)
	}
}
