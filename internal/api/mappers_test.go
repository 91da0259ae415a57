package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/service"
)

func TestToBackendMode(t *testing.T) {
	cases := map[string]domain.BackendMode{
		"":            domain.BackendCloud,
		"daydream":    domain.BackendCloud,
		"cloud":       domain.BackendCloud,
		"scope":       domain.BackendSelfHosted,
		"self_hosted": domain.BackendSelfHosted,
		"Scope":       domain.BackendSelfHosted,
	}
	for name, want := range cases {
		got, err := ToBackendMode(name)
		if err != nil {
			t.Fatalf("ToBackendMode(%q) error = %v", name, err)
		}
		if got != want {
			t.Errorf("ToBackendMode(%q) = %s, want %s", name, got, want)
		}
	}
	if _, err := ToBackendMode("runpod"); !errors.Is(err, domain.ErrUnknownMode) {
		t.Fatalf("ToBackendMode(runpod) error = %v, want ErrUnknownMode", err)
	}
}

func TestStreamRequestToStartRequest(t *testing.T) {
	body := `{"backend":"scope","scope_url":"http://scope.test","pipeline_id":"longlive","prompt":"neon","delta":0.5,"capture":"test"}`
	var req StreamRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	start, err := req.ToStartRequest()
	if err != nil {
		t.Fatalf("ToStartRequest() error = %v", err)
	}
	if start.Mode != domain.BackendSelfHosted || start.Capture != service.CaptureTest {
		t.Fatalf("ToStartRequest() = %+v", start)
	}
	if start.SelfHostedURL != "http://scope.test" || start.PipelineID != "longlive" {
		t.Fatalf("ToStartRequest() routing = %+v", start)
	}

	params := start.Params.Apply(domain.DefaultStreamParams())
	if params.Prompt != "neon" || params.Delta != 0.5 {
		t.Fatalf("patched params = %+v", params)
	}
	if params.TileScale != domain.DefaultStreamParams().TileScale {
		t.Fatal("absent field should keep its value")
	}
}

func TestToApiStatus(t *testing.T) {
	idle := ToApiStatus(service.Status{Session: domain.StreamSession{State: domain.SessionIdle}})
	if idle.Streaming || idle.StreamID != nil || idle.BackendMode != nil || idle.StartedAt != nil {
		t.Fatalf("idle status = %+v", idle)
	}

	st := ToApiStatus(service.Status{Session: domain.StreamSession{
		State:      domain.SessionStreaming,
		Mode:       domain.BackendSelfHosted,
		SessionID:  "selfhosted-1",
		InboundURL: "http://scope.test",
	}})
	if !st.Streaming || *st.BackendMode != "scope" || *st.ScopeURL != "http://scope.test" || st.WHIPURL != nil {
		t.Fatalf("self-hosted status = %+v", st)
	}
}
