package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/capture"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/config"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

type fakeCloud struct {
	mu       sync.Mutex
	created  int
	updated  []domain.StreamParams
	deleted  []string
	exchange func(ctx context.Context, url string, offer []byte) ([]byte, string, error)
}

func (c *fakeCloud) CreateStream(ctx context.Context, params domain.StreamParams) (domain.CloudStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	return domain.CloudStream{ID: "stream-1", WHIPURL: "https://ingest.test/whip", ModelID: params.ModelID}, nil
}

func (c *fakeCloud) UpdateStream(ctx context.Context, streamID string, params domain.StreamParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, params)
	return nil
}

func (c *fakeCloud) DeleteStream(ctx context.Context, streamID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, streamID)
	return nil
}

func (c *fakeCloud) ExchangeSDP(ctx context.Context, url string, offer []byte) ([]byte, string, error) {
	if c.exchange != nil {
		return c.exchange(ctx, url, offer)
	}
	return []byte("answer for " + url), "https://playback.test/whep", nil
}

type sentCandidate struct {
	baseURL   string
	sessionID string
	candidate string
}

type fakeScope struct {
	mu         sync.Mutex
	offers     []webrtc.SessionDescription
	candidates []sentCandidate
	release    chan struct{}
}

func (s *fakeScope) SendOffer(ctx context.Context, baseURL string, offer webrtc.SessionDescription, pipelineID string, params domain.StreamParams) (domain.ScopeAnswer, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return domain.ScopeAnswer{}, ctx.Err()
		}
	}
	s.mu.Lock()
	s.offers = append(s.offers, offer)
	s.mu.Unlock()
	return domain.ScopeAnswer{SDP: "scope answer", Type: "answer", SessionID: "scope-session"}, nil
}

func (s *fakeScope) SendICECandidate(ctx context.Context, baseURL string, sessionID string, candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, sentCandidate{baseURL: baseURL, sessionID: sessionID, candidate: candidate.Candidate})
	return nil
}

func (s *fakeScope) sent() []sentCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentCandidate(nil), s.candidates...)
}

func (s *fakeScope) ICEServers(ctx context.Context, baseURL string) ([]webrtc.ICEServer, error) {
	return []webrtc.ICEServer{{URLs: []string{"turn:" + baseURL}}}, nil
}

func (s *fakeScope) Probe(ctx context.Context, baseURL string) domain.ProbeResult {
	return domain.ProbeResult{URL: baseURL, Reachable: true}
}

func (s *fakeScope) PipelineStatus(ctx context.Context, baseURL string) (domain.PipelineStatus, error) {
	return domain.PipelineStatus{"status": "loaded"}, nil
}

func (s *fakeScope) LoadPipeline(ctx context.Context, baseURL string, pipelineID string) error {
	return nil
}

type countingViewers struct {
	mu     sync.Mutex
	frames int
}

func (v *countingViewers) Broadcast(frame []byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames++
	return 1
}

func (v *countingViewers) Len() int { return 1 }

func newTestBridge(t *testing.T) (*Bridge, *fakeCloud, *fakeScope) {
	t.Helper()
	cfg := config.DefaultAppConfig()
	cfg.Exchange.SweepIntervalMs = 0
	cfg.Pipeline.Width, cfg.Pipeline.Height = 32, 32

	cloud := &fakeCloud{}
	scope := &fakeScope{}
	b := NewBridge(Deps{
		Cloud:      cloud,
		SelfHosted: scope,
		Source:     capture.NewLatest(),
		Viewers:    &countingViewers{},
	}, cfg)
	t.Cleanup(b.Close)
	return b, cloud, scope
}

func waitResult(t *testing.T, b *Bridge, id string) domain.PendingExchange {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ex, err := b.Poll(id)
		if err != nil {
			t.Fatalf("Poll(%s) error = %v", id, err)
		}
		if ex.Terminal() {
			return ex
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("exchange %s still pending", id)
	return domain.PendingExchange{}
}

func cloudStart() StartRequest {
	return StartRequest{Mode: domain.BackendCloud, Capture: CaptureTest}
}

func TestCloudWHIPRecordsPlaybackBeforeReady(t *testing.T) {
	b, _, _ := newTestBridge(t)

	if _, err := b.SubmitOffer(domain.ExchangeWHEP, []byte("offer")); !errors.Is(err, domain.ErrNoOutboundURL) {
		t.Fatalf("SubmitOffer(whep) while idle error = %v, want ErrNoOutboundURL", err)
	}

	sess, err := b.Start(context.Background(), cloudStart())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sess.SessionID != "stream-1" || sess.InboundURL != "https://ingest.test/whip" {
		t.Fatalf("Start() session = %+v", sess)
	}

	if _, err := b.SubmitOffer(domain.ExchangeWHEP, []byte("offer")); !errors.Is(err, domain.ErrNoOutboundURL) {
		t.Fatalf("SubmitOffer(whep) before whip error = %v, want ErrNoOutboundURL", err)
	}

	id, kind, err := b.SubmitAuto([]byte("offer"))
	if err != nil {
		t.Fatalf("SubmitAuto() error = %v", err)
	}
	if kind != domain.ExchangeWHIP {
		t.Fatalf("SubmitAuto() kind = %s, want whip", kind)
	}

	ex := waitResult(t, b, id)
	if ex.Status != domain.ExchangeReady || string(ex.Answer) != "answer for https://ingest.test/whip" {
		t.Fatalf("whip result = %+v", ex)
	}
	if got := b.Status().Session.OutboundURL; got != "https://playback.test/whep" {
		t.Fatalf("OutboundURL = %q after ready whip", got)
	}

	whepID, err := b.SubmitOffer(domain.ExchangeWHEP, []byte("offer"))
	if err != nil {
		t.Fatalf("SubmitOffer(whep) error = %v", err)
	}
	if ex := waitResult(t, b, whepID); string(ex.Answer) != "answer for https://playback.test/whep" {
		t.Fatalf("whep answer = %q", ex.Answer)
	}
}

func TestStartWhileStreaming(t *testing.T) {
	b, cloud, _ := newTestBridge(t)

	if _, err := b.Start(context.Background(), cloudStart()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	before := b.Status().Session

	if _, err := b.Start(context.Background(), cloudStart()); !errors.Is(err, domain.ErrAlreadyStreaming) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStreaming", err)
	}
	if cloud.created != 1 {
		t.Fatalf("CreateStream called %d times", cloud.created)
	}
	if after := b.Status().Session; after != before {
		t.Fatalf("session changed by rejected start: %+v -> %+v", before, after)
	}
}

func TestStopCancelsInflightAndDeletesStream(t *testing.T) {
	b, cloud, _ := newTestBridge(t)
	cloud.exchange = func(ctx context.Context, url string, offer []byte) ([]byte, string, error) {
		<-ctx.Done()
		return nil, "", ctx.Err()
	}

	if _, err := b.Start(context.Background(), cloudStart()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	id, err := b.SubmitOffer(domain.ExchangeWHIP, []byte("offer"))
	if err != nil {
		t.Fatalf("SubmitOffer() error = %v", err)
	}

	if !b.Stop(context.Background()) {
		t.Fatal("Stop() = false, want true")
	}
	ex := waitResult(t, b, id)
	if ex.Status != domain.ExchangeError || ex.Error != "session stopped" {
		t.Fatalf("in-flight exchange after stop = %+v", ex)
	}
	if len(cloud.deleted) != 1 || cloud.deleted[0] != "stream-1" {
		t.Fatalf("deleted streams = %v", cloud.deleted)
	}

	if b.Stop(context.Background()) {
		t.Fatal("second Stop() = true, want false")
	}
	if len(cloud.deleted) != 1 {
		t.Fatalf("second stop deleted again: %v", cloud.deleted)
	}
	if st := b.Status(); st.Session.IsStreaming() || st.Session.OutboundURL != "" {
		t.Fatalf("session after stop = %+v", st.Session)
	}
}

func TestStopJoinsFrameLoop(t *testing.T) {
	b, _, _ := newTestBridge(t)
	viewers := b.deps.Viewers.(*countingViewers)

	if _, err := b.Start(context.Background(), cloudStart()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for b.Status().Pipeline.FramesSent == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Stop(context.Background())

	viewers.mu.Lock()
	frames := viewers.frames
	viewers.mu.Unlock()
	if frames == 0 {
		t.Fatal("no frames broadcast while streaming")
	}

	time.Sleep(100 * time.Millisecond)
	viewers.mu.Lock()
	defer viewers.mu.Unlock()
	if viewers.frames != frames {
		t.Fatalf("frames broadcast after stop: %d -> %d", frames, viewers.frames)
	}
	if b.Status().Pipeline.Placeholders == 0 {
		t.Fatal("test capture should produce placeholder frames")
	}
}

func TestSelfHostedQueuesCandidatesUntilAnswer(t *testing.T) {
	b, _, scope := newTestBridge(t)
	scope.release = make(chan struct{})

	if _, err := b.Start(context.Background(), StartRequest{Mode: domain.BackendSelfHosted}); !errors.Is(err, domain.ErrIncompleteRoute) {
		t.Fatalf("Start() without url error = %v, want ErrIncompleteRoute", err)
	}

	sess, err := b.Start(context.Background(), StartRequest{
		Mode:          domain.BackendSelfHosted,
		Capture:       CaptureTest,
		SelfHostedURL: " http://scope.test/ ",
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sess.InboundURL != "http://scope.test" || sess.PipelineID != "streamdiffusionv2" {
		t.Fatalf("Start() session = %+v", sess)
	}

	id, err := b.SubmitOffer(domain.ExchangeScope, []byte(`{"type":"offer","sdp":"v=0"}`))
	if err != nil {
		t.Fatalf("SubmitOffer(scope) error = %v", err)
	}

	candidate := domain.IceCandidate{SessionID: "scope-session", Init: webrtc.ICECandidateInit{Candidate: "candidate:1"}}
	queued, err := b.AddCandidate(context.Background(), candidate)
	if err != nil || !queued {
		t.Fatalf("AddCandidate() before answer = %v, %v, want queued", queued, err)
	}
	if n := len(scope.sent()); n != 0 {
		t.Fatalf("%d candidates forwarded before session id known", n)
	}

	close(scope.release)
	ex := waitResult(t, b, id)
	if ex.Status != domain.ExchangeReady || ex.UpstreamSessionID != "scope-session" {
		t.Fatalf("scope result = %+v", ex)
	}
	sent := scope.sent()
	if len(sent) != 1 || sent[0] != (sentCandidate{"http://scope.test", "scope-session", "candidate:1"}) {
		t.Fatalf("flushed candidates = %+v", sent)
	}
	if scope.offers[0].SDP != "v=0" || scope.offers[0].Type != webrtc.SDPTypeOffer {
		t.Fatalf("offer sent = %+v", scope.offers[0])
	}

	candidate.Init.Candidate = "candidate:2"
	if queued, err := b.AddCandidate(context.Background(), candidate); err != nil || queued {
		t.Fatalf("AddCandidate() after answer = %v, %v, want forwarded", queued, err)
	}
	candidate.SessionID = "other"
	if _, err := b.AddCandidate(context.Background(), candidate); !errors.Is(err, domain.ErrStaleSession) {
		t.Fatalf("AddCandidate() wrong session error = %v, want ErrStaleSession", err)
	}
	if n := len(scope.sent()); n != 2 {
		t.Fatalf("forwarded %d candidates, want 2", n)
	}
}

func TestAddCandidateRejectsCloudAndIdle(t *testing.T) {
	b, _, _ := newTestBridge(t)
	c := domain.IceCandidate{SessionID: "s", Init: webrtc.ICECandidateInit{Candidate: "candidate:1"}}

	if _, err := b.AddCandidate(context.Background(), domain.IceCandidate{}); !errors.Is(err, domain.ErrInvalidCandidate) {
		t.Fatalf("AddCandidate(empty) error = %v", err)
	}
	if _, err := b.AddCandidate(context.Background(), c); !errors.Is(err, domain.ErrStaleSession) {
		t.Fatalf("AddCandidate() while idle error = %v", err)
	}
	if _, err := b.Start(context.Background(), cloudStart()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := b.AddCandidate(context.Background(), c); !errors.Is(err, domain.ErrWrongBackend) {
		t.Fatalf("AddCandidate() in cloud mode error = %v", err)
	}
	if _, err := b.SubmitOffer(domain.ExchangeScope, []byte("v=0")); !errors.Is(err, domain.ErrWrongBackend) {
		t.Fatalf("SubmitOffer(scope) in cloud mode error = %v", err)
	}
}

func TestUpdateParams(t *testing.T) {
	b, cloud, _ := newTestBridge(t)
	prompt := "oil painting"

	params, err := b.UpdateParams(context.Background(), domain.ParamsPatch{Prompt: &prompt})
	if err != nil {
		t.Fatalf("UpdateParams() idle error = %v", err)
	}
	if params.Prompt != prompt || len(cloud.updated) != 0 {
		t.Fatalf("idle update: params %q, cloud updates %d", params.Prompt, len(cloud.updated))
	}

	if _, err := b.Start(context.Background(), cloudStart()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	delta := 0.3
	if _, err := b.UpdateParams(context.Background(), domain.ParamsPatch{Delta: &delta}); err != nil {
		t.Fatalf("UpdateParams() streaming error = %v", err)
	}
	if len(cloud.updated) != 1 {
		t.Fatalf("cloud updates = %d, want 1", len(cloud.updated))
	}
	if got := cloud.updated[0]; got.Prompt != prompt || got.Delta != delta {
		t.Fatalf("pushed params = %+v", got)
	}
}

func TestSubmitAutoWhileIdle(t *testing.T) {
	b, _, _ := newTestBridge(t)
	if _, _, err := b.SubmitAuto([]byte("v=0")); !errors.Is(err, domain.ErrNotStreaming) {
		t.Fatalf("SubmitAuto() error = %v, want ErrNotStreaming", err)
	}
}

func TestSelfHostedHelpers(t *testing.T) {
	b, _, _ := newTestBridge(t)

	if servers := b.ICEServers(context.Background()); len(servers) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("ICEServers() without url = %+v", servers)
	}
	if res := b.ProbeSelfHosted(context.Background(), ""); res.Reachable || res.Error == "" {
		t.Fatalf("ProbeSelfHosted(\"\") = %+v", res)
	}
	if _, err := b.PipelineStatus(context.Background(), ""); !errors.Is(err, domain.ErrNoBackendURL) {
		t.Fatalf("PipelineStatus(\"\") error = %v", err)
	}

	if res := b.ProbeSelfHosted(context.Background(), "http://scope.test/"); !res.Reachable || res.URL != "http://scope.test" {
		t.Fatalf("ProbeSelfHosted() = %+v", res)
	}
	id, err := b.LoadPipeline(context.Background(), "http://scope.test", "")
	if err != nil || id != "streamdiffusionv2" {
		t.Fatalf("LoadPipeline() = %q, %v", id, err)
	}

	if _, err := b.Start(context.Background(), StartRequest{Mode: domain.BackendSelfHosted, Capture: CaptureTest, SelfHostedURL: "http://scope.test"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if servers := b.ICEServers(context.Background()); servers[0].URLs[0] != "turn:http://scope.test" {
		t.Fatalf("ICEServers() while streaming = %+v", servers)
	}
}

func TestParseOffer(t *testing.T) {
	if got := parseOffer([]byte("v=0\r\n")); got.SDP != "v=0\r\n" || got.Type != webrtc.SDPTypeOffer {
		t.Fatalf("parseOffer(raw) = %+v", got)
	}
	if got := parseOffer([]byte(`{"sdp":"v=1"}`)); got.SDP != "v=1" || got.Type != webrtc.SDPTypeOffer {
		t.Fatalf("parseOffer(json) = %+v", got)
	}
	if got := parseOffer([]byte(`{"sdp":"v=2","type":""}`)); got.SDP != "v=2" || got.Type != webrtc.SDPTypeOffer {
		t.Fatalf("parseOffer(empty type) = %+v", got)
	}
}
