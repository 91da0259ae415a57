// Package ice relays trickled candidates from the relay page to the
// self-hosted backend.
package ice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

const DefaultMaxQueued = 64

type Generations interface {
	Valid(generation uint64) bool
}

// Relay queues candidates until the upstream session id is known and then
// forwards them in arrival order. mu is held across flush and forward so a
// newer candidate can never overtake a queued one.
type Relay struct {
	mu        sync.Mutex
	forwarder domain.CandidateForwarder
	sessions  Generations
	sessionID string
	queue     []webrtc.ICECandidateInit
	maxQueued int
}

func NewRelay(forwarder domain.CandidateForwarder, sessions Generations, maxQueued int) *Relay {
	if maxQueued <= 0 {
		maxQueued = DefaultMaxQueued
	}
	return &Relay{
		forwarder: forwarder,
		sessions:  sessions,
		maxQueued: maxQueued,
	}
}

// EnqueueOrForward queues the candidate while the upstream session is
// unknown and forwards it otherwise. A candidate addressed to some other
// session than the established one fails with ErrStaleSession. Forwarding
// errors are logged and do not fail the call.
func (r *Relay) EnqueueOrForward(ctx context.Context, c domain.IceCandidate) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		if len(r.queue) >= r.maxQueued {
			r.queue = r.queue[1:]
			metrics.ICECandidatesTotal.WithLabelValues("dropped").Inc()
			slog.Warn("ice queue full, dropping oldest candidate", "max", r.maxQueued)
		}
		r.queue = append(r.queue, c.Init)
		metrics.ICECandidatesTotal.WithLabelValues("queued").Inc()
		return true, nil
	}

	if c.SessionID != r.sessionID {
		return false, domain.ErrStaleSession
	}

	r.forward(ctx, c.Init)
	return false, nil
}

// OnSessionEstablished records the upstream session id and flushes the
// queue. Calls carrying the generation of a stopped session are ignored.
// Queued candidates are sent whatever id they were posted with: the relay
// page only learns the upstream id from the answer, and Reset already
// empties the queue between sessions.
func (r *Relay) OnSessionEstablished(generation uint64, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sessions.Valid(generation) {
		slog.Debug("ignoring session id from stale generation", "generation", generation)
		return
	}

	r.sessionID = sessionID
	queued := r.queue
	r.queue = nil

	if len(queued) > 0 {
		slog.Info("flushing queued ice candidates", "sessionID", sessionID, "count", len(queued))
	}
	for _, init := range queued {
		r.forward(context.Background(), init)
	}
}

func (r *Relay) forward(ctx context.Context, init webrtc.ICECandidateInit) {
	if err := r.forwarder.ForwardCandidate(ctx, r.sessionID, init); err != nil {
		metrics.ICECandidatesTotal.WithLabelValues("failed").Inc()
		slog.Warn("failed to forward ice candidate", "sessionID", r.sessionID, "error", err)
		return
	}
	metrics.ICECandidatesTotal.WithLabelValues("forwarded").Inc()
}

// Reset forgets the session and drops anything still queued.
func (r *Relay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = ""
	r.queue = nil
}

func (r *Relay) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Relay) Queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
