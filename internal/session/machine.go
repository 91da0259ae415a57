// Package session holds the single authoritative stream session record.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

// Machine is the IDLE/STREAMING state machine. Every transition happens
// under one mutex so readers never observe a partially populated session.
type Machine struct {
	mu      sync.RWMutex
	current domain.StreamSession
	now     func() time.Time
}

func NewMachine() *Machine {
	return &Machine{
		current: domain.StreamSession{State: domain.SessionIdle},
		now:     time.Now,
	}
}

// Start moves IDLE to STREAMING. A running session is left untouched and
// ErrAlreadyStreaming is returned.
func (m *Machine) Start(mode domain.BackendMode, routing domain.RoutingInputs) (domain.StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.State != domain.SessionIdle {
		return domain.StreamSession{}, domain.ErrAlreadyStreaming
	}
	if err := routing.Validate(mode); err != nil {
		return domain.StreamSession{}, err
	}

	m.current = domain.StreamSession{
		State:      domain.SessionStreaming,
		Mode:       mode,
		SessionID:  routing.SessionID,
		InboundURL: routing.InboundURL,
		PipelineID: routing.PipelineID,
		Generation: m.current.Generation + 1,
		StartedAt:  m.now(),
	}
	metrics.SessionStreaming.Set(1)
	metrics.SessionsStartedTotal.WithLabelValues(string(mode)).Inc()
	slog.Info("session started", "mode", mode, "sessionID", routing.SessionID, "generation", m.current.Generation)

	return m.current, nil
}

// RecordRouting overwrites the outbound url of the session identified by
// generation. Results from a stopped session are rejected.
func (m *Machine) RecordRouting(generation uint64, outboundURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.State != domain.SessionStreaming || m.current.Generation != generation {
		return domain.ErrStaleSession
	}
	if m.current.OutboundURL != outboundURL {
		slog.Info("outbound url recorded", "url", outboundURL, "generation", generation)
	}
	m.current.OutboundURL = outboundURL
	return nil
}

// Stop clears the session and bumps the generation. It reports false when
// there was nothing to stop.
func (m *Machine) Stop() (domain.StreamSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.State == domain.SessionIdle {
		return domain.StreamSession{}, false
	}

	stopped := m.current
	m.current = domain.StreamSession{
		State:      domain.SessionIdle,
		Generation: stopped.Generation + 1,
	}
	metrics.SessionStreaming.Set(0)
	slog.Info("session stopped", "mode", stopped.Mode, "sessionID", stopped.SessionID)

	return stopped, true
}

func (m *Machine) Snapshot() domain.StreamSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Generation
}

// Valid reports whether generation still names the running session.
func (m *Machine) Valid(generation uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.State == domain.SessionStreaming && m.current.Generation == generation
}
