package session

import (
	"errors"
	"testing"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
)

func cloudRouting() domain.RoutingInputs {
	return domain.RoutingInputs{SessionID: "str_1", InboundURL: "https://example.test/whip/str_1"}
}

func TestMachineStart(t *testing.T) {
	t.Run("idle to streaming", func(t *testing.T) {
		m := NewMachine()
		s, err := m.Start(domain.BackendCloud, cloudRouting())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if s.State != domain.SessionStreaming {
			t.Errorf("Start() state = %v, want %v", s.State, domain.SessionStreaming)
		}
		if s.OutboundURL != "" {
			t.Errorf("Start() outbound url = %q, want empty", s.OutboundURL)
		}
	})

	t.Run("already streaming leaves session untouched", func(t *testing.T) {
		m := NewMachine()
		first, err := m.Start(domain.BackendCloud, cloudRouting())
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		_, err = m.Start(domain.BackendSelfHosted, domain.RoutingInputs{InboundURL: "http://scope.test"})
		if !errors.Is(err, domain.ErrAlreadyStreaming) {
			t.Fatalf("Start() error = %v, want %v", err, domain.ErrAlreadyStreaming)
		}
		if got := m.Snapshot(); got != first {
			t.Errorf("Snapshot() = %+v, want %+v", got, first)
		}
	})

	t.Run("already streaming wins over incomplete routing", func(t *testing.T) {
		m := NewMachine()
		if _, err := m.Start(domain.BackendCloud, cloudRouting()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if _, err := m.Start(domain.BackendCloud, domain.RoutingInputs{}); !errors.Is(err, domain.ErrAlreadyStreaming) {
			t.Errorf("Start() error = %v, want %v", err, domain.ErrAlreadyStreaming)
		}
	})

	t.Run("incomplete routing", func(t *testing.T) {
		m := NewMachine()
		if _, err := m.Start(domain.BackendCloud, domain.RoutingInputs{SessionID: "x"}); !errors.Is(err, domain.ErrIncompleteRoute) {
			t.Errorf("Start() error = %v, want %v", err, domain.ErrIncompleteRoute)
		}
		if m.Snapshot().State != domain.SessionIdle {
			t.Error("Start() with bad routing changed state")
		}
	})
}

func TestMachineStopIdempotent(t *testing.T) {
	m := NewMachine()
	if _, err := m.Start(domain.BackendCloud, cloudRouting()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, stopped := m.Stop(); !stopped {
		t.Error("Stop() first call = false, want true")
	}
	if _, stopped := m.Stop(); stopped {
		t.Error("Stop() second call = true, want false")
	}

	s := m.Snapshot()
	if s.State != domain.SessionIdle || s.SessionID != "" || s.InboundURL != "" || s.OutboundURL != "" {
		t.Errorf("Snapshot() after stop = %+v, want cleared idle session", s)
	}
}

func TestMachineRecordRouting(t *testing.T) {
	m := NewMachine()
	s, _ := m.Start(domain.BackendCloud, cloudRouting())

	if err := m.RecordRouting(s.Generation, "https://play.test/a"); err != nil {
		t.Fatalf("RecordRouting() error = %v", err)
	}
	if err := m.RecordRouting(s.Generation, "https://play.test/b"); err != nil {
		t.Fatalf("RecordRouting() error = %v", err)
	}
	if got := m.Snapshot().OutboundURL; got != "https://play.test/b" {
		t.Errorf("OutboundURL = %q, want overwritten value", got)
	}

	m.Stop()
	if err := m.RecordRouting(s.Generation, "https://play.test/c"); !errors.Is(err, domain.ErrStaleSession) {
		t.Errorf("RecordRouting() after stop error = %v, want %v", err, domain.ErrStaleSession)
	}

	next, _ := m.Start(domain.BackendCloud, cloudRouting())
	if next.Generation == s.Generation {
		t.Fatal("generation not advanced across restart")
	}
	if err := m.RecordRouting(s.Generation, "https://play.test/d"); !errors.Is(err, domain.ErrStaleSession) {
		t.Errorf("RecordRouting() with old generation error = %v, want %v", err, domain.ErrStaleSession)
	}
	if m.Snapshot().OutboundURL != "" {
		t.Error("stale RecordRouting() mutated new session")
	}
}
