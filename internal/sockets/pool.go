package sockets

import (
	"log/slog"
	"sync"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

// ViewerPool fans encoded frames out to every connected viewer.
type ViewerPool struct {
	mutex   sync.Mutex
	viewers map[string]domain.Viewer
}

func NewViewerPool() *ViewerPool {
	return &ViewerPool{
		viewers: make(map[string]domain.Viewer),
	}
}

// Register adds v, replacing and closing any viewer with the same id.
func (p *ViewerPool) Register(v domain.Viewer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if old, contains := p.viewers[v.ID()]; contains {
		_ = old.Close()
	}
	p.viewers[v.ID()] = v
	metrics.ViewersConnectedTotal.Inc()
	metrics.ActiveViewers.Set(float64(len(p.viewers)))
}

func (p *ViewerPool) Unregister(id string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.remove(id)
}

func (p *ViewerPool) remove(id string) (domain.Viewer, bool) {
	v, contains := p.viewers[id]
	if !contains {
		return nil, false
	}
	delete(p.viewers, id)
	metrics.ActiveViewers.Set(float64(len(p.viewers)))
	return v, true
}

// Broadcast offers frame to every viewer and prunes the ones that can no
// longer be delivered to. It returns the number of viewers that accepted
// the frame.
func (p *ViewerPool) Broadcast(frame []byte) int {
	p.mutex.Lock()
	targets := make([]domain.Viewer, 0, len(p.viewers))
	for _, v := range p.viewers {
		targets = append(targets, v)
	}
	p.mutex.Unlock()

	delivered := 0
	failed := make([]domain.Viewer, 0)
	for _, v := range targets {
		if err := v.Send(frame); err != nil {
			failed = append(failed, v)
			continue
		}
		delivered++
	}

	if len(failed) == 0 {
		return delivered
	}

	p.mutex.Lock()
	for _, v := range failed {
		// A reconnect may have replaced the entry with a new viewer.
		if current, ok := p.viewers[v.ID()]; ok && current == v {
			p.remove(v.ID())
			metrics.ViewersPrunedTotal.Inc()
		}
	}
	p.mutex.Unlock()

	for _, v := range failed {
		_ = v.Close()
		slog.Debug("pruned viewer", "id", v.ID())
	}
	return delivered
}

func (p *ViewerPool) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.viewers)
}

func (p *ViewerPool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for id, v := range p.viewers {
		_ = v.Close()
		delete(p.viewers, id)
	}
	metrics.ActiveViewers.Set(0)
}
