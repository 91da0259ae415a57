package sockets

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/domain"
	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

const (
	DefaultQueueSize    = 4
	DefaultWriteTimeout = 2 * time.Second
)

// Conn is the part of a websocket connection a viewer writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// WSViewer delivers frames over a websocket from its own writer goroutine,
// so a slow viewer only ever loses its own frames.
type WSViewer struct {
	id           string
	conn         Conn
	queue        chan []byte
	done         chan struct{}
	exited       chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func NewWSViewer(id string, conn Conn, queueSize int, writeTimeout time.Duration) *WSViewer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	v := &WSViewer{
		id:           id,
		conn:         conn,
		queue:        make(chan []byte, queueSize),
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go v.writeLoop()
	return v
}

func (v *WSViewer) ID() string {
	return v.id
}

// Send enqueues frame without blocking. A full queue drops the frame; a
// closed viewer reports ErrDelivery.
func (v *WSViewer) Send(frame []byte) error {
	select {
	case <-v.done:
		return domain.ErrDelivery
	default:
	}

	select {
	case v.queue <- frame:
	default:
		metrics.FrameDropsTotal.Inc()
	}
	return nil
}

func (v *WSViewer) writeLoop() {
	defer close(v.exited)
	for {
		select {
		case <-v.done:
			return
		case frame := <-v.queue:
			_ = v.conn.SetWriteDeadline(time.Now().Add(v.writeTimeout))
			if err := v.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				slog.Debug("viewer write failed", "id", v.id, "error", err)
				_ = v.Close()
				return
			}
		}
	}
}

// Done is closed once the viewer stops delivering.
func (v *WSViewer) Done() <-chan struct{} {
	return v.done
}

// Wait blocks until the writer goroutine has returned. The connection is
// not written to afterwards.
func (v *WSViewer) Wait() {
	<-v.exited
}

func (v *WSViewer) Close() error {
	var err error
	v.closeOnce.Do(func() {
		err = v.conn.Close()
		close(v.done)
	})
	return err
}
