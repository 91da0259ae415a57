// Package viewer_client subscribes to the bridge preview feed the same way
// the relay page does.
package viewer_client

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/fasthttp/websocket"
)

type Config struct {
	BridgeUrl string

	// NetDialContext overrides how the TCP connection is made.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// FrameHandler receives every encoded frame. Returning an error ends the
// subscription.
type FrameHandler func(frame []byte) error

type Client interface {
	Connect(ctx context.Context, handler FrameHandler) error
}

type bridgeViewerClient struct {
	config Config
	dialer *websocket.Dialer
}

func NewClient(config Config) Client {
	dialer := *websocket.DefaultDialer
	if config.NetDialContext != nil {
		dialer.NetDialContext = config.NetDialContext
	}
	return &bridgeViewerClient{config: config, dialer: &dialer}
}

// Connect reads frames until ctx is done, the bridge hangs up or handler
// fails. Cancellation is not reported as an error.
func (c *bridgeViewerClient) Connect(ctx context.Context, handler FrameHandler) error {
	url := c.getWebSocketClientUrl()
	slog.Info("connecting to bridge", "url", url)
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if err := handler(data); err != nil {
			return err
		}
	}
}

func (c *bridgeViewerClient) getWebSocketClientUrl() string {
	baseUrl := strings.TrimRight(c.config.BridgeUrl, "/")
	if strings.HasPrefix(baseUrl, "http") {
		baseUrl = "ws" + baseUrl[4:]
	}
	return baseUrl + "/ws"
}
