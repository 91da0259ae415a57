// Package backendtest runs fake upstream servers on in-memory listeners.
package backendtest

import (
	"net"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/backend"
)

// BaseURL is the address every in-memory server answers on.
const BaseURL = "http://upstream.test"

// NewServer serves handler in memory and returns a client wired to it.
func NewServer(t testing.TB, handler fasthttp.RequestHandler) *backend.Client {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})

	return backend.NewClient("test", backend.ClientOptions{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	})
}
