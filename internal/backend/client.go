// Package backend holds the HTTP plumbing shared by the cloud and
// self-hosted transformation clients.
package backend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/gioelecerati/daydream-ndi-bridge/internal/metrics"
)

const maxErrorBody = 512

// HTTPError is returned for any non-2xx upstream response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d", e.Status)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// StatusOf extracts the upstream status code from err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

type Request struct {
	Method      string
	URL         string
	ContentType string
	Bearer      string
	Headers     map[string]string
	Body        []byte
	Timeout     time.Duration

	// Operation labels the upstream request metric.
	Operation string
}

type Response struct {
	Status int
	Body   []byte
	Header map[string]string
}

// HeaderValue looks a response header up case-insensitively.
func (r Response) HeaderValue(name string) string {
	return r.Header[strings.ToLower(name)]
}

// Doer performs one HTTP exchange. Tests swap it for an in-memory server.
type Doer interface {
	Do(ctx context.Context, req Request) (Response, error)
}

type Client struct {
	name   string
	client *fasthttp.Client
}

type ClientOptions struct {
	InsecureSkipVerify bool
	Dial               fasthttp.DialFunc
}

// NewClient builds a Doer on fasthttp. name labels metrics (cloud,
// selfhosted).
func NewClient(name string, opts ClientOptions) *Client {
	c := &fasthttp.Client{
		Name:                "daydream-bridge",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		MaxIdleConnDuration: time.Minute,
		Dial:                opts.Dial,
	}
	if opts.InsecureSkipVerify {
		c.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{name: name, client: c}
}

// Do sends req and waits for the response, the request timeout, or ctx,
// whichever comes first.
func (c *Client) Do(ctx context.Context, r Request) (Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(r.Method)
	if r.ContentType != "" {
		req.Header.SetContentType(r.ContentType)
	}
	if r.Bearer != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+r.Bearer)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if r.Body != nil {
		req.SetBody(r.Body)
	}

	deadline := time.Now().Add(r.Timeout)
	if r.Timeout <= 0 {
		deadline = time.Now().Add(30 * time.Second)
	}
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan error, 1)
	go func() {
		done <- c.client.DoDeadline(req, resp, deadline)
	}()

	select {
	case <-ctx.Done():
		// The request owns req and resp until DoDeadline returns.
		go func() {
			<-done
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()
		c.observe(r.Operation, "canceled")
		return Response{}, ctx.Err()
	case err := <-done:
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		if err != nil {
			if errors.Is(err, fasthttp.ErrTimeout) {
				err = fmt.Errorf("%s %s: %w", r.Method, r.URL, context.DeadlineExceeded)
			} else {
				err = fmt.Errorf("%s %s: %w", r.Method, r.URL, err)
			}
			c.observe(r.Operation, "error")
			return Response{}, err
		}
		return c.read(r, resp)
	}
}

func (c *Client) read(r Request, resp *fasthttp.Response) (Response, error) {
	out := Response{
		Status: resp.StatusCode(),
		Body:   append([]byte(nil), resp.Body()...),
		Header: make(map[string]string),
	}
	resp.Header.VisitAll(func(key, value []byte) {
		out.Header[strings.ToLower(string(key))] = string(value)
	})

	if out.Status < 200 || out.Status >= 300 {
		c.observe(r.Operation, "status")
		body := out.Body
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return out, &HTTPError{Status: out.Status, Body: string(body)}
	}
	c.observe(r.Operation, "ok")
	return out, nil
}

func (c *Client) observe(operation, result string) {
	if operation == "" {
		operation = "request"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(c.name, operation, result).Inc()
}

// DoJSON marshals in (when non-nil), performs the request and decodes the
// response into out (when non-nil).
func DoJSON(ctx context.Context, d Doer, r Request, in, out any) (Response, error) {
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return Response{}, fmt.Errorf("encode request: %w", err)
		}
		r.Body = body
		r.ContentType = "application/json"
	}
	resp, err := d.Do(ctx, r)
	if err != nil {
		return resp, err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}
