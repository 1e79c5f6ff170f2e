package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/jwalitptl/medinotes/pkg/logger"
)

const EventStreamType = "text/event-stream"

var ErrNotEventStream = errors.New("response is not an event stream")

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stream request failed with status %d", e.Code)
	}
	return fmt.Sprintf("stream request failed with status %d: %s", e.Code, e.Body)
}

// Handlers receive the life cycle of one stream. Any of them may be nil.
// Exactly one of OnClose or OnError is called unless the context is
// cancelled first, in which case neither is.
type Handlers struct {
	OnOpen    func(*http.Response)
	OnMessage func(Event)
	OnClose   func()
	OnError   func(error)
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) { c.log = l.With("stream") }
}

// Client issues streaming POST requests against a base URL.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient builds a client. The default http.Client has no timeout: a
// stream has no maximum duration and ends only on close, error or cancel.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends body as JSON with the bearer token and dispatches every event
// to h until the stream ends. It never retries.
func (c *Client) Post(ctx context.Context, path, token string, body interface{}, h Handlers) error {
	err := c.post(ctx, path, token, body, h)
	if err == nil {
		if h.OnClose != nil {
			h.OnClose()
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.log.Debug("stream failed", "path", path, "error", err.Error())
	if h.OnError != nil {
		h.OnError(err)
	}
	return err
}

func (c *Client) post(ctx context.Context, path, token string, body interface{}, h Handlers) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", EventStreamType)
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != EventStreamType {
		return fmt.Errorf("%w: content type %q", ErrNotEventStream, resp.Header.Get("Content-Type"))
	}

	if h.OnOpen != nil {
		h.OnOpen(resp)
	}

	r := NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if h.OnMessage != nil {
			h.OnMessage(ev)
		}
	}
}
