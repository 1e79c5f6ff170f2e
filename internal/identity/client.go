package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/pkg/logger"
)

var (
	ErrSignedOut     = errors.New("signed out")
	ErrNoCredentials = errors.New("no sign-in credentials configured")
)

// APIError is a non-2xx reply from the identity API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity api: %d %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// TokenSource yields the bearer token used for profile lookups.
type TokenSource interface {
	Resolve(ctx context.Context) (string, error)
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func WithClientLogger(l *logger.Logger) ClientOption {
	return func(c *Client) { c.log = l.With("identity-client") }
}

// Client talks to the identity API over HTTP. It issues tokens from the
// configured email and password; after SignOut it refuses to issue more.
type Client struct {
	baseURL  string
	http     *http.Client
	log      *logger.Logger
	email    string
	password string

	mu        sync.Mutex
	last      string
	signedOut bool
}

func NewClient(baseURL, email, password string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		log:      logger.Nop(),
		email:    email,
		password: password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token signs in and returns a new access token.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	signedOut := c.signedOut
	c.mu.Unlock()
	if signedOut {
		return "", ErrSignedOut
	}
	if c.email == "" || c.password == "" {
		return "", ErrNoCredentials
	}

	var resp model.TokenResponse
	body := model.LoginRequest{Email: c.email, Password: c.password}
	if err := c.do(ctx, http.MethodPost, "/auth/token", "", body, &resp); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.last = resp.AccessToken
	c.mu.Unlock()
	return resp.AccessToken, nil
}

// SignOut revokes the last token this client issued, if any, and ends the
// session for this process.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.last
	c.last = ""
	c.signedOut = true
	c.mu.Unlock()

	if token == "" {
		return nil
	}
	return c.Logout(ctx, token)
}

// Logout revokes token on the server.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// Me returns the profile of the token's account.
func (c *Client) Me(ctx context.Context, token string) (*model.Profile, error) {
	var p model.Profile
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlanChecker answers plan checks with the profile of the token ts yields.
func (c *Client) PlanChecker(ts TokenSource) *RemotePlan {
	return &RemotePlan{client: c, tokens: ts}
}

type RemotePlan struct {
	client *Client
	tokens TokenSource
}

func (p *RemotePlan) HasPlan(ctx context.Context, plan string) (bool, error) {
	token, err := p.tokens.Resolve(ctx)
	if err != nil {
		return false, err
	}
	profile, err := p.client.Me(ctx, token)
	if err != nil {
		return false, err
	}
	return profile.Plan == plan, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", TokenType+" "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil && env.Error.Message != "" {
			apiErr.Message = env.Error.Message
		}
		c.log.Debug("identity api error", "path", path, "status", resp.StatusCode)
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}
