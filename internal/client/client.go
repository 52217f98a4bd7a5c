// Package client calls the procedure API over HTTP.
package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/model"
	"github.com/codu-code/codu/internal/routes"
	"github.com/codu-code/codu/internal/rpc"
	"github.com/codu-code/codu/internal/validation"
)

// ErrNetwork wraps failures that never produced a response envelope.
var ErrNetwork = errors.New("network error")

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Token() string {
	return c.token
}

type envelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *rpc.Error `json:"error"`
}

// Query calls a query procedure with GET.
func (c *Client) Query(ctx context.Context, procedure string, in, out any) error {
	target := c.baseURL + routes.RPCPrefix + "/" + procedure
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s input: %w", procedure, err)
		}
		target += "?input=" + url.QueryEscape(string(raw))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, procedure, out)
}

// Mutate calls a mutation procedure with POST.
func (c *Client) Mutate(ctx context.Context, procedure string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s input: %w", procedure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+routes.RPCPrefix+"/"+procedure, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set(config.HCType, config.CTypeJSON)
	return c.do(req, procedure, out)
}

// do sends req and decodes the envelope. Failure envelopes come back as
// *rpc.Error.
func (c *Client) do(req *http.Request, procedure string, out any) error {
	if c.token != "" {
		req.Header.Set(config.HAuthorize, "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, procedure, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s: bad response (status %d): %v", ErrNetwork, procedure, resp.StatusCode, err)
	}
	if env.Error != nil {
		return env.Error
	}
	if env.Result == nil {
		return fmt.Errorf("%w: %s: empty response (status %d)", ErrNetwork, procedure, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result.Data, out); err != nil {
		return fmt.Errorf("decode %s result: %w", procedure, err)
	}
	return nil
}

// PostRef identifies a saved post.
type PostRef struct {
	ID     model.PostID `json:"id"`
	Slug   string       `json:"slug"`
	Status model.Status `json:"status"`
}

type PublishInput struct {
	ID           model.PostID `json:"id"`
	Published    bool         `json:"published"`
	PublishTime  *time.Time   `json:"publishTime,omitempty"`
	Excerpt      *string      `json:"excerpt,omitempty"`
	Tags         []string     `json:"tags"`
	CanonicalURL *string      `json:"canonicalUrl,omitempty"`
}

type PublishResult struct {
	PostRef
	Published *time.Time `json:"published"`
}

// EditablePost is the editor view of a post.
type EditablePost struct {
	ID           model.PostID `json:"id"`
	Title        string       `json:"title"`
	Slug         string       `json:"slug"`
	Body         string       `json:"body"`
	Excerpt      string       `json:"excerpt"`
	Tags         []string     `json:"tags"`
	CanonicalURL string       `json:"canonicalUrl"`
	Published    *time.Time   `json:"published"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	Status       model.Status `json:"status"`
}

func (c *Client) CreatePost(ctx context.Context, in validation.SavePostInput) (*PostRef, error) {
	var out PostRef
	if err := c.Mutate(ctx, "post.create", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePost(ctx context.Context, in validation.SavePostInput) (*EditablePost, error) {
	var out EditablePost
	if err := c.Mutate(ctx, "post.update", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PublishPost(ctx context.Context, in PublishInput) (*PublishResult, error) {
	var out PublishResult
	if err := c.Mutate(ctx, "post.publish", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EditDraft(ctx context.Context, id model.PostID) (*EditablePost, error) {
	var out EditablePost
	if err := c.Query(ctx, "post.editDraft", map[string]model.PostID{"id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type challengeResponse struct {
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type verifyResponse struct {
	Token string `json:"token"`
}

// RequestChallenge asks the server for a login challenge.
func (c *Client) RequestChallenge(ctx context.Context, username string) ([]byte, error) {
	var out challengeResponse
	if err := c.postAuth(ctx, routes.AuthChallenge, map[string]string{"username": username}, &out); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(out.Challenge)
}

// Login signs a fresh challenge with key and keeps the session token.
func (c *Client) Login(ctx context.Context, username string, key ed25519.PrivateKey) error {
	challenge, err := c.RequestChallenge(ctx, username)
	if err != nil {
		return err
	}
	sig := ed25519.Sign(key, challenge)

	var out verifyResponse
	body := map[string]string{"username": username, "signature": base64.StdEncoding.EncodeToString(sig)}
	if err := c.postAuth(ctx, routes.AuthVerify, body, &out); err != nil {
		return err
	}
	c.token = out.Token
	return nil
}

func (c *Client) postAuth(ctx context.Context, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set(config.HCType, config.CTypeJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
