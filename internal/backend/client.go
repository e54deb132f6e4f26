package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"broadcast-console/internal/config"
	"broadcast-console/internal/logging"

	"github.com/rs/zerolog"
)

// TokenStore persists the admin bearer token.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Client talks to the broadcast API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenStore

	// OnUnauthorized runs after a 401 (or a missing admin token) once the
	// stored token has been discarded.
	OnUnauthorized func()

	log zerolog.Logger
}

// NewClient talks to cfg.APIBaseURL. Admin calls read their bearer token from tokens.
func NewClient(cfg *config.Config, tokens TokenStore, log zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		HTTP:    &http.Client{Timeout: cfg.APITimeout},
		Tokens:  tokens,
		log:     log.With().Str("component", "backend").Logger(),
	}
}

type scope int

const (
	scopePublic scope = iota
	scopeAdmin
)

// --- Helper Functions ---

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) sendJSON(ctx context.Context, sc scope, method, path string, query url.Values, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(ctx, sc, req)
}

func (c *Client) do(ctx context.Context, sc scope, req *http.Request) ([]byte, error) {
	token := ""
	if c.Tokens != nil {
		t, err := c.Tokens.Token(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("reading admin token")
		}
		token = t
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if sc == scopeAdmin {
		c.unauthorized(ctx)
		return nil, fmt.Errorf("%s %s: %w: no admin token", req.Method, req.URL.Path, ErrUnauthorized)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", logging.Since(start)).
		Msg("api call")

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.unauthorized(ctx)
		}
		return respBody, &StatusError{Code: resp.StatusCode, Detail: parseDetail(respBody)}
	}

	return respBody, nil
}

func (c *Client) unauthorized(ctx context.Context) {
	if c.Tokens != nil {
		if err := c.Tokens.ClearToken(ctx); err != nil {
			c.log.Warn().Err(err).Msg("discarding admin token")
		}
	}
	if c.OnUnauthorized != nil {
		c.OnUnauthorized()
	}
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) uploadFile(ctx context.Context, sc scope, path, field, filename string, r io.Reader) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(ctx, sc, req)
}
