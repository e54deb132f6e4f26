package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"broadcast-console/pkg/models"
)

// Login exchanges the admin password for a bearer token and stores it.
func (c *Client) Login(ctx context.Context, password string) (string, error) {
	resp, err := c.sendJSON(ctx, scopePublic, http.MethodPost, "/api/admin/auth", nil, models.LoginRequest{Password: password})
	if err != nil {
		return "", err
	}
	var out models.LoginResponse
	if err := decode(resp, &out); err != nil {
		return "", err
	}
	token := out.BearerToken()
	if token == "" {
		return "", fmt.Errorf("%w: login answered without a token", ErrMalformedResponse)
	}
	if c.Tokens != nil {
		if err := c.Tokens.SetToken(ctx, token); err != nil {
			return "", err
		}
	}
	return token, nil
}

// Logout forgets the stored admin token. No request is made.
func (c *Client) Logout(ctx context.Context) error {
	if c.Tokens == nil {
		return nil
	}
	return c.Tokens.ClearToken(ctx)
}

// LoggedIn reports whether an admin token is stored.
func (c *Client) LoggedIn(ctx context.Context) bool {
	if c.Tokens == nil {
		return false
	}
	token, err := c.Tokens.Token(ctx)
	return err == nil && token != ""
}

// UploadContacts sends a contacts CSV and returns the import summary.
func (c *Client) UploadContacts(ctx context.Context, filename string, r io.Reader) (models.UploadResult, error) {
	var result models.UploadResult
	resp, err := c.uploadFile(ctx, scopeAdmin, "/api/admin/upload", "file", filename, r)
	if err != nil {
		return result, err
	}
	err = decode(resp, &result)
	return result, err
}

// DownloadTemplate returns the CSV layout expected by UploadContacts.
func (c *Client) DownloadTemplate(ctx context.Context) ([]byte, error) {
	return c.sendJSON(ctx, scopeAdmin, http.MethodGet, "/api/admin/template", nil, nil)
}

// ListMessages returns all templates, never nil.
func (c *Client) ListMessages(ctx context.Context) ([]models.MessageTemplate, error) {
	resp, err := c.sendJSON(ctx, scopeAdmin, http.MethodGet, "/api/admin/messages", nil, nil)
	if err != nil {
		return nil, err
	}
	var templates []models.MessageTemplate
	if err := decode(resp, &templates); err != nil {
		return nil, err
	}
	if templates == nil {
		templates = []models.MessageTemplate{}
	}
	return templates, nil
}

// CreateMessage adds a template. The echoed template may be empty.
func (c *Client) CreateMessage(ctx context.Context, in models.MessageTemplateInput) (models.MessageTemplate, error) {
	var out models.MessageTemplate
	resp, err := c.sendJSON(ctx, scopeAdmin, http.MethodPost, "/api/admin/messages", nil, in)
	if err != nil {
		return out, err
	}
	err = decodeOptional(resp, &out)
	return out, err
}

// UpdateMessage replaces template id.
func (c *Client) UpdateMessage(ctx context.Context, id int, in models.MessageTemplateInput) (models.MessageTemplate, error) {
	var out models.MessageTemplate
	resp, err := c.sendJSON(ctx, scopeAdmin, http.MethodPut, "/api/admin/messages/"+strconv.Itoa(id), nil, in)
	if err != nil {
		return out, err
	}
	err = decodeOptional(resp, &out)
	return out, err
}

// DeleteMessage removes template id.
func (c *Client) DeleteMessage(ctx context.Context, id int) error {
	_, err := c.sendJSON(ctx, scopeAdmin, http.MethodDelete, "/api/admin/messages/"+strconv.Itoa(id), nil, nil)
	return err
}

// AdminStats fetches the dashboard counters.
func (c *Client) AdminStats(ctx context.Context) (models.AdminStats, error) {
	var stats models.AdminStats
	resp, err := c.sendJSON(ctx, scopeAdmin, http.MethodGet, "/api/admin/stats", nil, nil)
	if err != nil {
		return stats, err
	}
	err = decode(resp, &stats)
	return stats, err
}

// decodeOptional tolerates empty bodies from write endpoints.
func decodeOptional(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	err := decode(data, v)
	if errors.Is(err, ErrMalformedResponse) {
		return nil
	}
	return err
}
