package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"broadcast-console/pkg/models"
)

const defaultSearchLimit = 10

// UserMessages lists the templates an operator can broadcast.
func (c *Client) UserMessages(ctx context.Context) ([]models.MessageTemplate, error) {
	resp, err := c.sendJSON(ctx, scopePublic, http.MethodGet, "/api/user/messages", nil, nil)
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

// RandomContacts asks the server for a quota-bounded sample of contacts
// not yet messaged by this session for the template.
func (c *Client) RandomContacts(ctx context.Context, messageID int, session string) ([]models.Contact, error) {
	q := url.Values{}
	q.Set("message_id", strconv.Itoa(messageID))
	q.Set("user_session", session)

	resp, err := c.sendJSON(ctx, scopePublic, http.MethodGet, "/api/user/random-contacts", q, nil)
	if err != nil {
		return nil, err
	}
	var list models.ContactList
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list.Contacts, nil
}

func sendBatchPath(channel models.Channel) (string, error) {
	switch channel {
	case models.ChannelSMS:
		return "/api/user/send-batch", nil
	case models.ChannelWhatsApp:
		return "/api/user/send-whatsapp", nil
	}
	return "", fmt.Errorf("no send endpoint for channel %q", channel)
}

// SendBatch debits the batch against the quota and returns one hand-off
// target per contact, in server order.
func (c *Client) SendBatch(ctx context.Context, req models.SendBatchRequest) ([]models.HandoffTarget, error) {
	path, err := sendBatchPath(req.Platform)
	if err != nil {
		return nil, err
	}
	resp, err := c.sendJSON(ctx, scopePublic, http.MethodPost, path, nil, req)
	if err != nil {
		return nil, err
	}
	var out models.SendBatchResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// UserStats fetches today's quota counters.
func (c *Client) UserStats(ctx context.Context) (models.QuotaState, error) {
	var stats models.QuotaState
	resp, err := c.sendJSON(ctx, scopePublic, http.MethodGet, "/api/user/stats", nil, nil)
	if err != nil {
		return stats, err
	}
	err = decode(resp, &stats)
	return stats, err
}

// SearchPhone resolves a phone fragment to matching contacts.
func (c *Client) SearchPhone(ctx context.Context, query string, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.sendJSON(ctx, scopePublic, http.MethodGet, "/api/search/phone", q, nil)
	if err != nil {
		return nil, err
	}
	var list models.ContactList
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list.Contacts, nil
}
