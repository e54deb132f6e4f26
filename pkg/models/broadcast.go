package models

import (
	"fmt"
	"strings"
	"time"
)

// Channel selects the outbound mechanism of a dispatch
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel accepts the channel names used by the API and the view.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Label is the upper-cased name shown in notices.
func (c Channel) Label() string {
	return strings.ToUpper(string(c))
}

// SendBatchRequest is the body of the batch-send endpoints
type SendBatchRequest struct {
	MessageID   int     `json:"message_id"`
	Platform    Channel `json:"platform"`
	UserSession string  `json:"user_session"`
}

// HandoffTarget is a contact plus the server-built URI to open for it
type HandoffTarget struct {
	Contact
	URL string `json:"url"`
}

// SendBatchResponse lists one hand-off target per debited contact
type SendBatchResponse struct {
	Contacts []HandoffTarget `json:"contacts"`
}

// QuotaState is the operator's daily usage as reported by the server
type QuotaState struct {
	DailySent     int `json:"daily_sent"`
	DailyLimit    int `json:"daily_limit"`
	SMSCount      int `json:"sms_count"`
	WhatsAppCount int `json:"whatsapp_count"`
	Remaining     int `json:"remaining"`
}

// AdminStats are the aggregate counters of the admin overview
type AdminStats struct {
	TotalContacts int `json:"total_contacts"`
	TotalMessages int `json:"total_messages"`
	TodaySent     int `json:"today_sent"`
}

// LoginRequest is the admin login body
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for admin calls
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// BearerToken returns whichever token field the server filled.
func (r LoginResponse) BearerToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// DispatchSummary records one accepted batch-send
type DispatchSummary struct {
	Session    string    `json:"session"`
	TemplateID int       `json:"template_id"`
	Channel    Channel   `json:"channel"`
	Count      int       `json:"count"`
	SentAt     time.Time `json:"sent_at"`
}
