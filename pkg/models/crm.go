package models

import "time"

// Contact is a recipient as returned by the broadcast API
type Contact struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// MessageTemplate is an operator-selectable message body
type MessageTemplate struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageTemplateInput is the create/update payload for templates
type MessageTemplateInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ContactList wraps every endpoint that answers with {"contacts": [...]}
type ContactList struct {
	Contacts []Contact `json:"contacts"`
}

// UploadResult reports a bulk contact import
type UploadResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}
