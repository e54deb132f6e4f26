package coordinator

import (
	"context"
	"errors"
	"time"

	"broadcast-console/internal/notify"
	"broadcast-console/pkg/models"
)

var (
	ErrNoTemplateSelected = errors.New("no message template selected")
	ErrUnknownTemplate    = errors.New("message template not in the loaded set")
	ErrEmptyBatch         = errors.New("no contacts loaded")
	ErrUnknownChannel     = errors.New("unknown channel")
)

// TemplateSource lists the templates available to the operator.
type TemplateSource interface {
	UserMessages(ctx context.Context) ([]models.MessageTemplate, error)
}

// ContactSampler draws a random batch for a template.
type ContactSampler interface {
	RandomContacts(ctx context.Context, messageID int, session string) ([]models.Contact, error)
}

// BatchSender sends a batch and returns its hand-off targets in order.
type BatchSender interface {
	SendBatch(ctx context.Context, req models.SendBatchRequest) ([]models.HandoffTarget, error)
}

type QuotaSource interface {
	UserStats(ctx context.Context) (models.QuotaState, error)
}

// PhoneSearcher finds contacts by partial phone number.
type PhoneSearcher interface {
	SearchPhone(ctx context.Context, query string, limit int) ([]models.Contact, error)
}

// Backend is the slice of the broadcast API the coordinator uses.
type Backend interface {
	TemplateSource
	ContactSampler
	BatchSender
	QuotaSource
	PhoneSearcher
}

// Opener performs one external hand-off (opening a composer or chat link).
type Opener interface {
	Open(ctx context.Context, target models.HandoffTarget) error
}

// Notifier raises a localized operator notice.
type Notifier interface {
	Notify(level notify.Level, id string, data map[string]any)
}

// EventSink receives state changes for the view.
type EventSink interface {
	BroadcastEvent(eventType string, data interface{})
}

// HistoryRecorder stores accepted dispatches.
type HistoryRecorder interface {
	RecordDispatch(ctx context.Context, s models.DispatchSummary) error
}

// Clock schedules callbacks. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is backed by package time.
var SystemClock Clock = systemClock{}

type nopNotifier struct{}

func (nopNotifier) Notify(notify.Level, string, map[string]any) {}

type nopSink struct{}

func (nopSink) BroadcastEvent(string, interface{}) {}
