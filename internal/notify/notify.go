// Package notify turns operation outcomes into short-lived operator notices.
// Notice text comes from the YAML catalogs under locales/.
package notify

import (
	"embed"
	"path"
	"sync"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/language"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Level is the severity of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Catalog message ids.
const (
	MessagesLoadFailed    = "MessagesLoadFailed"
	MessagesInvalidFormat = "MessagesInvalidFormat"
	SelectMessageFirst    = "SelectMessageFirst"
	UnknownMessage        = "UnknownMessage"
	ContactsLoaded        = "ContactsLoaded"
	DailyLimitReached     = "DailyLimitReached"
	NoAvailableContacts   = "NoAvailableContacts"
	ContactsLoadFailed    = "ContactsLoadFailed"
	NoContactsLoaded      = "NoContactsLoaded"
	BatchSent             = "BatchSent"
	BatchSendFailed       = "BatchSendFailed"
	SearchFailed          = "SearchFailed"

	LoginSucceeded         = "LoginSucceeded"
	LoginFailed            = "LoginFailed"
	LoggedOut              = "LoggedOut"
	SessionExpired         = "SessionExpired"
	SelectFileFirst        = "SelectFileFirst"
	UploadSucceeded        = "UploadSucceeded"
	UploadFailed           = "UploadFailed"
	UploadRejected         = "UploadRejected"
	TemplateDownloaded     = "TemplateDownloaded"
	TemplateDownloadFailed = "TemplateDownloadFailed"
	FillAllFields          = "FillAllFields"
	MessageCreated         = "MessageCreated"
	MessageUpdated         = "MessageUpdated"
	MessageSaveFailed      = "MessageSaveFailed"
	MessageDeleted         = "MessageDeleted"
	MessageDeleteFailed    = "MessageDeleteFailed"
	AdminDataLoadFailed    = "AdminDataLoadFailed"
)

// Notice is one operator-visible message.
type Notice struct {
	Level Level          `json:"level"`
	ID    string         `json:"id"`
	Text  string         `json:"text"`
	Data  map[string]any `json:"data,omitempty"`
	At    time.Time      `json:"at"`
}

// Sink receives rendered notices (the websocket hub in the console).
type Sink interface {
	BroadcastEvent(eventType string, data interface{})
}

const recentSize = 20

// Notifier localizes and publishes notices. The zero Sink is allowed.
type Notifier struct {
	localizer *i18n.Localizer
	sink      Sink
	log       zerolog.Logger

	mu     sync.Mutex
	recent []Notice
}

// LoadBundle reads every embedded catalog.
func LoadBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

// NewNotifier renders notices in locale, falling back to English, and
// pushes them to sink.
func NewNotifier(locale string, sink Sink, log zerolog.Logger) (*Notifier, error) {
	bundle, err := LoadBundle()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		localizer: i18n.NewLocalizer(bundle, locale, "en"),
		sink:      sink,
		log:       log.With().Str("component", "notify").Logger(),
	}, nil
}

// Notify renders id in the configured locale and publishes it.
func (n *Notifier) Notify(level Level, id string, data map[string]any) {
	n.Publish(level, id, data)
}

// Publish is Notify that also returns the rendered notice.
func (n *Notifier) Publish(level Level, id string, data map[string]any) Notice {
	notice := Notice{Level: level, ID: id, Text: n.Text(id, data), Data: data, At: time.Now()}

	ev := n.log.Info()
	if level == LevelError || level == LevelWarning {
		ev = n.log.Warn()
	}
	ev.Str("notice", id).Str("level", string(level)).Msg(notice.Text)

	n.mu.Lock()
	n.recent = append(n.recent, notice)
	if len(n.recent) > recentSize {
		n.recent = n.recent[len(n.recent)-recentSize:]
	}
	n.mu.Unlock()

	if n.sink != nil {
		n.sink.BroadcastEvent("notice", notice)
	}
	return notice
}

// Text localizes id, falling back to the id itself.
func (n *Notifier) Text(id string, data map[string]any) string {
	text, err := n.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil && text == "" {
		return id
	}
	return text
}

// Recent returns the latest notices, oldest first.
func (n *Notifier) Recent() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.recent))
	copy(out, n.recent)
	return out
}
