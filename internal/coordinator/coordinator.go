// Package coordinator holds the operator's broadcast session: template
// selection, the single contact batch, dispatch with staggered hand-offs,
// quota telemetry and the debounced phone lookup.
//
// Operations do not serialize each other. Callers (the console view) are
// expected to disable conflicting actions while Loading is set.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"broadcast-console/internal/backend"
	"broadcast-console/internal/notify"
	"broadcast-console/pkg/models"

	"github.com/rs/zerolog"
)

// Options configures New. Zero durations and limits take the package defaults.
type Options struct {
	Session  SessionToken
	Backend  Backend
	Opener   Opener
	Notifier Notifier
	Events   EventSink
	History  HistoryRecorder
	Clock    Clock
	Logger   zerolog.Logger

	HandoffStride time.Duration
	SearchDelay   time.Duration
	SearchLimit   int
}

// Coordinator is one operator's broadcast session.
type Coordinator struct {
	session  SessionToken
	backend  Backend
	opener   Opener
	notifier Notifier
	events   EventSink
	history  HistoryRecorder
	log      zerolog.Logger

	templates    *TemplateStore
	orchestrator *Orchestrator
	stats        *StatsReflector
	lookup       *Lookup

	mu       sync.Mutex
	batch    []models.Contact
	loading  int
	handoffs map[*HandoffSequence]struct{}
}

// New builds a coordinator. Nothing is fetched until Start.
func New(opts Options) *Coordinator {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Events == nil {
		opts.Events = nopSink{}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	log := opts.Logger.With().Str("component", "coordinator").Str("session", string(opts.Session)).Logger()

	return &Coordinator{
		session:      opts.Session,
		backend:      opts.Backend,
		opener:       opts.Opener,
		notifier:     opts.Notifier,
		events:       opts.Events,
		history:      opts.History,
		log:          log,
		templates:    NewTemplateStore(opts.Backend),
		orchestrator: NewOrchestrator(opts.Backend, opts.Opener, opts.Clock, opts.HandoffStride, log),
		stats:        NewStatsReflector(opts.Backend, opts.Events, log),
		lookup: NewLookup(opts.Backend, LookupConfig{
			Delay:    opts.SearchDelay,
			Limit:    opts.SearchLimit,
			Clock:    opts.Clock,
			Notifier: opts.Notifier,
			Events:   opts.Events,
			Logger:   log,
		}),
	}
}

// Session is the token every server call of this session carries.
func (c *Coordinator) Session() SessionToken { return c.session }

func (c *Coordinator) Stats() *StatsReflector { return c.stats }

func (c *Coordinator) Lookup() *Lookup { return c.lookup }

// Start loads templates and the first stats snapshot. Failures surface as
// notices and logs only.
func (c *Coordinator) Start(ctx context.Context) {
	_, _ = c.LoadTemplates(ctx)
	_, _ = c.stats.Refresh(ctx)
}

// Close stops polling and the lookup. Hand-offs already scheduled keep
// firing.
func (c *Coordinator) Close() {
	c.stats.Stop()
	c.lookup.Close()
}

// LoadTemplates reloads the template set, keeping the selection when it
// survived.
func (c *Coordinator) LoadTemplates(ctx context.Context) ([]models.MessageTemplate, error) {
	templates, err := c.templates.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load messages")
		if errors.Is(err, backend.ErrMalformedResponse) {
			c.notifier.Notify(notify.LevelError, notify.MessagesInvalidFormat, nil)
		} else {
			c.notifier.Notify(notify.LevelError, notify.MessagesLoadFailed, nil)
		}
	}
	c.publishTemplates()
	return templates, err
}

// SelectTemplate picks one of the loaded templates by id.
func (c *Coordinator) SelectTemplate(id int) (models.MessageTemplate, error) {
	t, err := c.templates.Select(id)
	if err != nil {
		c.notifier.Notify(notify.LevelError, notify.UnknownMessage, nil)
		return t, err
	}
	c.publishTemplates()
	return t, nil
}

func (c *Coordinator) SelectedTemplate() (models.MessageTemplate, bool) {
	return c.templates.Selected()
}

// FetchBatch draws a new batch for the selected template. Any outcome other
// than success leaves the batch empty.
func (c *Coordinator) FetchBatch(ctx context.Context) ([]models.Contact, error) {
	tmpl, ok := c.templates.Selected()
	if !ok {
		c.notifier.Notify(notify.LevelError, notify.SelectMessageFirst, nil)
		return nil, ErrNoTemplateSelected
	}

	c.setLoading(true)
	defer c.setLoading(false)

	contacts, err := c.backend.RandomContacts(ctx, tmpl.ID, string(c.session))
	if err != nil {
		c.setBatch(nil)
		c.log.Warn().Err(err).Int("template_id", tmpl.ID).Msg("failed to load contacts")
		switch {
		case errors.Is(err, backend.ErrQuotaExceeded):
			c.notifier.Notify(notify.LevelError, notify.DailyLimitReached, nil)
		case errors.Is(err, backend.ErrNotFound):
			c.notifier.Notify(notify.LevelError, notify.NoAvailableContacts, nil)
		default:
			c.notifier.Notify(notify.LevelError, notify.ContactsLoadFailed, nil)
		}
		return nil, err
	}

	c.setBatch(contacts)
	if len(contacts) == 0 {
		c.notifier.Notify(notify.LevelWarning, notify.NoAvailableContacts, nil)
		return []models.Contact{}, nil
	}
	c.notifier.Notify(notify.LevelSuccess, notify.ContactsLoaded, map[string]any{"Count": len(contacts)})
	return c.Batch(), nil
}

// Dispatch sends the current batch over channel. On success the batch is
// consumed, stats are refreshed once and hand-offs start; on failure the
// batch is kept so the operator can retry later.
func (c *Coordinator) Dispatch(ctx context.Context, channel models.Channel) (*DispatchReport, error) {
	if _, err := models.ParseChannel(string(channel)); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	tmpl, ok := c.templates.Selected()
	if !ok {
		c.notifier.Notify(notify.LevelError, notify.SelectMessageFirst, nil)
		return nil, ErrNoTemplateSelected
	}
	batch := c.Batch()
	if len(batch) == 0 {
		c.notifier.Notify(notify.LevelError, notify.NoContactsLoaded, nil)
		return nil, ErrEmptyBatch
	}

	c.setLoading(true)
	defer c.setLoading(false)

	report, err := c.orchestrator.Dispatch(ctx, DispatchRequest{
		Channel:    channel,
		TemplateID: tmpl.ID,
		Session:    c.session,
		Batch:      batch,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("channel", string(channel)).Msg("batch send failed")
		if errors.Is(err, backend.ErrQuotaExceeded) {
			c.notifier.Notify(notify.LevelError, notify.DailyLimitReached, nil)
		} else {
			c.notifier.Notify(notify.LevelError, notify.BatchSendFailed, map[string]any{"Channel": channel.Label()})
		}
		return nil, err
	}

	c.mu.Lock()
	c.batch = nil
	c.mu.Unlock()
	c.track(report.Handoffs)
	c.events.BroadcastEvent("batch", []models.Contact{})

	c.log.Info().
		Str("channel", string(channel)).
		Int("template_id", tmpl.ID).
		Int("count", report.Count).
		Msg("batch accepted")
	c.notifier.Notify(notify.LevelSuccess, notify.BatchSent, map[string]any{
		"Channel": channel.Label(),
		"Count":   report.Count,
	})

	_, _ = c.stats.Refresh(ctx)
	c.recordDispatch(ctx, report)
	return report, nil
}

func (c *Coordinator) recordDispatch(ctx context.Context, report *DispatchReport) {
	if c.history == nil {
		return
	}
	err := c.history.RecordDispatch(ctx, models.DispatchSummary{
		Session:    string(c.session),
		TemplateID: report.TemplateID,
		Channel:    report.Channel,
		Count:      report.Count,
		SentAt:     time.Now(),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to record dispatch")
	}
}

// track keeps seq reachable by CancelHandoffs until it is done.
func (c *Coordinator) track(seq *HandoffSequence) {
	c.mu.Lock()
	if c.handoffs == nil {
		c.handoffs = make(map[*HandoffSequence]struct{})
	}
	c.handoffs[seq] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-seq.Done()
		c.mu.Lock()
		delete(c.handoffs, seq)
		c.mu.Unlock()
	}()
}

// CancelHandoffs stops the pending hand-offs of every dispatch still in
// progress and returns how many sequences it cancelled. Nothing calls it
// implicitly.
func (c *Coordinator) CancelHandoffs() int {
	c.mu.Lock()
	live := make([]*HandoffSequence, 0, len(c.handoffs))
	for seq := range c.handoffs {
		live = append(live, seq)
	}
	c.mu.Unlock()

	for _, seq := range live {
		seq.Cancel()
	}
	return len(live)
}

// PendingHandoffs reports how many dispatches still have hand-offs to open.
func (c *Coordinator) PendingHandoffs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handoffs)
}

// OpenContact hands off a single contact (search results), outside any quota.
func (c *Coordinator) OpenContact(ctx context.Context, contact models.Contact, channel models.Channel) (models.HandoffTarget, error) {
	if _, err := models.ParseChannel(string(channel)); err != nil {
		return models.HandoffTarget{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	target := HandoffFor(contact, channel)
	return target, c.opener.Open(ctx, target)
}

// RefreshStats polls the quota counters now.
func (c *Coordinator) RefreshStats(ctx context.Context) (models.QuotaState, error) {
	return c.stats.Refresh(ctx)
}

// Search feeds one keystroke to the debounced lookup.
func (c *Coordinator) Search(raw string) {
	c.lookup.OnInput(raw)
}

// Batch returns a copy of the current batch.
func (c *Coordinator) Batch() []models.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Contact(nil), c.batch...)
}

func (c *Coordinator) setBatch(contacts []models.Contact) {
	c.mu.Lock()
	c.batch = append([]models.Contact(nil), contacts...)
	out := append([]models.Contact{}, c.batch...)
	c.mu.Unlock()
	c.events.BroadcastEvent("batch", out)
}

func (c *Coordinator) setLoading(on bool) {
	c.mu.Lock()
	if on {
		c.loading++
	} else if c.loading > 0 {
		c.loading--
	}
	busy := c.loading > 0
	c.mu.Unlock()
	c.events.BroadcastEvent("loading", busy)
}

func (c *Coordinator) publishTemplates() {
	c.events.BroadcastEvent("templates", c.templateView())
}

// TemplateView is the "templates" event payload.
type TemplateView struct {
	Templates []models.MessageTemplate `json:"templates"`
	Selected  *models.MessageTemplate  `json:"selected"`
}

func (c *Coordinator) templateView() TemplateView {
	v := TemplateView{Templates: c.templates.Templates()}
	if t, ok := c.templates.Selected(); ok {
		v.Selected = &t
	}
	return v
}

// Snapshot is everything the operator view renders.
type Snapshot struct {
	Session   SessionToken             `json:"session"`
	Templates []models.MessageTemplate `json:"templates"`
	Selected  *models.MessageTemplate  `json:"selected"`
	Batch     []models.Contact         `json:"batch"`
	Stats     *StatsView               `json:"stats"`
	Search    SearchState              `json:"search"`
	Loading   bool                     `json:"loading"`
}

// Snapshot collects the current session state.
func (c *Coordinator) Snapshot() Snapshot {
	tv := c.templateView()
	snap := Snapshot{
		Session:   c.session,
		Templates: tv.Templates,
		Selected:  tv.Selected,
		Batch:     c.Batch(),
		Search:    c.lookup.State(),
	}
	if q, ok := c.stats.Current(); ok {
		snap.Stats = &StatsView{Quota: q, Usage: UsageOf(q)}
	}
	c.mu.Lock()
	snap.Loading = c.loading > 0
	c.mu.Unlock()
	return snap
}
