package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"broadcast-console/internal/notify"
	"broadcast-console/pkg/models"

	"github.com/rs/zerolog"
)

const (
	DefaultSearchDelay = 300 * time.Millisecond
	DefaultSearchLimit = 10
)

// SearchState is the "search" event payload.
type SearchState struct {
	Query    string           `json:"query"`
	Results  []models.Contact `json:"results"`
	InFlight bool             `json:"in_flight"`
}

// Lookup is the debounced phone search. It owns a single pending timer;
// every input stops that timer before scheduling its replacement, and a
// generation counter keeps superseded resolves from touching the state.
type Lookup struct {
	searcher PhoneSearcher
	clock    Clock
	delay    time.Duration
	limit    int
	notifier Notifier
	events   EventSink
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	timer Timer
	gen   uint64
	state SearchState
}

// LookupConfig tunes NewLookup. Zero values take the defaults.
type LookupConfig struct {
	Delay    time.Duration
	Limit    int
	Clock    Clock
	Notifier Notifier
	Events   EventSink
	Logger   zerolog.Logger
}

func NewLookup(searcher PhoneSearcher, cfg LookupConfig) *Lookup {
	l := &Lookup{
		searcher: searcher,
		clock:    cfg.Clock,
		delay:    cfg.Delay,
		limit:    cfg.Limit,
		notifier: cfg.Notifier,
		events:   cfg.Events,
		log:      cfg.Logger,
	}
	if l.clock == nil {
		l.clock = SystemClock
	}
	if l.delay <= 0 {
		l.delay = DefaultSearchDelay
	}
	if l.limit <= 0 {
		l.limit = DefaultSearchLimit
	}
	if l.notifier == nil {
		l.notifier = nopNotifier{}
	}
	if l.events == nil {
		l.events = nopSink{}
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l
}

// OnInput records a keystroke. Blank input clears the results at once;
// anything else is resolved after the debounce delay unless superseded.
func (l *Lookup) OnInput(raw string) {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.state.Query = raw

	if strings.TrimSpace(raw) == "" {
		l.state.Results = nil
		l.state.InFlight = false
		st := l.snapshotLocked()
		l.mu.Unlock()
		l.events.BroadcastEvent("search", st)
		return
	}

	l.timer = l.clock.AfterFunc(l.delay, func() { l.resolve(gen, raw) })
	l.mu.Unlock()
}

func (l *Lookup) resolve(gen uint64, query string) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	l.state.InFlight = true
	st := l.snapshotLocked()
	l.mu.Unlock()
	l.events.BroadcastEvent("search", st)

	results, err := l.searcher.SearchPhone(l.ctx, query, l.limit)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.state.InFlight = false
	if err != nil {
		l.state.Results = nil
	} else {
		l.state.Results = results
	}
	st = l.snapshotLocked()
	l.mu.Unlock()

	if err != nil {
		l.log.Warn().Err(err).Str("query", query).Msg("phone search failed")
		l.notifier.Notify(notify.LevelError, notify.SearchFailed, nil)
	}
	l.events.BroadcastEvent("search", st)
}

// State returns a copy of the query and its results.
func (l *Lookup) State() SearchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lookup) snapshotLocked() SearchState {
	st := l.state
	st.Results = append([]models.Contact(nil), l.state.Results...)
	return st
}

// Close drops the pending resolve and aborts one in flight.
func (l *Lookup) Close() {
	l.mu.Lock()
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()
	l.cancel()
}

// HandoffFor builds the direct hand-off for a search result. Batch
// dispatches never use this; their URIs come from the server.
func HandoffFor(c models.Contact, channel models.Channel) models.HandoffTarget {
	url := "sms:" + c.Phone
	if channel == models.ChannelWhatsApp {
		url = "https://wa.me/" + strings.Replace(c.Phone, "+", "", 1)
	}
	return models.HandoffTarget{Contact: c, URL: url}
}
