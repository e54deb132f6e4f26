package coordinator

import (
	"sort"
	"sync"
	"time"

	"broadcast-console/internal/notify"
)

// manualClock only fires timers when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	when  time.Time
	seq   int
	f     func()
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves time forward, running due callbacks in deadline order
// without holding the clock lock.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool {
			if c.timers[i].when.Equal(c.timers[j].when) {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].when.Before(c.timers[j].when)
		})
		if len(c.timers) == 0 || c.timers[0].when.After(target) {
			if c.now.Before(target) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		if c.now.Before(t.when) {
			c.now = t.when
		}
		c.mu.Unlock()
		t.f()
	}
}

func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type recordedNotice struct {
	Level notify.Level
	ID    string
	Data  map[string]any
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (r *noticeRecorder) Notify(level notify.Level, id string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, recordedNotice{Level: level, ID: id, Data: data})
}

func (r *noticeRecorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.notices))
	for i, n := range r.notices {
		ids[i] = n.ID
	}
	return ids
}

func (r *noticeRecorder) Last() recordedNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return recordedNotice{}
	}
	return r.notices[len(r.notices)-1]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
	last   map[string]interface{}
}

func (r *eventRecorder) BroadcastEvent(eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	if r.last == nil {
		r.last = map[string]interface{}{}
	}
	r.last[eventType] = data
}

func (r *eventRecorder) Count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (r *eventRecorder) Last(eventType string) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[eventType]
}
