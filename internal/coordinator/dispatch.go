package coordinator

import (
	"context"
	"sync"
	"time"

	"broadcast-console/pkg/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultHandoffStride is the minimum gap between two hand-offs.
const DefaultHandoffStride = time.Second

// DispatchRequest is one batch-send as issued by the coordinator.
type DispatchRequest struct {
	Channel    models.Channel
	TemplateID int
	Session    SessionToken
	Batch      []models.Contact
}

// DispatchReport describes an accepted batch-send.
type DispatchReport struct {
	Channel    models.Channel         `json:"channel"`
	TemplateID int                    `json:"template_id"`
	Count      int                    `json:"count"`
	Targets    []models.HandoffTarget `json:"targets"`
	Stride     time.Duration          `json:"stride"`
	Handoffs   *HandoffSequence       `json:"-"`
}

// Orchestrator sends a batch and paces the resulting hand-offs. All
// sequences share one limiter, so hand-offs of overlapping dispatches are
// also at least one stride apart.
type Orchestrator struct {
	sender  BatchSender
	opener  Opener
	clock   Clock
	stride  time.Duration
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewOrchestrator builds an orchestrator. A nil clock means the system clock
// and a non-positive stride means DefaultHandoffStride.
func NewOrchestrator(sender BatchSender, opener Opener, clock Clock, stride time.Duration, log zerolog.Logger) *Orchestrator {
	if clock == nil {
		clock = SystemClock
	}
	if stride <= 0 {
		stride = DefaultHandoffStride
	}
	return &Orchestrator{
		sender:  sender,
		opener:  opener,
		clock:   clock,
		stride:  stride,
		limiter: rate.NewLimiter(rate.Every(stride), 1),
		log:     log,
	}
}

// Dispatch issues the batch-send and, when the server accepts it, starts one
// hand-off per returned target. The send is all-or-nothing; hand-offs are
// fire-and-forget. Values carried by ctx (such as the originating view) are
// passed on to the opener, its cancellation is not.
func (o *Orchestrator) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchReport, error) {
	if len(req.Batch) == 0 {
		return nil, ErrEmptyBatch
	}

	targets, err := o.sender.SendBatch(ctx, models.SendBatchRequest{
		MessageID:   req.TemplateID,
		Platform:    req.Channel,
		UserSession: string(req.Session),
	})
	if err != nil {
		return nil, err
	}

	return &DispatchReport{
		Channel:    req.Channel,
		TemplateID: req.TemplateID,
		Count:      len(targets),
		Targets:    targets,
		Stride:     o.stride,
		Handoffs:   o.start(ctx, targets),
	}, nil
}

func (o *Orchestrator) start(parent context.Context, targets []models.HandoffTarget) *HandoffSequence {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	seq := &HandoffSequence{
		Targets: targets,
		opener:  o.opener,
		clock:   o.clock,
		limiter: o.limiter,
		log:     o.log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	seq.mu.Lock()
	defer seq.mu.Unlock()
	seq.scheduleNextLocked()
	return seq
}

// FiredHandoff is a hand-off that was passed to the opener.
type FiredHandoff struct {
	Target models.HandoffTarget `json:"target"`
	At     time.Time            `json:"at"`
}

// HandoffSequence opens the targets of one dispatch in order. Each hand-off
// reserves its slot from the limiter only after the previous one fired.
type HandoffSequence struct {
	Targets []models.HandoffTarget

	opener  Opener
	clock   Clock
	limiter *rate.Limiter
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	timer  Timer
	next   int
	fired  []FiredHandoff
	closed bool
	done   chan struct{}
}

func (s *HandoffSequence) scheduleNextLocked() {
	if s.closed {
		return
	}
	if s.next >= len(s.Targets) {
		s.finishLocked()
		return
	}
	i := s.next
	s.next++

	now := s.clock.Now()
	delay := s.limiter.ReserveN(now, 1).DelayFrom(now)
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(i) })
}

func (s *HandoffSequence) fire(i int) {
	if s.ctx.Err() != nil {
		return
	}
	target := s.Targets[i]
	if err := s.opener.Open(s.ctx, target); err != nil {
		s.log.Warn().Err(err).Int("contact_id", target.ID).Msg("hand-off failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fired = append(s.fired, FiredHandoff{Target: target, At: s.clock.Now()})
	s.timer = nil
	s.scheduleNextLocked()
}

// Cancel stops every hand-off that has not fired yet.
func (s *HandoffSequence) Cancel() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.finishLocked()
}

// Done is closed once every hand-off fired or the sequence was cancelled.
func (s *HandoffSequence) Done() <-chan struct{} { return s.done }

// Fired lists the hand-offs opened so far, in order.
func (s *HandoffSequence) Fired() []FiredHandoff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FiredHandoff(nil), s.fired...)
}

func (s *HandoffSequence) finishLocked() {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
