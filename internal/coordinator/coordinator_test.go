package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"broadcast-console/internal/backend"
	"broadcast-console/internal/mocks"
	"broadcast-console/internal/notify"
	"broadcast-console/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSession = SessionToken("user_1709283600000_abc123xyz")

var (
	welcome  = models.MessageTemplate{ID: 1, Title: "Welcome", Content: "Hi there"}
	followUp = models.MessageTemplate{ID: 2, Title: "Follow up", Content: "Checking in"}
	promo    = models.MessageTemplate{ID: 3, Title: "Promo", Content: "20% off"}
)

type historyRecorder struct {
	mu      sync.Mutex
	records []models.DispatchSummary
}

func (h *historyRecorder) RecordDispatch(_ context.Context, s models.DispatchSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, s)
	return nil
}

type fixture struct {
	backend *mocks.BackendMock
	opener  *mocks.OpenerMock
	notices *noticeRecorder
	events  *eventRecorder
	history *historyRecorder
	clock   *manualClock
	coord   *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: &mocks.BackendMock{},
		opener:  &mocks.OpenerMock{},
		notices: &noticeRecorder{},
		events:  &eventRecorder{},
		history: &historyRecorder{},
		clock:   newManualClock(),
	}
	f.opener.On("Open", mock.Anything, mock.Anything).Return(nil)
	f.coord = New(Options{
		Session:  testSession,
		Backend:  f.backend,
		Opener:   f.opener,
		Notifier: f.notices,
		Events:   f.events,
		History:  f.history,
		Clock:    f.clock,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(f.coord.Close)
	return f
}

// withBatch loads templates and a batch of n contacts.
func (f *fixture) withBatch(t *testing.T, n int) []models.Contact {
	t.Helper()
	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{welcome, followUp}, nil).Once()
	_, err := f.coord.LoadTemplates(context.Background())
	require.NoError(t, err)

	contacts := make([]models.Contact, n)
	for i := range contacts {
		contacts[i] = models.Contact{ID: i + 1, Name: fmt.Sprintf("Contact %d", i+1), Phone: fmt.Sprintf("+5215500000%02d", i+1)}
	}
	f.backend.On("RandomContacts", mock.Anything, welcome.ID, string(testSession)).Return(contacts, nil).Once()
	got, err := f.coord.FetchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, n)
	return contacts
}

func targetsFor(contacts []models.Contact, channel models.Channel) []models.HandoffTarget {
	out := make([]models.HandoffTarget, len(contacts))
	for i, c := range contacts {
		out[i] = HandoffFor(c, channel)
	}
	return out
}

func TestStartLoadsTemplatesAndStats(t *testing.T) {
	f := newFixture(t)
	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{welcome, followUp}, nil)
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{DailySent: 10, DailyLimit: 100, Remaining: 90}, nil)

	f.coord.Start(context.Background())

	sel, ok := f.coord.SelectedTemplate()
	require.True(t, ok)
	assert.Equal(t, welcome.ID, sel.ID)

	q, ok := f.coord.Stats().Current()
	require.True(t, ok)
	assert.Equal(t, 90, q.Remaining)
	assert.Empty(t, f.notices.IDs())
}

func TestLoadTemplatesKeepsSurvivingSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{welcome, followUp}, nil).Once()
	_, err := f.coord.LoadTemplates(ctx)
	require.NoError(t, err)
	_, err = f.coord.SelectTemplate(followUp.ID)
	require.NoError(t, err)

	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{followUp, promo}, nil).Once()
	_, err = f.coord.LoadTemplates(ctx)
	require.NoError(t, err)
	sel, ok := f.coord.SelectedTemplate()
	require.True(t, ok)
	assert.Equal(t, followUp.ID, sel.ID)

	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{promo}, nil).Once()
	_, err = f.coord.LoadTemplates(ctx)
	require.NoError(t, err)
	sel, ok = f.coord.SelectedTemplate()
	require.True(t, ok)
	assert.Equal(t, promo.ID, sel.ID)

	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{}, nil).Once()
	_, err = f.coord.LoadTemplates(ctx)
	require.NoError(t, err)
	_, ok = f.coord.SelectedTemplate()
	assert.False(t, ok)
}

func TestLoadTemplatesFailure(t *testing.T) {
	t.Run("transport error clears the set", func(t *testing.T) {
		f := newFixture(t)
		f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{welcome}, nil).Once()
		_, err := f.coord.LoadTemplates(context.Background())
		require.NoError(t, err)

		f.backend.On("UserMessages", mock.Anything).Return(nil, fmt.Errorf("%w: connection refused", backend.ErrTransport)).Once()
		_, err = f.coord.LoadTemplates(context.Background())
		require.Error(t, err)

		_, ok := f.coord.SelectedTemplate()
		assert.False(t, ok)
		assert.Empty(t, f.coord.Snapshot().Templates)
		assert.Equal(t, notify.MessagesLoadFailed, f.notices.Last().ID)
	})

	t.Run("malformed payload", func(t *testing.T) {
		f := newFixture(t)
		f.backend.On("UserMessages", mock.Anything).Return(nil, fmt.Errorf("%w: expected array", backend.ErrMalformedResponse))
		_, err := f.coord.LoadTemplates(context.Background())
		require.ErrorIs(t, err, backend.ErrMalformedResponse)
		assert.Equal(t, notify.MessagesInvalidFormat, f.notices.Last().ID)
	})
}

func TestSelectUnknownTemplate(t *testing.T) {
	f := newFixture(t)
	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{welcome}, nil)
	_, err := f.coord.LoadTemplates(context.Background())
	require.NoError(t, err)

	_, err = f.coord.SelectTemplate(99)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
	assert.Equal(t, notify.UnknownMessage, f.notices.Last().ID)

	sel, ok := f.coord.SelectedTemplate()
	require.True(t, ok)
	assert.Equal(t, welcome.ID, sel.ID)
}

func TestFetchBatchWithoutTemplate(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.FetchBatch(context.Background())
	assert.ErrorIs(t, err, ErrNoTemplateSelected)
	assert.Equal(t, notify.SelectMessageFirst, f.notices.Last().ID)
	f.backend.AssertNotCalled(t, "RandomContacts", mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchBatchSuccess(t *testing.T) {
	f := newFixture(t)
	f.withBatch(t, 3)

	assert.Len(t, f.coord.Batch(), 3)
	last := f.notices.Last()
	assert.Equal(t, notify.ContactsLoaded, last.ID)
	assert.Equal(t, 3, last.Data["Count"])
	assert.Equal(t, 2, f.events.Count("loading"))
}

func TestFetchBatchFailuresEmptyTheBatch(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		notice string
	}{
		{"quota", &backend.StatusError{Code: 429, Detail: "Daily limit reached"}, notify.DailyLimitReached},
		{"exhausted", &backend.StatusError{Code: 404, Detail: "No contacts available"}, notify.NoAvailableContacts},
		{"server", &backend.StatusError{Code: 500}, notify.ContactsLoadFailed},
		{"transport", fmt.Errorf("%w: timeout", backend.ErrTransport), notify.ContactsLoadFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.withBatch(t, 2)

			f.backend.On("RandomContacts", mock.Anything, welcome.ID, string(testSession)).Return(nil, tc.err).Once()
			_, err := f.coord.FetchBatch(context.Background())
			require.Error(t, err)

			assert.Empty(t, f.coord.Batch())
			assert.Equal(t, tc.notice, f.notices.Last().ID)
		})
	}
}

func TestFetchBatchEmptySuccess(t *testing.T) {
	f := newFixture(t)
	f.withBatch(t, 2)

	f.backend.On("RandomContacts", mock.Anything, welcome.ID, string(testSession)).Return([]models.Contact{}, nil).Once()
	got, err := f.coord.FetchBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, f.coord.Batch())
	assert.Equal(t, notify.NoAvailableContacts, f.notices.Last().ID)
}

func TestDispatchStaggersHandoffs(t *testing.T) {
	f := newFixture(t)
	contacts := f.withBatch(t, 3)
	targets := targetsFor(contacts, models.ChannelSMS)

	req := models.SendBatchRequest{MessageID: welcome.ID, Platform: models.ChannelSMS, UserSession: string(testSession)}
	f.backend.On("SendBatch", mock.Anything, req).Return(targets, nil).Once()
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{DailySent: 3, DailyLimit: 100, SMSCount: 3, Remaining: 97}, nil).Once()

	report, err := f.coord.Dispatch(context.Background(), models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Count)

	assert.Equal(t, DefaultHandoffStride, report.Stride)
	start := f.clock.Now()

	assert.Empty(t, f.coord.Batch())
	last := f.notices.Last()
	assert.Equal(t, notify.BatchSent, last.ID)
	assert.Equal(t, "SMS", last.Data["Channel"])
	assert.Equal(t, 3, last.Data["Count"])
	f.backend.AssertNumberOfCalls(t, "UserStats", 1)

	assert.Empty(t, f.opener.Opened())
	f.clock.Advance(0)
	assert.Equal(t, []string{targets[0].URL}, f.opener.Opened())
	f.clock.Advance(999 * time.Millisecond)
	assert.Len(t, f.opener.Opened(), 1)
	f.clock.Advance(time.Millisecond)
	assert.Len(t, f.opener.Opened(), 2)
	f.clock.Advance(time.Second)
	assert.Equal(t, []string{targets[0].URL, targets[1].URL, targets[2].URL}, f.opener.Opened())

	select {
	case <-report.Handoffs.Done():
	default:
		t.Fatal("hand-off sequence not finished")
	}
	assert.Equal(t, []time.Duration{0, time.Second, 2 * time.Second}, firedOffsets(report.Handoffs, start))
	assert.Eventually(t, func() bool { return f.coord.PendingHandoffs() == 0 }, time.Second, 5*time.Millisecond)

	require.Len(t, f.history.records, 1)
	assert.Equal(t, string(testSession), f.history.records[0].Session)
	assert.Equal(t, models.ChannelSMS, f.history.records[0].Channel)
	assert.Equal(t, 3, f.history.records[0].Count)
}

func TestDispatchUsesServerTargetsInOrder(t *testing.T) {
	f := newFixture(t)
	f.withBatch(t, 2)

	// the server answers with fewer targets than the batch held
	targets := []models.HandoffTarget{
		{Contact: models.Contact{ID: 7, Phone: "+5215511111111"}, URL: "https://wa.me/5215511111111?text=Hi%20there"},
	}
	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(targets, nil).Once()
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{}, nil)

	report, err := f.coord.Dispatch(context.Background(), models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, []string{targets[0].URL}, f.opener.Opened())
	assert.Equal(t, "WHATSAPP", f.notices.Last().Data["Channel"])
}

func TestDispatchEmptyBatchNeverCallsServer(t *testing.T) {
	f := newFixture(t)
	f.backend.On("UserMessages", mock.Anything).Return([]models.MessageTemplate{welcome}, nil)
	_, err := f.coord.LoadTemplates(context.Background())
	require.NoError(t, err)

	_, err = f.coord.Dispatch(context.Background(), models.ChannelSMS)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.Equal(t, notify.NoContactsLoaded, f.notices.Last().ID)
	f.backend.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
	f.backend.AssertNotCalled(t, "UserStats", mock.Anything)
	assert.Zero(t, f.clock.Pending())
}

func TestDispatchWithoutTemplate(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Dispatch(context.Background(), models.ChannelWhatsApp)
	assert.ErrorIs(t, err, ErrNoTemplateSelected)
	f.backend.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
}

func TestDispatchUnknownChannel(t *testing.T) {
	f := newFixture(t)
	f.withBatch(t, 1)

	_, err := f.coord.Dispatch(context.Background(), models.Channel("telegram"))
	assert.ErrorIs(t, err, ErrUnknownChannel)
	f.backend.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
	assert.Len(t, f.coord.Batch(), 1)
}

// A 429 while fetching empties the batch; a 429 while sending keeps it.
func TestQuotaRejectionAsymmetry(t *testing.T) {
	f := newFixture(t)
	f.withBatch(t, 2)

	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(nil, &backend.StatusError{Code: 429, Detail: "Daily limit reached"}).Once()
	_, err := f.coord.Dispatch(context.Background(), models.ChannelSMS)
	require.ErrorIs(t, err, backend.ErrQuotaExceeded)
	assert.Len(t, f.coord.Batch(), 2)
	assert.Equal(t, notify.DailyLimitReached, f.notices.Last().ID)
	f.backend.AssertNotCalled(t, "UserStats", mock.Anything)
	assert.Zero(t, f.clock.Pending())
	assert.Empty(t, f.history.records)

	f.backend.On("RandomContacts", mock.Anything, welcome.ID, string(testSession)).Return(nil, &backend.StatusError{Code: 429}).Once()
	_, err = f.coord.FetchBatch(context.Background())
	require.ErrorIs(t, err, backend.ErrQuotaExceeded)
	assert.Empty(t, f.coord.Batch())
	assert.Equal(t, notify.DailyLimitReached, f.notices.Last().ID)
}

func TestDispatchServerErrorKeepsBatch(t *testing.T) {
	f := newFixture(t)
	f.withBatch(t, 2)

	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(nil, &backend.StatusError{Code: 500}).Once()
	_, err := f.coord.Dispatch(context.Background(), models.ChannelWhatsApp)
	require.ErrorIs(t, err, backend.ErrServer)

	assert.Len(t, f.coord.Batch(), 2)
	last := f.notices.Last()
	assert.Equal(t, notify.BatchSendFailed, last.ID)
	assert.Equal(t, "WHATSAPP", last.Data["Channel"])
}

func TestDispatchSurvivesStatsFailure(t *testing.T) {
	f := newFixture(t)
	contacts := f.withBatch(t, 1)

	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(targetsFor(contacts, models.ChannelSMS), nil).Once()
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{}, errors.New("boom")).Once()

	report, err := f.coord.Dispatch(context.Background(), models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, notify.BatchSent, f.notices.Last().ID)
}

func firedOffsets(seq *HandoffSequence, start time.Time) []time.Duration {
	var out []time.Duration
	for _, h := range seq.Fired() {
		out = append(out, h.At.Sub(start))
	}
	return out
}

func TestCancelHandoffs(t *testing.T) {
	f := newFixture(t)
	assert.Zero(t, f.coord.CancelHandoffs())

	contacts := f.withBatch(t, 3)
	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(targetsFor(contacts, models.ChannelSMS), nil).Once()
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{}, nil)

	report, err := f.coord.Dispatch(context.Background(), models.ChannelSMS)
	require.NoError(t, err)

	f.clock.Advance(0)
	require.Len(t, f.opener.Opened(), 1)

	assert.Equal(t, 1, f.coord.CancelHandoffs())
	f.clock.Advance(5 * time.Second)
	assert.Len(t, f.opener.Opened(), 1)
	assert.Len(t, report.Handoffs.Fired(), 1)

	select {
	case <-report.Handoffs.Done():
	default:
		t.Fatal("cancelled sequence not finished")
	}
}

func TestCancelHandoffsReachesEveryDispatch(t *testing.T) {
	f := newFixture(t)
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{}, nil)

	first := f.withBatch(t, 3)
	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(targetsFor(first, models.ChannelSMS), nil).Once()
	r1, err := f.coord.Dispatch(context.Background(), models.ChannelSMS)
	require.NoError(t, err)

	second := f.withBatch(t, 3)
	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(targetsFor(second, models.ChannelWhatsApp), nil).Once()
	r2, err := f.coord.Dispatch(context.Background(), models.ChannelWhatsApp)
	require.NoError(t, err)

	assert.Equal(t, 2, f.coord.PendingHandoffs())
	f.clock.Advance(0)
	require.Len(t, f.opener.Opened(), 1)

	assert.Equal(t, 2, f.coord.CancelHandoffs())
	f.clock.Advance(10 * time.Second)
	assert.Len(t, f.opener.Opened(), 1)
	for _, r := range []*DispatchReport{r1, r2} {
		select {
		case <-r.Handoffs.Done():
		default:
			t.Fatal("cancelled sequence not finished")
		}
	}
	assert.Eventually(t, func() bool { return f.coord.PendingHandoffs() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, f.coord.CancelHandoffs())
}

func TestOverlappingDispatchesShareThePace(t *testing.T) {
	f := newFixture(t)
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{}, nil)

	first := f.withBatch(t, 2)
	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(targetsFor(first, models.ChannelSMS), nil).Once()
	r1, err := f.coord.Dispatch(context.Background(), models.ChannelSMS)
	require.NoError(t, err)

	second := f.withBatch(t, 2)
	f.backend.On("SendBatch", mock.Anything, mock.Anything).Return(targetsFor(second, models.ChannelSMS), nil).Once()
	r2, err := f.coord.Dispatch(context.Background(), models.ChannelSMS)
	require.NoError(t, err)

	start := f.clock.Now()
	f.clock.Advance(3 * time.Second)
	assert.Len(t, f.opener.Opened(), 4)

	// the two sequences interleave, one hand-off per stride
	assert.Equal(t, []time.Duration{0, 2 * time.Second}, firedOffsets(r1.Handoffs, start))
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, firedOffsets(r2.Handoffs, start))
}

func TestOpenContact(t *testing.T) {
	f := newFixture(t)
	c := models.Contact{ID: 4, Name: "Ana", Phone: "+5215512345678"}

	target, err := f.coord.OpenContact(context.Background(), c, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/5215512345678", target.URL)

	target, err = f.coord.OpenContact(context.Background(), c, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "sms:+5215512345678", target.URL)

	_, err = f.coord.OpenContact(context.Background(), c, models.Channel("fax"))
	assert.ErrorIs(t, err, ErrUnknownChannel)

	assert.Equal(t, []string{"https://wa.me/5215512345678", "sms:+5215512345678"}, f.opener.Opened())
	f.backend.AssertNotCalled(t, "SendBatch", mock.Anything, mock.Anything)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	f.withBatch(t, 2)
	f.backend.On("UserStats", mock.Anything).Return(models.QuotaState{DailySent: 80, DailyLimit: 100, Remaining: 20}, nil)
	_, err := f.coord.RefreshStats(context.Background())
	require.NoError(t, err)

	snap := f.coord.Snapshot()
	assert.Equal(t, testSession, snap.Session)
	assert.Len(t, snap.Templates, 2)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, welcome.ID, snap.Selected.ID)
	assert.Len(t, snap.Batch, 2)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, BandWarn, snap.Stats.Usage.Band)
	assert.False(t, snap.Loading)
}
