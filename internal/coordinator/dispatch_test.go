package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"broadcast-console/internal/mocks"
	"broadcast-console/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrchestratorCustomStride(t *testing.T) {
	clock := newManualClock()
	sender := &mocks.BackendMock{}
	opener := &mocks.OpenerMock{}
	opener.On("Open", mock.Anything, mock.Anything).Return(errors.New("blocked"))

	targets := []models.HandoffTarget{
		{Contact: models.Contact{ID: 1}, URL: "sms:+1"},
		{Contact: models.Contact{ID: 2}, URL: "sms:+2"},
	}
	sender.On("SendBatch", mock.Anything, mock.Anything).Return(targets, nil)

	o := NewOrchestrator(sender, opener, clock, 250*time.Millisecond, zerolog.Nop())
	report, err := o.Dispatch(context.Background(), DispatchRequest{
		Channel:    models.ChannelSMS,
		TemplateID: 5,
		Session:    testSession,
		Batch:      []models.Contact{{ID: 1}, {ID: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, report.Stride)
	start := clock.Now()

	// a failed hand-off does not stop the rest
	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"sms:+1", "sms:+2"}, opener.Opened())
	<-report.Handoffs.Done()
	assert.Equal(t, []time.Duration{0, 250 * time.Millisecond}, firedOffsets(report.Handoffs, start))
}

func TestSlowHandoffConsumesTheStride(t *testing.T) {
	clock := newManualClock()
	sender := &mocks.BackendMock{}
	targets := []models.HandoffTarget{
		{Contact: models.Contact{ID: 1}, URL: "sms:+1"},
		{Contact: models.Contact{ID: 2}, URL: "sms:+2"},
	}
	sender.On("SendBatch", mock.Anything, mock.Anything).Return(targets, nil)

	// the first open takes two strides
	opener := &mocks.OpenerMock{}
	opener.On("Open", mock.Anything, targets[0]).Run(func(mock.Arguments) {
		clock.mu.Lock()
		clock.now = clock.now.Add(2 * time.Second)
		clock.mu.Unlock()
	}).Return(nil).Once()
	opener.On("Open", mock.Anything, targets[1]).Return(nil).Once()

	o := NewOrchestrator(sender, opener, clock, time.Second, zerolog.Nop())
	report, err := o.Dispatch(context.Background(), DispatchRequest{Channel: models.ChannelSMS, Batch: []models.Contact{{ID: 1}, {ID: 2}}})
	require.NoError(t, err)
	start := clock.Now()

	clock.Advance(0)
	require.Len(t, opener.Opened(), 1)
	assert.Equal(t, 1, clock.Pending())

	// no extra wait once the stride has passed
	clock.Advance(0)
	assert.Len(t, opener.Opened(), 2)
	<-report.Handoffs.Done()
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, firedOffsets(report.Handoffs, start))
}

func TestHandoffsCarryRequestValuesNotCancellation(t *testing.T) {
	type key struct{}
	clock := newManualClock()
	sender := &mocks.BackendMock{}
	sender.On("SendBatch", mock.Anything, mock.Anything).Return([]models.HandoffTarget{{URL: "sms:+1"}}, nil)
	opener := &mocks.OpenerMock{}
	opener.On("Open", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil && ctx.Value(key{}) == "desk"
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "desk"))
	o := NewOrchestrator(sender, opener, clock, time.Second, zerolog.Nop())
	report, err := o.Dispatch(ctx, DispatchRequest{Channel: models.ChannelSMS, Batch: []models.Contact{{ID: 1}}})
	require.NoError(t, err)
	cancel()

	clock.Advance(0)
	<-report.Handoffs.Done()
	opener.AssertExpectations(t)
}

func TestOrchestratorDefaults(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil, 0, zerolog.Nop())
	assert.Equal(t, DefaultHandoffStride, o.stride)
	assert.Equal(t, SystemClock, o.clock)

	_, err := o.Dispatch(context.Background(), DispatchRequest{Channel: models.ChannelSMS})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestOrchestratorNoTargets(t *testing.T) {
	sender := &mocks.BackendMock{}
	sender.On("SendBatch", mock.Anything, mock.Anything).Return([]models.HandoffTarget{}, nil)

	o := NewOrchestrator(sender, &mocks.OpenerMock{}, newManualClock(), time.Second, zerolog.Nop())
	report, err := o.Dispatch(context.Background(), DispatchRequest{Channel: models.ChannelSMS, Batch: []models.Contact{{ID: 1}}})
	require.NoError(t, err)
	assert.Zero(t, report.Count)

	select {
	case <-report.Handoffs.Done():
	default:
		t.Fatal("empty sequence should be done")
	}
}
