package mocks

import (
	"context"

	"broadcast-console/pkg/models"

	"github.com/stretchr/testify/mock"
)

// BackendMock is a mock for the broadcast API as seen by the coordinator
type BackendMock struct {
	mock.Mock
}

// UserMessages mocks loading the operator's templates
func (m *BackendMock) UserMessages(ctx context.Context) ([]models.MessageTemplate, error) {
	args := m.Called(ctx)
	templates, _ := args.Get(0).([]models.MessageTemplate)
	return templates, args.Error(1)
}

// RandomContacts mocks drawing a contact batch
func (m *BackendMock) RandomContacts(ctx context.Context, messageID int, session string) ([]models.Contact, error) {
	args := m.Called(ctx, messageID, session)
	contacts, _ := args.Get(0).([]models.Contact)
	return contacts, args.Error(1)
}

// SendBatch mocks the batch-send call
func (m *BackendMock) SendBatch(ctx context.Context, req models.SendBatchRequest) ([]models.HandoffTarget, error) {
	args := m.Called(ctx, req)
	targets, _ := args.Get(0).([]models.HandoffTarget)
	return targets, args.Error(1)
}

// UserStats mocks the quota counters
func (m *BackendMock) UserStats(ctx context.Context) (models.QuotaState, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(models.QuotaState)
	return state, args.Error(1)
}

// SearchPhone mocks the phone search
func (m *BackendMock) SearchPhone(ctx context.Context, query string, limit int) ([]models.Contact, error) {
	args := m.Called(ctx, query, limit)
	contacts, _ := args.Get(0).([]models.Contact)
	return contacts, args.Error(1)
}
