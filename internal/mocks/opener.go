package mocks

import (
	"context"
	"sync"

	"broadcast-console/pkg/models"

	"github.com/stretchr/testify/mock"
)

// OpenerMock records hand-offs in the order they were opened
type OpenerMock struct {
	mock.Mock

	mu     sync.Mutex
	opened []models.HandoffTarget
}

// Open mocks opening a composer or chat link
func (m *OpenerMock) Open(ctx context.Context, target models.HandoffTarget) error {
	args := m.Called(ctx, target)
	m.mu.Lock()
	m.opened = append(m.opened, target)
	m.mu.Unlock()
	return args.Error(0)
}

// Opened returns the URLs opened so far
func (m *OpenerMock) Opened() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, len(m.opened))
	for i, t := range m.opened {
		urls[i] = t.URL
	}
	return urls
}
