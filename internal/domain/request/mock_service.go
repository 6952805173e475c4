package request

import (
	"context"
	"sync"

	"github.com/lloydmeta/reqindex/internal/domain/item"
)

var MockDomainRequest = Request{
	ID:     "mock",
	ItemID: "mock-item",
}

// MockRequestsService counts calls and delegates to overrides when they are set.
//
// Safe to call from multiple goroutines.
type MockRequestsService struct {
	CreateCalled         uint
	CreateOverride       func(request *Request) (*Request, error)
	GetCalled            uint
	GetOverride          func(id Id) (*Request, error)
	FindByItemIdCalled   uint
	FindByItemIdOverride func(itemId item.Id) ([]Request, error)
	UpdateCalled         uint
	UpdateOverride       func(request *Request) (*Request, error)

	mu sync.Mutex
}

func (m *MockRequestsService) Create(ctx context.Context, request *Request) (*Request, error) {
	m.mu.Lock()
	m.CreateCalled++
	m.mu.Unlock()
	if m.CreateOverride != nil {
		return m.CreateOverride(request)
	} else {
		return &MockDomainRequest, nil
	}
}

func (m *MockRequestsService) Get(ctx context.Context, id Id) (*Request, error) {
	m.mu.Lock()
	m.GetCalled++
	m.mu.Unlock()
	if m.GetOverride != nil {
		return m.GetOverride(id)
	} else {
		return &MockDomainRequest, nil
	}
}

func (m *MockRequestsService) FindByItemId(ctx context.Context, itemId item.Id) ([]Request, error) {
	m.mu.Lock()
	m.FindByItemIdCalled++
	m.mu.Unlock()
	if m.FindByItemIdOverride != nil {
		return m.FindByItemIdOverride(itemId)
	} else {
		return []Request{MockDomainRequest}, nil
	}
}

func (m *MockRequestsService) Update(ctx context.Context, request *Request) (*Request, error) {
	m.mu.Lock()
	m.UpdateCalled++
	m.mu.Unlock()
	if m.UpdateOverride != nil {
		return m.UpdateOverride(request)
	} else {
		return request, nil
	}
}

// Calls returns a consistent snapshot of the call counters as
// (create, get, findByItemId, update)
func (m *MockRequestsService) Calls() (uint, uint, uint, uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalled, m.GetCalled, m.FindByItemIdCalled, m.UpdateCalled
}
