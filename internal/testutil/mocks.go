// Package testutil provides shared test utilities, mocks, and fixtures
// for testing navdir.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"navdir/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockStoreDown      = errors.New("mock: store unavailable")
)

// MockKVStore implements domain.KVStore for testing. Without overrides it
// behaves as an in-memory map that ignores TTLs.
type MockKVStore struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	PutFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	PingFunc   func(ctx context.Context) error

	Data map[string][]byte
}

// NewMockKVStore creates a new MockKVStore with initialized maps
func NewMockKVStore() *MockKVStore {
	return &MockKVStore{Data: make(map[string][]byte)}
}

// NewFailingKVStore returns a store whose every call fails.
func NewFailingKVStore() *MockKVStore {
	return &MockKVStore{
		GetFunc: func(context.Context, string) ([]byte, error) { return nil, ErrMockStoreDown },
		PutFunc: func(context.Context, string, []byte, time.Duration) error { return ErrMockStoreDown },
		DeleteFunc: func(context.Context, string) error { return ErrMockStoreDown },
		PingFunc:   func(context.Context) error { return ErrMockStoreDown },
	}
}

func (m *MockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.Data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MockKVStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Data == nil {
		m.Data = make(map[string][]byte)
	}
	m.Data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MockKVStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Data, key)
	return nil
}

func (m *MockKVStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// MockEventPublisher records published config events.
type MockEventPublisher struct {
	mu sync.Mutex

	PublishFunc func(ctx context.Context, event *domain.ConfigEvent) error

	Events []*domain.ConfigEvent
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishConfigEvent(ctx context.Context, event *domain.ConfigEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

// Published returns a snapshot of the recorded events.
func (m *MockEventPublisher) Published() []*domain.ConfigEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ConfigEvent(nil), m.Events...)
}
