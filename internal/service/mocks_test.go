package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/samims/tradenotify/internal/model"
)

// MockPreferenceResolver is a testify mock of PreferenceResolver
type MockPreferenceResolver struct {
	mock.Mock
}

func NewMockPreferenceResolver(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPreferenceResolver {
	m := &MockPreferenceResolver{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPreferenceResolver) ResolvePreferences(ctx context.Context, userID string, category model.Category) (model.Preference, error) {
	args := m.Called(ctx, userID, category)
	return args.Get(0).(model.Preference), args.Error(1)
}

// MockDeliveryService is a testify mock of DeliveryService
type MockDeliveryService struct {
	mock.Mock
}

func NewMockDeliveryService(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockDeliveryService {
	m := &MockDeliveryService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockDeliveryService) Deliver(ctx context.Context, n *model.QueueEntry) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockHealthCheckStorage is a testify mock of storage.HealthCheckStorage
type MockHealthCheckStorage struct {
	mock.Mock
}

func NewMockHealthCheckStorage(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockHealthCheckStorage {
	m := &MockHealthCheckStorage{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockHealthCheckStorage) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
