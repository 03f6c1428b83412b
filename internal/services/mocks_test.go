package services

import (
	"context"
	"sync"

	"github.com/coopa/backend/internal/moniepoint"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateVirtualAccount(ctx context.Context, requestID string, amount int64, coopName string) (*moniepoint.VirtualAccount, error) {
	args := m.Called(ctx, requestID, amount, coopName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*moniepoint.VirtualAccount), args.Error(1)
}

func (m *MockGateway) CheckBalance(ctx context.Context, accountNumber string) (*moniepoint.Balance, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*moniepoint.Balance), args.Error(1)
}

func (m *MockGateway) SettleFunds(ctx context.Context, t moniepoint.Transfer) (*moniepoint.TransferResult, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*moniepoint.TransferResult), args.Error(1)
}

func (m *MockGateway) RefundFunds(ctx context.Context, t moniepoint.Transfer) (*moniepoint.TransferResult, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*moniepoint.TransferResult), args.Error(1)
}

type publishedEvent struct {
	Type    string
	Key     string
	Payload []byte
}

type RecordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *RecordingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Key: partitionKey, Payload: payload})
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}
