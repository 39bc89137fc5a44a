package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/ports"
)

type MockThreadFetcher struct {
	mock.Mock
}

func (m *MockThreadFetcher) FetchThread(ctx context.Context, threadID string) ([]dkg.Message, error) {
	args := m.Called(ctx, threadID)
	if messages := args.Get(0); messages != nil {
		return messages.([]dkg.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Get(ctx context.Context, cid string) ([]byte, error) {
	args := m.Called(ctx, cid)
	if data := args.Get(0); data != nil {
		return data.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

type MockStakeRegistry struct {
	mock.Mock
}

func (m *MockStakeRegistry) Stake(ctx context.Context, verifierID string) (float64, error) {
	args := m.Called(ctx, verifierID)
	return args.Get(0).(float64), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...ports.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// Published flattens every event handed to the mock, across calls.
func (m *MockEventPublisher) Published() []ports.Event {
	var out []ports.Event
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		out = append(out, call.Arguments.Get(1).([]ports.Event)...)
	}
	return out
}

// fakeClock is a hand-steppable clock for driving rounds through their
// commit and reveal windows.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
