package pool

import (
	"sync"
	"time"
)

// Clock supplies the time used for idle bookkeeping
type Clock interface {
	Now() time.Time
}

// RealClock uses system time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock is a controllable clock for tests
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMockClock creates a MockClock set to t, or to 2024-01-01 UTC when t is zero
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &MockClock{current: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}
