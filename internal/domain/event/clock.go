package event

import "time"

// Clock abstracts wall-clock time so services can be tested with a fake
// clock instead of sleeping.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock implements Clock for testing.
type MockClock struct {
	CurrentTime time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{CurrentTime: t}
}

func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}
