// internal/notify/mock.go
package notify

import (
	"context"
	"sync"
)

// MockNotifier records messages instead of sending them. Used in tests and
// as the default when no SMTP relay is configured.
type MockNotifier struct {
	mu   sync.Mutex
	Fail error // when set, Send returns it

	sent []Message
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (m *MockNotifier) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
