package tasking

import (
	"context"
	"sync"

	"github.com/lucheng0127/athena/internal/transport"
)

// MockTransport implements transport.ServerTransport for testing
type MockTransport struct {
	mu         sync.RWMutex
	published  []transport.TaskMessage
	targets    []string
	connected  bool
	publishErr error
	msgChan    chan transport.Inbound
	once       sync.Once
	onPublish  func(callbackID string, msg transport.TaskMessage)
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		msgChan:   make(chan transport.Inbound, 100),
	}
}

func (m *MockTransport) Subscribe(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return transport.ErrSubscribeFailed
	}
	return nil
}

func (m *MockTransport) PublishTask(ctx context.Context, callbackID string, msg transport.TaskMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return transport.ErrTransportNotConnected
	}
	if m.publishErr != nil {
		return m.publishErr
	}

	m.published = append(m.published, msg)
	m.targets = append(m.targets, callbackID)
	hook := m.onPublish
	m.mu.Unlock()

	// 模拟 agent 在 PublishTask 返回前就已回传结果
	if hook != nil {
		hook(callbackID, msg)
	}

	m.mu.Lock()
	return nil
}

func (m *MockTransport) Messages() <-chan transport.Inbound {
	return m.msgChan
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.once.Do(func() {
		close(m.msgChan)
		m.connected = false
	})
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MockTransport) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// SetOnPublish sets a hook invoked synchronously on every successful publish
func (m *MockTransport) SetOnPublish(hook func(callbackID string, msg transport.TaskMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPublish = hook
}

func (m *MockTransport) Published() ([]string, []transport.TaskMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	targets := make([]string, len(m.targets))
	copy(targets, m.targets)
	msgs := make([]transport.TaskMessage, len(m.published))
	copy(msgs, m.published)
	return targets, msgs
}

// Inject simulates a message arriving from an agent
func (m *MockTransport) Inject(msg transport.Inbound) {
	m.msgChan <- msg
}
