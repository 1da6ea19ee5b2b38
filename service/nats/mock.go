package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu            sync.RWMutex
	exportEvents  []*ExportCompletedEvent
	invoiceEvents []*InvoiceCreatedEvent
	publishError  error
	closed        bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishExportCompleted records the event and returns any configured error.
func (m *MockPublisher) PublishExportCompleted(_ context.Context, event *ExportCompletedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.exportEvents = append(m.exportEvents, event)
	return nil
}

// PublishInvoiceCreated records the event and returns any configured error.
func (m *MockPublisher) PublishInvoiceCreated(_ context.Context, event *InvoiceCreatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.invoiceEvents = append(m.invoiceEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ExportEvents returns a copy of all published export events.
func (m *MockPublisher) ExportEvents() []*ExportCompletedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*ExportCompletedEvent, len(m.exportEvents))
	copy(events, m.exportEvents)
	return events
}

// InvoiceEvents returns a copy of all published invoice events.
func (m *MockPublisher) InvoiceEvents() []*InvoiceCreatedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*InvoiceCreatedEvent, len(m.invoiceEvents))
	copy(events, m.invoiceEvents)
	return events
}

// SetPublishError configures the mock to fail all publishes.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Reset clears all recorded events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportEvents = nil
	m.invoiceEvents = nil
	m.publishError = nil
	m.closed = false
}
