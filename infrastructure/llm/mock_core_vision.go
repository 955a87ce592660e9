package llm

import (
	"context"
	"sync"

	"github.com/poidh-labs/sentinel/internal/ports"
)

// MockCoreVision is a CoreVision test double with call counting and a
// scriptable response/error. Used by middleware tests and by the judge's
// package tests through a Client.
type MockCoreVision struct {
	mu        sync.Mutex
	callCount int
	model     string

	// Response is returned on success.
	Response Response

	// Error, when set, is returned instead of Response.
	Error error

	// Responses, when non-empty, is consumed one entry per call before
	// falling back to Response.
	Responses []string
}

// NewMockCoreVision creates a mock with a default response.
func NewMockCoreVision() *MockCoreVision {
	return &MockCoreVision{
		model:    "mock-vision-model",
		Response: Response{Text: "test response", TokensIn: 10, TokensOut: 20},
	}
}

// DoRequest returns the scripted response or error and counts the call.
func (m *MockCoreVision) DoRequest(_ context.Context, _ ports.VisionRequest) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	if m.Error != nil {
		return Response{}, m.Error
	}
	if len(m.Responses) > 0 {
		next := m.Responses[0]
		m.Responses = m.Responses[1:]
		return Response{Text: next, TokensIn: 10, TokensOut: 20}, nil
	}
	return m.Response, nil
}

// GetCallCount returns how many times DoRequest was invoked.
func (m *MockCoreVision) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// SetError scripts an error for subsequent calls; nil clears it.
func (m *MockCoreVision) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
}

// GetModel returns the mock model name.
func (m *MockCoreVision) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel updates the mock model name.
func (m *MockCoreVision) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}
