package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/healthrag/core"
)

// Completer is a test double for ai.Completer.
// It allows custom behavior injection via function fields.
type Completer struct {
	// CompleteFunc is called by Complete if set.
	// If nil, uses default deterministic behavior.
	CompleteFunc func(ctx context.Context, prompt, contextText string) (*core.ModelResponse, error)

	// Name is the reported model name. Defaults to "mock-model".
	Name string

	// Confidence is the confidence of default responses. Defaults to 0.8.
	Confidence float64

	// Delay, if set, makes the default behavior sleep before responding,
	// for timeout tests. Respects context cancellation.
	Delay time.Duration

	mu        sync.Mutex
	callCount int
}

// NewCompleter creates a mock completer with default deterministic behavior.
func NewCompleter() *Completer {
	return &Completer{}
}

// ModelName reports the configured model name.
func (m *Completer) ModelName() string {
	if m.Name == "" {
		return "mock-model"
	}
	return m.Name
}

// Complete echoes a deterministic answer derived from the prompt.
func (m *Completer) Complete(ctx context.Context, prompt, contextText string) (*core.ModelResponse, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, contextText)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	confidence := m.Confidence
	if confidence == 0 {
		confidence = 0.8
	}

	content := m.ModelName() + " answer: " + prompt
	return &core.ModelResponse{
		Content:        content,
		Confidence:     confidence,
		ModelName:      m.ModelName(),
		ProcessingTime: m.Delay,
		TokenCount:     len(strings.Fields(content)),
	}, nil
}

// CallCount returns the number of times Complete was called.
func (m *Completer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
