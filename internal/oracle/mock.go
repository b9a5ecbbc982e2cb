package oracle

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

// MockClient is a configurable oracle for testing and offline runs.
// Responses are keyed by purpose; a purpose without a response gets "{}".
type MockClient struct {
	mu sync.Mutex

	Responses map[domain.OraclePurpose]string
	Errors    map[domain.OraclePurpose]error

	// FailFirst makes the first N calls fail with FailError, whatever the purpose.
	FailFirst int
	FailError error

	// Call tracking for assertions
	Calls []domain.JudgeRequest
}

func NewMockClient() *MockClient {
	return &MockClient{
		Responses: make(map[domain.OraclePurpose]string),
		Errors:    make(map[domain.OraclePurpose]error),
	}
}

func (c *MockClient) Judge(ctx context.Context, req domain.JudgeRequest) (*domain.Judgment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, req)
	if c.FailFirst > 0 {
		c.FailFirst--
		if c.FailError != nil {
			return nil, c.FailError
		}
		return nil, context.DeadlineExceeded
	}
	if err := c.Errors[req.Purpose]; err != nil {
		return nil, err
	}
	text, ok := c.Responses[req.Purpose]
	if !ok {
		text = "{}"
	}
	return NewJudgment(text), nil
}

// CallsFor returns the recorded calls for one purpose.
func (c *MockClient) CallsFor(purpose domain.OraclePurpose) []domain.JudgeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.JudgeRequest
	for _, call := range c.Calls {
		if call.Purpose == purpose {
			out = append(out, call)
		}
	}
	return out
}

func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
}
