package llm

import (
	"context"
	"fmt"
)

// MockCompletionClient is a configurable mock for testing components that
// depend on a CompletionClient.
type MockCompletionClient struct {
	CompleteFunc func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Calls records every request received, in order.
	Calls []*CompletionRequest
}

var _ CompletionClient = (*MockCompletionClient)(nil)

// Complete records the request and delegates to CompleteFunc.
func (m *MockCompletionClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	m.Calls = append(m.Calls, req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResult{Content: "mock response", ModelUsed: req.Model}, nil
}

// CallsForModel returns how many recorded calls targeted the given model.
func (m *MockCompletionClient) CallsForModel(model string) int {
	count := 0
	for _, req := range m.Calls {
		if req.Model == model {
			count++
		}
	}
	return count
}

// MockToolExecutor is a configurable mock for testing tool-call handling.
type MockToolExecutor struct {
	ExecuteToolFunc func(ctx context.Context, name string, arguments string) string

	ExecuteToolCalls int
	LastName         string
	LastArguments    string
}

var _ ToolExecutor = (*MockToolExecutor)(nil)

// ExecuteTool records the call and delegates to ExecuteToolFunc.
func (m *MockToolExecutor) ExecuteTool(ctx context.Context, name string, arguments string) string {
	m.ExecuteToolCalls++
	m.LastName = name
	m.LastArguments = arguments
	if m.ExecuteToolFunc != nil {
		return m.ExecuteToolFunc(ctx, name, arguments)
	}
	return fmt.Sprintf(`{"result": "mock execution of %s"}`, name)
}
