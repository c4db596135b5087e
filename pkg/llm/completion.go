// Package llm provides OpenAI-compatible chat completion functionality with
// tool calling, rate-limit classification, and cross-model fallback.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a model-requested invocation of a tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc holds the function name and raw JSON arguments of a tool call.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one tool the model may invoke. Parameters is a
// JSON-Schema object describing the arguments.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// CompletionRequest is a single chat-completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	Tools       []ToolDefinition
}

// Usage holds provider-reported token counts for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the element-wise sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// CompletionResult is the outcome of a successful completion.
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	ModelUsed string
}

// CompletionClient performs a chat completion. Implemented by the provider
// client (single deterministic attempt) and by the fallback client that wraps
// it with retry and model substitution.
type CompletionClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}

// ToolExecutor runs a model-requested tool and returns a textual result to
// feed back to the model. Implementations never return an error for a failed
// tool target; failures become descriptive result text.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, arguments string) string
}
