// Package llm is the streaming chat-completion boundary used by the agent.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// Message is one conversation entry sent to the provider. Tool results carry
// the call id and arguments of the request they answer when the provider
// supplied one.
type Message struct {
	Role       Role
	Name       string
	Content    string
	ToolCallID string
	ToolArgs   string
}

// ToolSpec declares a callable tool; Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// Chunk is one streamed delta. Tool fields are fragments: names arrive once,
// arguments arrive in pieces that must be concatenated.
type Chunk struct {
	Content      string
	ToolName     string
	ToolArgs     string
	ToolCallID   string
	FinishReason string
}

// Stream yields chunks until Recv returns io.EOF.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}
