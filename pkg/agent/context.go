package agent

import (
	"sync"

	"github.com/go-go-golems/callgpt/pkg/llm"
)

// Turn is one conversation entry. CallID and Args are only set on tool
// results and echo the request they answer.
type Turn struct {
	Role   llm.Role
	Name   string
	Text   string
	CallID string
	Args   string
}

// Context is the append-only conversation of one call. The first turn is the
// system prompt.
type Context struct {
	mu    sync.Mutex
	turns []Turn
}

func NewContext(systemPrompt string) *Context {
	return &Context{turns: []Turn{{Role: llm.RoleSystem, Text: systemPrompt}}}
}

// Append adds a turn and returns the new length.
func (c *Context) Append(t Turn) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
	return len(c.turns)
}

func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Turns returns a copy of the conversation so far.
func (c *Context) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.turns...)
}

func (c *Context) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, 0, len(c.turns))
	for _, t := range c.turns {
		out = append(out, llm.Message{
			Role:       t.Role,
			Name:       t.Name,
			Content:    t.Text,
			ToolCallID: t.CallID,
			ToolArgs:   t.Args,
		})
	}
	return out
}
