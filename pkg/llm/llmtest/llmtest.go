// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/callgpt/pkg/llm"
)

// Script is the chunk sequence returned for one Stream call. Err, when set,
// is returned after the chunks instead of io.EOF.
type Script struct {
	Chunks []llm.Chunk
	Err    error
}

// Provider replays scripts in order, one per Stream call, and records requests.
type Provider struct {
	mu       sync.Mutex
	scripts  []Script
	requests []llm.Request
	// Gate, when set, is read once before each stream is returned.
	Gate chan struct{}
}

var _ llm.Provider = &Provider{}

func New(scripts ...Script) *Provider {
	return &Provider{scripts: scripts}
}

func (p *Provider) Push(s Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, s)
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := append([]llm.Message(nil), req.Messages...)
	req.Messages = msgs
	p.requests = append(p.requests, req)
	if len(p.scripts) == 0 {
		return nil, errors.New("llmtest: no script left")
	}
	s := p.scripts[0]
	p.scripts = p.scripts[1:]
	return &stream{script: s}, nil
}

// Requests returns copies of every request seen so far.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

type stream struct {
	script Script
	pos    int
}

func (s *stream) Recv() (llm.Chunk, error) {
	if s.pos < len(s.script.Chunks) {
		c := s.script.Chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.script.Err != nil {
		return llm.Chunk{}, s.script.Err
	}
	return llm.Chunk{}, io.EOF
}

func (s *stream) Close() error { return nil }

// Text builds a script that streams each piece as content and ends with stop.
func Text(pieces ...string) Script {
	var out Script
	for i, p := range pieces {
		c := llm.Chunk{Content: p}
		if i == len(pieces)-1 {
			c.FinishReason = llm.FinishStop
		}
		out.Chunks = append(out.Chunks, c)
	}
	return out
}

// ToolCall builds a script that requests one tool call with args split across chunks.
func ToolCall(name string, argPieces ...string) Script {
	var out Script
	for i, a := range argPieces {
		c := llm.Chunk{ToolArgs: a}
		if i == 0 {
			c.ToolName = name
			c.ToolCallID = "call_" + name
		}
		if i == len(argPieces)-1 {
			c.FinishReason = llm.FinishToolCalls
		}
		out.Chunks = append(out.Chunks, c)
	}
	return out
}
