// Package agent runs the conversation model for one call: it keeps the
// conversation, streams completions, cuts replies into speakable segments,
// and runs the tools the model asks for.
package agent

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/callgpt/pkg/llm"
	"github.com/go-go-golems/callgpt/pkg/tools"
)

// SegmentMarker ends a speakable piece of a streamed reply.
const SegmentMarker = "•"

const ToolErrorReply = "I'm sorry, I ran into a problem looking that up. Is there anything else I can help you with?"

const DefaultMaxToolDepth = 5

var ErrToolDepthExceeded = errors.New("tool call depth exceeded")

// Segment is one piece of reply text to synthesize. Index is nil for asides
// such as tool announcements; otherwise it is unique and increasing for the
// whole call.
type Segment struct {
	Interaction int
	Index       *int
	Text        string
}

type SegmentSink func(Segment)

type EngineConfig struct {
	Model        string
	MaxToolDepth int
}

type Engine struct {
	provider llm.Provider
	registry *tools.Registry
	convo    *Context
	sink     SegmentSink
	cfg      EngineConfig
	tokens   TokenCounter
	logger   zerolog.Logger

	mu        sync.Mutex
	nextIndex int
}

type EngineOption func(*Engine)

func WithTokenCounter(tc TokenCounter) EngineOption {
	return func(e *Engine) { e.tokens = tc }
}

func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(provider llm.Provider, registry *tools.Registry, convo *Context, sink SegmentSink, cfg EngineConfig, opts ...EngineOption) *Engine {
	if cfg.MaxToolDepth < 0 {
		cfg.MaxToolDepth = 0
	}
	e := &Engine{
		provider: provider,
		registry: registry,
		convo:    convo,
		sink:     sink,
		cfg:      cfg,
		logger:   log.With().Str("component", "agent").Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Context() *Context { return e.convo }

// SetCallSid tells the model which call it is on, so it can pass the id to tools.
func (e *Engine) SetCallSid(callSid string) {
	e.convo.Append(Turn{Role: llm.RoleSystem, Text: "callSid: " + callSid})
}

// Completion answers one caller utterance. Segments are delivered to the sink
// as they become available; the call returns when the reply, including any
// tool round trips, is complete.
func (e *Engine) Completion(ctx context.Context, text string, interaction int) error {
	return e.complete(ctx, Turn{Role: llm.RoleUser, Text: text}, interaction, 0)
}

func (e *Engine) complete(ctx context.Context, in Turn, interaction, depth int) error {
	e.convo.Append(in)

	req := llm.Request{Model: e.cfg.Model, Messages: e.convo.Messages()}
	if e.registry != nil {
		req.Tools = e.registry.Specs()
	}
	if e.tokens != nil {
		if ev := e.logger.Debug(); ev.Enabled() {
			total := 0
			for _, m := range req.Messages {
				total += e.tokens.Count(m.Content)
			}
			ev.Int("interaction", interaction).Int("prompt_tokens", total).Int("turns", len(req.Messages)).Msg("requesting completion")
		}
	}

	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		return errors.Wrap(err, "open completion stream")
	}
	defer func() { _ = stream.Close() }()

	var (
		completeResponse strings.Builder
		partialResponse  strings.Builder
		toolName         string
		toolArgs         strings.Builder
		toolCallID       string
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "receive completion")
		}
		if chunk.ToolName != "" {
			toolName = chunk.ToolName
		}
		if chunk.ToolCallID != "" {
			toolCallID = chunk.ToolCallID
		}
		toolArgs.WriteString(chunk.ToolArgs)

		if chunk.FinishReason == llm.FinishToolCalls {
			if in.Role == llm.RoleTool {
				return e.fail(interaction, errors.Errorf("model requested %s while answering a tool result", toolName))
			}
			return e.runTool(ctx, interaction, depth, toolName, toolArgs.String(), toolCallID)
		}

		completeResponse.WriteString(chunk.Content)
		partialResponse.WriteString(chunk.Content)
		if strings.HasSuffix(strings.TrimSpace(chunk.Content), SegmentMarker) || chunk.FinishReason == llm.FinishStop {
			e.emitIndexed(interaction, partialResponse.String())
			partialResponse.Reset()
		}
	}
	e.emitIndexed(interaction, partialResponse.String())

	if reply := completeResponse.String(); strings.TrimSpace(reply) != "" {
		n := e.convo.Append(Turn{Role: llm.RoleAssistant, Text: reply})
		e.logger.Debug().Int("interaction", interaction).Int("context_len", n).Msg("reply complete")
	}
	return nil
}

func (e *Engine) runTool(ctx context.Context, interaction, depth int, name, rawArgs, callID string) error {
	logger := e.logger.With().Int("interaction", interaction).Str("tool", name).Logger()
	if depth >= e.cfg.MaxToolDepth {
		return e.fail(interaction, errors.Wrapf(ErrToolDepthExceeded, "%s at depth %d", name, depth))
	}
	var tool *tools.Tool
	if e.registry != nil {
		tool, _ = e.registry.Lookup(name)
	}
	if tool == nil {
		return e.fail(interaction, errors.Wrap(tools.ErrUnknownTool, name))
	}
	raw, err := RepairArgs(rawArgs)
	if err != nil {
		return e.fail(interaction, err)
	}
	if err := tool.Validate(raw); err != nil {
		return e.fail(interaction, errors.Wrapf(err, "%s", name))
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return e.fail(interaction, errors.Wrap(err, "decode tool arguments"))
	}

	if tool.Say != "" {
		e.emit(Segment{Interaction: interaction, Text: tool.Say})
	}
	logger.Info().RawJSON("args", raw).Msg("calling tool")
	result, err := tool.Call(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return e.fail(interaction, errors.Wrapf(err, "tool %s", name))
	}
	logger.Debug().Str("result", result).Msg("tool returned")

	return e.complete(ctx, Turn{Role: llm.RoleTool, Name: name, Text: result, CallID: callID, Args: string(raw)}, interaction, depth+1)
}

// fail speaks and records the generic apology, then reports cause.
func (e *Engine) fail(interaction int, cause error) error {
	e.logger.Warn().Err(cause).Int("interaction", interaction).Msg("tool call failed")
	e.emitIndexed(interaction, ToolErrorReply)
	e.convo.Append(Turn{Role: llm.RoleAssistant, Text: ToolErrorReply})
	return cause
}

func (e *Engine) emitIndexed(interaction int, text string) {
	text = strings.TrimSpace(strings.ReplaceAll(text, SegmentMarker, ""))
	if text == "" {
		return
	}
	e.mu.Lock()
	idx := e.nextIndex
	e.nextIndex++
	e.mu.Unlock()
	e.emit(Segment{Interaction: interaction, Index: &idx, Text: text})
}

func (e *Engine) emit(s Segment) {
	if e.sink != nil {
		e.sink(s)
	}
}
