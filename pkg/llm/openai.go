package llm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client *openai.Client
}

var _ Provider = &OpenAIProvider{}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(c)}
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("openai provider not initialized")
	}
	oreq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   true,
	}
	for _, t := range req.Tools {
		oreq.Tools = append(oreq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	s, err := p.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion stream")
	}
	log.Debug().Str("component", "llm").Str("model", req.Model).Int("messages", len(oreq.Messages)).Int("tools", len(oreq.Tools)).Msg("stream opened")
	return &openAIStream{stream: s}, nil
}

// toOpenAIMessages expands tool results into the assistant tool_calls +
// tool message pair the API expects. Results without a call id fall back to
// the legacy function role.
func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleTool:
			if m.ToolCallID == "" {
				out = append(out, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleFunction,
					Name:    m.Name,
					Content: m.Content,
				})
				continue
			}
			out = append(out, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   m.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      m.Name,
						Arguments: m.ToolArgs,
					},
				}},
			})
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Name:       m.Name,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    string(m.Role),
				Name:    m.Name,
				Content: m.Content,
			})
		}
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (Chunk, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return Chunk{}, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		ch := resp.Choices[0]
		out := Chunk{
			Content:      ch.Delta.Content,
			FinishReason: string(ch.FinishReason),
		}
		if len(ch.Delta.ToolCalls) > 0 {
			tc := ch.Delta.ToolCalls[0]
			out.ToolName = tc.Function.Name
			out.ToolArgs = tc.Function.Arguments
			out.ToolCallID = tc.ID
		}
		return out, nil
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
