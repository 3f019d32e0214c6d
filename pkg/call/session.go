// Package call runs one phone call: it reads the media stream, feeds the
// transcriber, drives the agent, and plays synthesized replies back in order.
package call

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/go-go-golems/callgpt/pkg/agent"
	"github.com/go-go-golems/callgpt/pkg/call/protocol"
	"github.com/go-go-golems/callgpt/pkg/events"
	"github.com/go-go-golems/callgpt/pkg/voice/stt"
	"github.com/go-go-golems/callgpt/pkg/voice/tts"
)

type State int

const (
	StateAwaitingStart State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting_start"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// DefaultBargeInMinChars applies when SessionConfig.BargeInMinChars is negative.
const DefaultBargeInMinChars = 5

// SessionConfig tunes a Session. A BargeInMinChars of 0 lets any non-empty
// partial interrupt playback.
type SessionConfig struct {
	Greeting        string
	BargeInMinChars int
	MediaQueue      int
}

// EngineFactory builds the agent for one call, delivering segments to sink.
type EngineFactory func(sink agent.SegmentSink) *agent.Engine

type Deps struct {
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
	NewEngine   EngineFactory
	Events      *events.CallEvents
}

type synthResult struct {
	chunk Chunk
	err   error
}

// Session is the state machine for one call. All state is owned by the
// goroutine running Run; other goroutines talk to it through channels.
type Session struct {
	cfg  SessionConfig
	deps Deps
	out  Outbound

	inbound     chan protocol.Inbound
	synthesized chan synthResult
	done        chan struct{}
	doneOnce    sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	tasks  conc.WaitGroup
	logger zerolog.Logger

	// loop-owned
	state           State
	streamSid       string
	callSid         string
	interaction     int
	lastInterrupted int
	engine          *agent.Engine
	relay           *Relay
	marks           *MarkSet
	buffer          *ReorderBuffer

	icMu             sync.Mutex
	interactionCtx   map[int]context.Context
	interactionStop  map[int]context.CancelFunc
	cancelledThrough int
}

func NewSession(out Outbound, deps Deps, cfg SessionConfig) *Session {
	if cfg.BargeInMinChars < 0 {
		cfg.BargeInMinChars = DefaultBargeInMinChars
	}
	s := &Session{
		cfg:              cfg,
		deps:             deps,
		out:              out,
		inbound:          make(chan protocol.Inbound, 64),
		synthesized:      make(chan synthResult, 16),
		done:             make(chan struct{}),
		logger:           log.With().Str("component", "call").Logger(),
		lastInterrupted:  -1,
		marks:            NewMarkSet(),
		interactionCtx:   map[int]context.Context{},
		interactionStop:  map[int]context.CancelFunc{},
		cancelledThrough: -1,
	}
	s.buffer = NewReorderBuffer(s.play)
	return s
}

// Deliver hands a transport event to the session. It does not wait for
// processing and is a no-op once the session has ended. Events missing the
// payload their type requires are dropped.
func (s *Session) Deliver(ev protocol.Inbound) {
	select {
	case s.inbound <- ev:
	case <-s.done:
	}
}

// Marks exposes the pending playback marks.
func (s *Session) Marks() *MarkSet { return s.marks }

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run processes events until the call stops or ctx is cancelled. It waits for
// in-flight work to finish before returning.
func (s *Session) Run(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.shutdown()

	var partials, finals <-chan string
	wired := false
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case ev := <-s.inbound:
			if err := s.handleInbound(ev); err != nil {
				return err
			}
			if s.state == StateEnded {
				return nil
			}
			if s.relay != nil && !wired {
				partials, finals = s.relay.Partials(), s.relay.Finals()
				wired = true
			}
		case text, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.handlePartial(text)
		case text, ok := <-finals:
			if !ok {
				finals = nil
				s.logger.Warn().Msg("transcription stream ended")
				continue
			}
			s.handleFinal(text)
		case r := <-s.synthesized:
			s.handleSynthesized(r)
		}
	}
}

func (s *Session) shutdown() {
	prev := s.state
	s.state = StateEnded
	s.cancel()
	s.doneOnce.Do(func() { close(s.done) })
	if s.relay != nil {
		if err := s.relay.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close transcription stream")
		}
	}
	if r := s.tasks.WaitAndRecover(); r != nil {
		s.logger.Error().Str("panic", r.String()).Msg("session task panicked")
	}
	if prev != StateAwaitingStart {
		s.deps.Events.Publish(events.CallEvent{Type: events.CallEnded, StreamSid: s.streamSid, CallSid: s.callSid})
	}
	s.logger.Info().Int("interactions", s.interaction).Msg("call ended")
}

func (s *Session) handleInbound(ev protocol.Inbound) error {
	if s.state == StateAwaitingStart {
		if ev.Event != protocol.EventStart {
			s.logger.Debug().Str("event", ev.Event).Msg("ignoring event before start")
			return nil
		}
		if ev.Start == nil {
			s.logger.Debug().Msg("start event without payload")
			return nil
		}
		return s.start(ev.Start)
	}
	switch ev.Event {
	case protocol.EventMedia:
		if ev.Media == nil {
			return nil
		}
		s.relay.Send(ev.Media.Payload)
	case protocol.EventMark:
		if ev.Mark == nil {
			return nil
		}
		s.marks.Ack(ev.Mark.Name)
	case protocol.EventStop:
		s.logger.Info().Msg("media stream stopped")
		s.state = StateEnded
	case protocol.EventStart:
		s.logger.Warn().Msg("duplicate start ignored")
	}
	return nil
}

func (s *Session) start(info *protocol.StartInfo) error {
	s.streamSid = info.StreamSid
	s.callSid = info.CallSid
	s.logger = s.logger.With().Str("stream_sid", s.streamSid).Str("call_sid", s.callSid).Logger()

	if s.deps.Transcriber == nil || s.deps.NewEngine == nil || s.deps.Synthesizer == nil {
		return errors.New("session dependencies not configured")
	}
	stream, err := s.deps.Transcriber.Open(s.ctx)
	if err != nil {
		return errors.Wrap(err, "open transcription stream")
	}
	s.relay = NewRelay(stream, s.cfg.MediaQueue)
	s.tasks.Go(func() { s.relay.Run(s.ctx) })

	s.engine = s.deps.NewEngine(s.onSegment)
	s.engine.SetCallSid(s.callSid)
	s.state = StateActive
	s.logger.Info().Msg("call started")
	s.deps.Events.Publish(events.CallEvent{Type: events.CallStarted, StreamSid: s.streamSid, CallSid: s.callSid})

	if s.cfg.Greeting != "" {
		s.synthesize(0, nil, s.cfg.Greeting)
	}
	return nil
}

func (s *Session) handlePartial(text string) {
	if s.marks.Len() == 0 || utf8.RuneCountInString(text) <= s.cfg.BargeInMinChars {
		return
	}
	s.logger.Info().Int("interaction", s.interaction).Str("partial", text).Msg("caller barged in")
	s.marks.Clear()
	if err := s.out.Clear(s.streamSid); err != nil {
		s.logger.Warn().Err(err).Msg("send clear")
	}
	s.buffer.Interrupt(s.interaction)
	s.lastInterrupted = s.interaction
	s.deps.Events.Publish(events.CallEvent{Type: events.CallBargeIn, StreamSid: s.streamSid, CallSid: s.callSid, Interaction: s.interaction, Text: text})
}

func (s *Session) handleFinal(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if s.lastInterrupted >= 0 {
		s.cancelInteractionsThrough(s.lastInterrupted)
	}
	s.interaction++
	n := s.interaction
	s.logger.Info().Int("interaction", n).Str("text", text).Msg("caller said")
	s.deps.Events.Publish(events.CallEvent{Type: events.CallTranscript, StreamSid: s.streamSid, CallSid: s.callSid, Interaction: n, Text: text})

	engine, ctx := s.engine, s.ctx
	s.tasks.Go(func() {
		if err := engine.Completion(ctx, text, n); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Int("interaction", n).Msg("completion failed")
		}
	})
}

// onSegment runs on completion goroutines.
func (s *Session) onSegment(seg agent.Segment) {
	s.deps.Events.Publish(events.CallEvent{Type: events.CallReply, StreamSid: s.streamSid, CallSid: s.callSid, Interaction: seg.Interaction, Index: seg.Index, Text: seg.Text})
	s.synthesize(seg.Interaction, seg.Index, seg.Text)
}

func (s *Session) synthesize(interaction int, index *int, text string) {
	ctx := s.contextFor(interaction)
	s.tasks.Go(func() {
		audio, err := s.deps.Synthesizer.Synthesize(ctx, text)
		r := synthResult{chunk: Chunk{Index: index, Interaction: interaction, Text: text}, err: err}
		if err == nil {
			r.chunk.Audio = base64.StdEncoding.EncodeToString(audio)
		}
		select {
		case s.synthesized <- r:
		case <-s.done:
		}
	})
}

func (s *Session) handleSynthesized(r synthResult) {
	if r.err != nil {
		if errors.Is(r.err, context.Canceled) {
			s.logger.Debug().Int("interaction", r.chunk.Interaction).Msg("synthesis cancelled")
		} else {
			s.logger.Warn().Err(r.err).Int("interaction", r.chunk.Interaction).Msg("synthesis failed")
		}
		if r.chunk.Index != nil {
			s.buffer.Skip(*r.chunk.Index)
		}
		return
	}
	s.buffer.Submit(r.chunk)
}

// play is the ReorderBuffer's sender.
func (s *Session) play(c Chunk) {
	label := s.marks.New()
	if err := s.out.SendAudio(s.streamSid, c.Audio, label); err != nil {
		s.marks.Ack(label)
		s.logger.Warn().Err(err).Msg("send audio")
		return
	}
	ev := s.logger.Debug().Int("interaction", c.Interaction).Str("text", c.Text)
	if c.Index != nil {
		ev = ev.Int("index", *c.Index)
	}
	ev.Msg("audio sent")
}

func (s *Session) contextFor(interaction int) context.Context {
	s.icMu.Lock()
	defer s.icMu.Unlock()
	if ctx, ok := s.interactionCtx[interaction]; ok {
		return ctx
	}
	ctx, cancel := context.WithCancel(s.ctx)
	if interaction <= s.cancelledThrough {
		cancel()
	}
	s.interactionCtx[interaction] = ctx
	s.interactionStop[interaction] = cancel
	return ctx
}

func (s *Session) cancelInteractionsThrough(n int) {
	s.icMu.Lock()
	defer s.icMu.Unlock()
	if n <= s.cancelledThrough {
		return
	}
	s.cancelledThrough = n
	for i, cancel := range s.interactionStop {
		if i <= n {
			cancel()
			delete(s.interactionStop, i)
		}
	}
}
