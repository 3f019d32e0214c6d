package cmds

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/callgpt/pkg/agent"
	"github.com/go-go-golems/callgpt/pkg/call"
	"github.com/go-go-golems/callgpt/pkg/config"
	"github.com/go-go-golems/callgpt/pkg/escalation"
	"github.com/go-go-golems/callgpt/pkg/events"
	"github.com/go-go-golems/callgpt/pkg/knowledge"
	"github.com/go-go-golems/callgpt/pkg/llm"
	"github.com/go-go-golems/callgpt/pkg/logging"
	"github.com/go-go-golems/callgpt/pkg/server"
	"github.com/go-go-golems/callgpt/pkg/tools"
	"github.com/go-go-golems/callgpt/pkg/voice/stt"
	"github.com/go-go-golems/callgpt/pkg/voice/tts"
)

func NewServeCommand(flags *RootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer calls on the media-stream websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	bus, err := events.NewBus(events.RedisSettings{
		Enabled:  cfg.Events.Redis.Enabled,
		Addr:     cfg.Events.Redis.Addr,
		Group:    cfg.Events.Redis.Group,
		Consumer: cfg.Events.Redis.Consumer,
	}, logging.NewWatermill(log.Logger))
	if err != nil {
		_ = st.Close()
		return err
	}
	running := false
	defer func() {
		// server.Run owns both once it starts
		if !running {
			_ = bus.Close()
			_ = st.Close()
		}
	}()
	if cfg.Events.Redis.Enabled {
		if err := bus.EnsureGroupsAtTail(ctx, cfg.Events.Redis.Group, events.TopicSupervisor, events.TopicCalls); err != nil {
			return err
		}
	}
	bus.Handle("supervisor-notifications", events.TopicSupervisor, escalation.LogNotification)
	bus.Handle("call-events", events.TopicCalls, events.LogCallEvent)

	workflow := escalation.NewWorkflow(st.tickets,
		escalation.NewPublisherNotifier(bus.Publisher, events.TopicSupervisor),
		escalation.WithPollInterval(cfg.Escalation.PollInterval),
		escalation.WithMaxAttempts(cfg.Escalation.MaxAttempts),
	)

	registry, err := tools.NewRegistry()
	if err != nil {
		return err
	}
	if err := tools.RegisterCatalog(registry); err != nil {
		return err
	}
	if err := tools.RegisterAskSupervisor(registry, workflow); err != nil {
		return err
	}

	prompts, err := agent.DefaultPrompts()
	if err != nil {
		return err
	}
	greeting := cfg.Agent.Greeting
	if greeting == "" {
		greeting = prompts.Greeting
	}

	var engineOpts []agent.EngineOption
	if counter, err := agent.NewTiktokenCounter(cfg.Agent.TokenEncoding); err != nil {
		log.Warn().Err(err).Msg("token counting disabled")
	} else {
		engineOpts = append(engineOpts, agent.WithTokenCounter(counter))
	}

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL})
	transcriber := stt.NewDeepgram(stt.DeepgramConfig{
		APIKey:       cfg.STT.APIKey,
		Model:        cfg.STT.Model,
		URL:          cfg.STT.URL,
		Endpointing:  time.Duration(cfg.STT.EndpointingMs) * time.Millisecond,
		UtteranceEnd: time.Duration(cfg.STT.UtteranceEndMs) * time.Millisecond,
	})
	synth := tts.NewDeepgram(tts.DeepgramConfig{
		APIKey:  cfg.TTS.APIKey,
		Model:   cfg.TTS.Model,
		URL:     cfg.TTS.URL,
		Timeout: cfg.TTS.Timeout,
	})
	callEvents := events.NewCallEvents(bus.Publisher, events.TopicCalls)

	// learned answers reach calls after a restart
	snap := loadKnowledge(ctx, st.knowledge)
	newEngine := engineSetup{
		provider: provider,
		registry: registry,
		system:   prompts.SystemPrompt(snap),
		greeting: greeting,
		cfg: agent.EngineConfig{
			Model:        cfg.LLM.Model,
			MaxToolDepth: cfg.Agent.MaxToolDepth,
		},
		opts: engineOpts,
	}.factory()

	factory := func(out call.Outbound) *call.Session {
		return call.NewSession(out, call.Deps{
			Transcriber: transcriber,
			Synthesizer: synth,
			NewEngine:   newEngine,
			Events:      callEvents,
		}, call.SessionConfig{
			Greeting:        greeting,
			BargeInMinChars: cfg.Call.BargeInMinChars,
			MediaQueue:      cfg.Call.MediaQueue,
		})
	}

	srv := server.New(server.Options{
		Addr:            cfg.Server.Addr,
		PublicHost:      cfg.Server.PublicHost,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, call.NewHandler(factory, call.WriterConfig{}), bus, st)

	running = true
	if err := srv.Run(ctx); err != nil {
		return errors.Wrap(err, "run server")
	}
	return nil
}

func loadKnowledge(ctx context.Context, store knowledge.Store) knowledge.Snapshot {
	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, err := knowledge.Load(loadCtx, store)
	if err != nil {
		log.Warn().Err(err).Msg("serving calls without knowledge base")
		return knowledge.NewSnapshot(nil)
	}
	log.Info().Int("entries", snap.Len()).Msg("loaded knowledge base")
	return snap
}

// engineSetup holds what every call's agent shares.
type engineSetup struct {
	provider llm.Provider
	registry *tools.Registry
	system   string
	greeting string
	cfg      agent.EngineConfig
	opts     []agent.EngineOption
}

func (e engineSetup) factory() call.EngineFactory {
	return func(sink agent.SegmentSink) *agent.Engine {
		convo := agent.NewContext(e.system)
		convo.Append(agent.Turn{Role: llm.RoleAssistant, Text: e.greeting})
		return agent.NewEngine(e.provider, e.registry, convo, sink, e.cfg, e.opts...)
	}
}
