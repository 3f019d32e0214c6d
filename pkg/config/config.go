// Package config loads callgpt settings from a YAML file and CALLGPT_
// environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "CALLGPT"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	STT        STTConfig        `mapstructure:"stt"`
	TTS        TTSConfig        `mapstructure:"tts"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Call       CallConfig       `mapstructure:"call"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Store      StoreConfig      `mapstructure:"store"`
	Events     EventsConfig     `mapstructure:"events"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// PublicHost is the host the telephony provider can reach, used in the TwiML stream URL.
	PublicHost      string        `mapstructure:"public_host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

type STTConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	URL            string `mapstructure:"url"`
	EndpointingMs  int    `mapstructure:"endpointing_ms"`
	UtteranceEndMs int    `mapstructure:"utterance_end_ms"`
}

type TTSConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	MaxToolDepth int    `mapstructure:"max_tool_depth"`
	Greeting     string `mapstructure:"greeting"`
	// TokenEncoding names the tiktoken encoding used for prompt size logging.
	TokenEncoding string `mapstructure:"token_encoding"`
}

type CallConfig struct {
	BargeInMinChars int `mapstructure:"barge_in_min_chars"`
	MediaQueue      int `mapstructure:"media_queue"`
}

type EscalationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// StoreConfig selects persistence. An empty DSN keeps tickets and knowledge in memory.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type EventsConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.public_host", "")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "qwen-qwq-32b")
	v.SetDefault("llm.api_key", "")

	v.SetDefault("stt.api_key", "")
	v.SetDefault("stt.model", "nova-2")
	v.SetDefault("stt.url", "")
	v.SetDefault("stt.endpointing_ms", 200)
	v.SetDefault("stt.utterance_end_ms", 1000)

	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.model", "aura-asteria-en")
	v.SetDefault("tts.url", "")
	v.SetDefault("tts.timeout", "15s")

	v.SetDefault("agent.max_tool_depth", 5)
	v.SetDefault("agent.greeting", "Hello! I understand you're looking for a pair of AirPods, is that correct?")
	v.SetDefault("agent.token_encoding", "cl100k_base")

	v.SetDefault("call.barge_in_min_chars", 5)
	v.SetDefault("call.media_queue", 256)

	v.SetDefault("escalation.poll_interval", "5s")
	v.SetDefault("escalation.max_attempts", 12)

	v.SetDefault("store.dsn", "callgpt.db")

	v.SetDefault("events.redis.enabled", false)
	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("events.redis.group", "callgpt")
	v.SetDefault("events.redis.consumer", "callgpt-1")
}

// FromViper decodes v after registering defaults and CALLGPT_ environment
// overrides on it. The command line passes the global viper that clay has
// already pointed at the config file.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}

// Load reads path into a fresh viper. An empty path applies only defaults
// and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return FromViper(v)
}

// Validate reports settings serve cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}
	if c.STT.APIKey == "" {
		missing = append(missing, "stt.api_key")
	}
	if c.TTS.APIKey == "" {
		missing = append(missing, "tts.api_key")
	}
	if c.Server.PublicHost == "" {
		missing = append(missing, "server.public_host")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Agent.MaxToolDepth < 0 {
		return errors.New("agent.max_tool_depth must not be negative")
	}
	if c.Escalation.MaxAttempts <= 0 || c.Escalation.PollInterval <= 0 {
		return errors.New("escalation.max_attempts and escalation.poll_interval must be positive")
	}
	return nil
}
