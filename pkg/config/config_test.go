package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	var err error
	s.origDir, err = os.Getwd()
	require.NoError(s.T(), err)
	s.tempDir = s.T().TempDir()
	require.NoError(s.T(), os.Chdir(s.tempDir))
	s.T().Setenv("HOME", s.tempDir)
}

func (s *ConfigTestSuite) TearDownTest() {
	if s.origDir != "" {
		_ = os.Chdir(s.origDir)
	}
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Load("")
	require.NoError(s.T(), err)

	assert.Equal(s.T(), ":3000", cfg.Server.Addr)
	assert.Equal(s.T(), 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(s.T(), "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(s.T(), "nova-2", cfg.STT.Model)
	assert.Equal(s.T(), 200, cfg.STT.EndpointingMs)
	assert.Equal(s.T(), "aura-asteria-en", cfg.TTS.Model)
	assert.Equal(s.T(), 5, cfg.Agent.MaxToolDepth)
	assert.Equal(s.T(), 5, cfg.Call.BargeInMinChars)
	assert.Equal(s.T(), 5*time.Second, cfg.Escalation.PollInterval)
	assert.Equal(s.T(), 12, cfg.Escalation.MaxAttempts)
	assert.Equal(s.T(), "callgpt.db", cfg.Store.DSN)
	assert.False(s.T(), cfg.Events.Redis.Enabled)
}

func (s *ConfigTestSuite) TestExplicitFile() {
	content := `
server:
  public_host: abc.ngrok.app
escalation:
  poll_interval: 1s
  max_attempts: 3
events:
  redis:
    enabled: true
    addr: redis:6379
`
	path := filepath.Join(s.tempDir, "callgpt.yaml")
	require.NoError(s.T(), os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "abc.ngrok.app", cfg.Server.PublicHost)
	assert.Equal(s.T(), time.Second, cfg.Escalation.PollInterval)
	assert.Equal(s.T(), 3, cfg.Escalation.MaxAttempts)
	assert.True(s.T(), cfg.Events.Redis.Enabled)
	assert.Equal(s.T(), "redis:6379", cfg.Events.Redis.Addr)
	assert.Equal(s.T(), "nova-2", cfg.STT.Model)
}

func (s *ConfigTestSuite) TestFromViperAndEnvOverride() {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(s.T(), v.ReadConfig(strings.NewReader("llm:\n  model: from-file\nlog-level: debug\n")))
	s.T().Setenv("CALLGPT_LLM_API_KEY", "sk-env")
	s.T().Setenv("CALLGPT_CALL_BARGE_IN_MIN_CHARS", "8")

	cfg, err := FromViper(v)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "from-file", cfg.LLM.Model)
	assert.Equal(s.T(), "sk-env", cfg.LLM.APIKey)
	assert.Equal(s.T(), 8, cfg.Call.BargeInMinChars)
	assert.Equal(s.T(), ":3000", cfg.Server.Addr)
}

func (s *ConfigTestSuite) TestExplicitMissingFileFails() {
	_, err := Load(filepath.Join(s.tempDir, "nope.yaml"))
	require.Error(s.T(), err)
}

func (s *ConfigTestSuite) TestValidate() {
	cfg, err := Load("")
	require.NoError(s.T(), err)

	err = cfg.Validate()
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "llm.api_key")
	assert.Contains(s.T(), err.Error(), "server.public_host")

	cfg.LLM.APIKey, cfg.STT.APIKey, cfg.TTS.APIKey = "a", "b", "c"
	cfg.Server.PublicHost = "example.com"
	require.NoError(s.T(), cfg.Validate())

	cfg.Escalation.MaxAttempts = 0
	require.Error(s.T(), cfg.Validate())
}
