// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults mirroring the original deployment.
const (
	DefaultHostedModel  = "Qwen/Qwen2.5-7B-Instruct"
	DefaultLocalModel   = "qwen2.5:7b-instruct"
	DefaultLocalBaseURL = "http://localhost:11434/v1"
	DefaultTTSVoice     = "FunAudioLLM/CosyVoice2-0.5B:claire"
	DefaultMCPCommand   = "npx -y @supabase/mcp-server-postgrest@latest"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like FIRECRAWL_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from multiple possible locations so the agent can
// be started from the repo root, cmd/agent, or a test directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig maps the original agent's environment variables onto
// fields that are still empty after yaml load and expansion.
func overrideEmptyConfig(cfg *Config) {
	// Firecrawl
	if cfg.Tools.Firecrawl.APIKey == "" {
		if val := os.Getenv("FIRECRAWL_API_KEY"); val != "" {
			cfg.Tools.Firecrawl.APIKey = val
		}
	}

	// Supabase MCP bridge + direct DSN fallback
	if cfg.Tools.Supabase.AccessToken == "" {
		if val := os.Getenv("SUPABASE_ACCESS_TOKEN"); val != "" {
			cfg.Tools.Supabase.AccessToken = val
		}
	}
	if cfg.Tools.Supabase.DSN == "" {
		if val := os.Getenv("SUPABASE_DB_DSN"); val != "" {
			cfg.Tools.Supabase.DSN = val
		}
	}

	// Hosted LLM / TTS endpoint
	if cfg.Providers.LLM.APIKey == "" {
		if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.Providers.LLM.APIKey = val
		}
	}
	if cfg.Providers.LLM.BaseURL == "" {
		if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
			cfg.Providers.LLM.BaseURL = val
		}
	}
	if cfg.Providers.LLM.Model == "" {
		if val := os.Getenv("OPENAI_MODEL"); val != "" {
			cfg.Providers.LLM.Model = val
		}
	}
	if cfg.Providers.LLM.LocalModel == "" {
		if val := os.Getenv("OLLAMA_MODEL"); val != "" {
			cfg.Providers.LLM.LocalModel = val
		}
	}
	if !cfg.Providers.LLM.UseLocal {
		if val := os.Getenv("USE_LOCAL_LLM"); strings.EqualFold(val, "true") {
			cfg.Providers.LLM.UseLocal = true
		}
	}
	if cfg.Providers.TTS.Voice == "" {
		if val := os.Getenv("TTS_VOICE"); val != "" {
			cfg.Providers.TTS.Voice = val
		}
	}

	// STT
	if cfg.Providers.STT.APIKey == "" {
		if val := os.Getenv("ASSEMBLYAI_API_KEY"); val != "" {
			cfg.Providers.STT.APIKey = val
		}
	}

	// Realtime media server
	if cfg.Realtime.ServerURL == "" {
		if val := os.Getenv("LIVEKIT_URL"); val != "" {
			cfg.Realtime.ServerURL = val
		}
	}
	if cfg.Realtime.APIKey == "" {
		if val := os.Getenv("LIVEKIT_API_KEY"); val != "" {
			cfg.Realtime.APIKey = val
		}
	}
	if cfg.Realtime.APISecret == "" {
		if val := os.Getenv("LIVEKIT_API_SECRET"); val != "" {
			cfg.Realtime.APISecret = val
		}
	}

	// Database overrides
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Realtime defaults
	if cfg.Realtime.WorkerName == "" {
		cfg.Realtime.WorkerName = "voice-agent"
	}
	if cfg.Realtime.ConnectTimeout == 0 {
		cfg.Realtime.ConnectTimeout = 10000
	}
	if cfg.Realtime.PingInterval == 0 {
		cfg.Realtime.PingInterval = 15000
	}

	// LLM defaults
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = DefaultHostedModel
	}
	if cfg.Providers.LLM.LocalModel == "" {
		cfg.Providers.LLM.LocalModel = DefaultLocalModel
	}
	if cfg.Providers.LLM.LocalBaseURL == "" {
		cfg.Providers.LLM.LocalBaseURL = DefaultLocalBaseURL
	}
	if cfg.Providers.LLM.Timeout == 0 {
		cfg.Providers.LLM.Timeout = 60000
	}
	if cfg.Providers.LLM.MaxRetries == 0 {
		cfg.Providers.LLM.MaxRetries = 2
	}
	if cfg.Providers.LLM.MaxToolRounds == 0 {
		cfg.Providers.LLM.MaxToolRounds = 5
	}

	// STT defaults
	if cfg.Providers.STT.WSEndpoint == "" {
		cfg.Providers.STT.WSEndpoint = "wss://api.assemblyai.com/v2/realtime/ws"
	}
	if cfg.Providers.STT.SampleRate == 0 {
		cfg.Providers.STT.SampleRate = 16000
	}

	// TTS defaults
	if cfg.Providers.TTS.Voice == "" {
		cfg.Providers.TTS.Voice = DefaultTTSVoice
	}
	if cfg.Providers.TTS.Timeout == 0 {
		cfg.Providers.TTS.Timeout = 30000
	}

	// Tool defaults
	if cfg.Tools.Firecrawl.BaseURL == "" {
		cfg.Tools.Firecrawl.BaseURL = "https://api.firecrawl.dev"
	}
	if cfg.Tools.Firecrawl.Timeout == 0 {
		cfg.Tools.Firecrawl.Timeout = 30000
	}
	if cfg.Tools.Firecrawl.CrawlLimit == 0 {
		cfg.Tools.Firecrawl.CrawlLimit = 5
	}
	if cfg.Tools.Firecrawl.CacheTTL == 0 {
		cfg.Tools.Firecrawl.CacheTTL = 300
	}
	if cfg.Tools.Supabase.MCPCommand == "" {
		cfg.Tools.Supabase.MCPCommand = DefaultMCPCommand
	}
	if cfg.Tools.Supabase.Timeout == 0 {
		cfg.Tools.Supabase.Timeout = 15000
	}
	if cfg.Tools.History.Index == "" {
		cfg.Tools.History.Index = "agent-transcripts"
	}
	if cfg.Tools.History.MaxResults == 0 {
		cfg.Tools.History.MaxResults = 10
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Elasticsearch URL fallback
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// VAD defaults: min_silence mirrors the original's 0.1s setting.
	if cfg.Pipeline.VAD.EnergyThreshold == 0 {
		cfg.Pipeline.VAD.EnergyThreshold = 500
	}
	if cfg.Pipeline.VAD.MinSilence == 0 {
		cfg.Pipeline.VAD.MinSilence = 100
	}
	if cfg.Pipeline.VAD.MinSpeech == 0 {
		cfg.Pipeline.VAD.MinSpeech = 60
	}
	if cfg.Pipeline.VAD.FrameDuration == 0 {
		cfg.Pipeline.VAD.FrameDuration = 20
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Tools.Firecrawl.APIKey == "" {
		return fmt.Errorf("tools.firecrawl.api_key (FIRECRAWL_API_KEY) is required")
	}

	if cfg.Realtime.ServerURL == "" {
		return fmt.Errorf("realtime.server_url is required")
	}

	// The speech backend is reached through the hosted OpenAI-compatible
	// endpoint, so the hosted key is mandatory even when the LLM runs
	// locally.
	if cfg.Providers.LLM.APIKey == "" {
		return fmt.Errorf("providers.llm.api_key (OPENAI_API_KEY) is required for speech synthesis")
	}

	return nil
}

// LLMSelection is the resolved language-model backend.
type LLMSelection struct {
	Kind    string // "hosted" or "local"
	Model   string
	BaseURL string
	APIKey  string
}

// SelectLLM resolves the three-way backend choice: the local flag wins,
// then hosted API key presence, else fall back to the local endpoint.
func SelectLLM(cfg *Config) LLMSelection {
	llm := cfg.Providers.LLM

	if llm.UseLocal {
		return LLMSelection{
			Kind:    "local",
			Model:   llm.LocalModel,
			BaseURL: llm.LocalBaseURL,
		}
	}

	if llm.APIKey != "" {
		return LLMSelection{
			Kind:    "hosted",
			Model:   llm.Model,
			BaseURL: llm.BaseURL,
			APIKey:  llm.APIKey,
		}
	}

	return LLMSelection{
		Kind:    "local",
		Model:   llm.LocalModel,
		BaseURL: llm.LocalBaseURL,
	}
}

// MCPEnabled reports whether the Supabase MCP bridge should be started.
func MCPEnabled(cfg *Config) bool {
	return cfg.Tools.Supabase.AccessToken != ""
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
