// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// RealtimeConfig holds connection settings for the real-time media server.
type RealtimeConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	APIKey         string `mapstructure:"api_key"`
	APISecret      string `mapstructure:"api_secret"`
	WorkerName     string `mapstructure:"worker_name"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // milliseconds
	PingInterval   int    `mapstructure:"ping_interval"`   // milliseconds
}

// ProvidersConfig groups the pluggable pipeline backends.
type ProvidersConfig struct {
	LLM LLMConfig `mapstructure:"llm"`
	STT STTConfig `mapstructure:"stt"`
	TTS TTSConfig `mapstructure:"tts"`
}

// LLMConfig selects the language-model backend. UseLocal forces the local
// Ollama endpoint even when an API key is present.
type LLMConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Model         string `mapstructure:"model"`
	LocalModel    string `mapstructure:"local_model"`
	LocalBaseURL  string `mapstructure:"local_base_url"`
	UseLocal      bool   `mapstructure:"use_local"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
	MaxRetries    int    `mapstructure:"max_retries"`
	MaxToolRounds int    `mapstructure:"max_tool_rounds"`
}

type STTConfig struct {
	APIKey     string `mapstructure:"api_key"`
	WSEndpoint string `mapstructure:"ws_endpoint"`
	SampleRate int    `mapstructure:"sample_rate"`
}

// TTSConfig configures the OpenAI-compatible speech endpoint. It shares the
// hosted API key with the LLM config.
type TTSConfig struct {
	Voice   string `mapstructure:"voice"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// ToolsConfig holds settings for the agent's tool integrations.
type ToolsConfig struct {
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	History   HistoryConfig   `mapstructure:"history"`
}

type FirecrawlConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	CrawlLimit int    `mapstructure:"crawl_limit"`
	CacheTTL   int    `mapstructure:"cache_ttl"` // seconds
}

// SupabaseConfig covers both the MCP bridge (AccessToken) and the optional
// direct database fallback (DSN).
type SupabaseConfig struct {
	AccessToken string `mapstructure:"access_token"`
	MCPCommand  string `mapstructure:"mcp_command"`
	DSN         string `mapstructure:"dsn"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

type HistoryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Index      string `mapstructure:"index"`
	MaxResults int    `mapstructure:"max_results"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PipelineConfig holds tuning for the audio pipeline stages.
type PipelineConfig struct {
	VAD VADConfig `mapstructure:"vad"`
}

type VADConfig struct {
	EnergyThreshold float64 `mapstructure:"energy_threshold"`
	MinSilence      int     `mapstructure:"min_silence"` // milliseconds
	MinSpeech       int     `mapstructure:"min_speech"`  // milliseconds
	FrameDuration   int     `mapstructure:"frame_duration"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
