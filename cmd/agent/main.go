// cmd/agent/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mcp-voice-agent/internal/common/config"
	"mcp-voice-agent/internal/common/database"
	"mcp-voice-agent/internal/common/logger"
	"mcp-voice-agent/internal/common/observability"
	"mcp-voice-agent/internal/common/realtime"
	"mcp-voice-agent/internal/mcp"
	"mcp-voice-agent/internal/pipeline/llm"
	"mcp-voice-agent/internal/pipeline/stt"
	"mcp-voice-agent/internal/pipeline/tts"
	"mcp-voice-agent/internal/pipeline/vad"
	"mcp-voice-agent/internal/session"
	"mcp-voice-agent/internal/tools"
	"mcp-voice-agent/internal/tools/dbquery"
	"mcp-voice-agent/internal/tools/historysearch"
	"mcp-voice-agent/internal/tools/supabase"
	"mcp-voice-agent/internal/tools/websearch"
	"mcp-voice-agent/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting voice agent...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("voice-agent")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Redis (session state + web search cache, optional) ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Warn("redis unavailable, session state and search cache disabled", zap.Error(err))
			redis = nil
		} else {
			defer redis.Close()
			zapLog.Info("Redis connected successfully")
		}
	}

	// --- Init Elasticsearch (transcript archive + history search, optional) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.GetURL() != "" {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Warn("elasticsearch unavailable, transcript archive disabled", zap.Error(err))
			esClient = nil
		} else {
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Init PostgreSQL (direct Supabase fallback, optional) ---
	var pg *database.PostgresClient
	if cfg.Tools.Supabase.DSN != "" {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgresFromDSN(cfg.Tools.Supabase.DSN)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "PostgreSQL connection")

		if err != nil {
			zapLog.Warn("postgres unavailable, db_query tool disabled", zap.Error(err))
			pg = nil
		} else {
			defer pg.Close()
			zapLog.Info("PostgreSQL connected successfully")
		}
	}

	// --- Tool registry ---
	toolRegistry := tools.NewRegistry(log)

	searchHandler := websearch.NewHandler(&websearch.Config{
		APIKey:     cfg.Tools.Firecrawl.APIKey,
		BaseURL:    cfg.Tools.Firecrawl.BaseURL,
		Timeout:    config.GetDuration(cfg.Tools.Firecrawl.Timeout),
		CrawlLimit: cfg.Tools.Firecrawl.CrawlLimit,
		CacheTTL:   time.Duration(cfg.Tools.Firecrawl.CacheTTL) * time.Second,
	}, redis, log)
	if err := toolRegistry.Register(searchHandler.Tool()); err != nil {
		zapLog.Fatal("failed to register web_search tool", zap.Error(err))
	}

	var dbToolNames []string

	// --- Supabase MCP bridge (optional, degrades to search-only) ---
	var mcpClient *mcp.Client
	if config.MCPEnabled(cfg) {
		mcpClient, err = mcp.NewClient(ctx, cfg.Tools.Supabase.MCPCommand,
			[]string{"--access-token", cfg.Tools.Supabase.AccessToken}, log)
		if err != nil {
			zapLog.Warn("MCP server unavailable, continuing in search-only mode", zap.Error(err))
			mcpClient = nil
		} else {
			bridge := supabase.NewBridge(mcpClient, log)
			bridgeTools, err := bridge.BuildTools()
			if err != nil {
				zapLog.Warn("MCP tool listing failed, continuing in search-only mode", zap.Error(err))
				mcpClient.Close()
				mcpClient = nil
			} else {
				for _, t := range bridgeTools {
					if err := toolRegistry.Register(t); err != nil {
						zapLog.Warn("failed to register MCP tool", zap.String("tool", t.Name), zap.Error(err))
						continue
					}
					dbToolNames = append(dbToolNames, t.Name)
				}
				zapLog.Info("Supabase MCP bridge ready", zap.Int("tools", len(dbToolNames)))
			}
		}
	} else {
		zapLog.Warn("SUPABASE_ACCESS_TOKEN not set, database tools disabled (search-only mode)")
	}
	if mcpClient != nil {
		defer mcpClient.Close()
	}

	if pg != nil {
		dbConfig := dbquery.DefaultConfig()
		dbConfig.Timeout = config.GetDuration(cfg.Tools.Supabase.Timeout)
		dbHandler := dbquery.NewHandler(dbConfig, pg.GetDB(), log)
		if err := toolRegistry.Register(dbHandler.Tool()); err != nil {
			zapLog.Warn("failed to register db_query tool", zap.Error(err))
		} else {
			dbToolNames = append(dbToolNames, dbquery.ToolName)
		}
	}

	if esClient != nil && cfg.Tools.History.Enabled {
		historyHandler := historysearch.NewHandler(&historysearch.Config{
			Index:      cfg.Tools.History.Index,
			MaxResults: cfg.Tools.History.MaxResults,
		}, esClient, log)
		if err := toolRegistry.Register(historyHandler.Tool()); err != nil {
			zapLog.Warn("failed to register history_search tool", zap.Error(err))
		}
	}

	// Cross-check the registry against the declared manifest when present.
	if manifest, err := registry.LoadManifest("configs/tools.json"); err == nil {
		registered := make(map[string]bool)
		for _, name := range toolRegistry.Names() {
			registered[name] = true
		}
		for _, entry := range manifest.Tools {
			if entry.Source == "builtin" && !registered[entry.Name] {
				zapLog.Warn("manifest tool not registered", zap.String("tool", entry.Name))
			}
		}
	}

	zapLog.Info("Tool registry ready", zap.Int("tools", toolRegistry.Len()))

	// --- Pipeline providers ---
	provider := llm.NewFromConfig(cfg, log)

	ttsBaseURL := cfg.Providers.TTS.BaseURL
	if ttsBaseURL == "" {
		ttsBaseURL = cfg.Providers.LLM.BaseURL
	}
	synthesizer, err := tts.NewClient(&tts.Config{
		BaseURL: ttsBaseURL,
		APIKey:  cfg.Providers.LLM.APIKey,
		Model:   cfg.Providers.TTS.Model,
		Voice:   cfg.Providers.TTS.Voice,
		Timeout: config.GetDuration(cfg.Providers.TTS.Timeout),
	}, log)
	if err != nil {
		zapLog.Fatal("tts client failed", zap.Error(err))
	}

	store := session.NewStore(esClient, redis, cfg.Tools.History.Index, log)
	instructions := session.BuildInstructions(dbToolNames)

	// --- Connect to the media server ---
	rtClient := realtime.NewClient(&realtime.ClientConfig{
		ServerURL:         cfg.Realtime.ServerURL,
		APIKey:            cfg.Realtime.APIKey,
		APISecret:         cfg.Realtime.APISecret,
		WorkerName:        cfg.Realtime.WorkerName,
		ConnectionTimeout: config.GetDuration(cfg.Realtime.ConnectTimeout),
		PingInterval:      config.GetDuration(cfg.Realtime.PingInterval),
	}, zapLog)

	if err := rtClient.Connect(ctx); err != nil {
		zapLog.Fatal("media server connection failed", zap.Error(err))
	}
	zapLog.Info("Media server connected successfully")

	// --- Job dispatch loop ---
	jobCtx, cancelJobs := context.WithCancel(ctx)
	go func() {
		for job := range rtClient.Jobs() {
			if err := rtClient.AcceptJob(job.ID); err != nil {
				zapLog.Error("failed to accept job", zap.String("jobId", job.ID), zap.Error(err))
				continue
			}

			inbound, deregister := rtClient.RegisterSession(job.ID)

			agent := session.New(
				session.Config{
					SessionID:     job.ID,
					RoomName:      job.RoomName,
					SampleRate:    cfg.Providers.STT.SampleRate,
					MaxToolRounds: cfg.Providers.LLM.MaxToolRounds,
					Instructions:  instructions,
				},
				rtClient,
				func(ctx context.Context) (session.Transcriber, error) {
					return stt.Connect(ctx, &stt.Config{
						APIKey:     cfg.Providers.STT.APIKey,
						WSEndpoint: cfg.Providers.STT.WSEndpoint,
						SampleRate: cfg.Providers.STT.SampleRate,
					}, log)
				},
				provider,
				synthesizer,
				toolRegistry,
				store,
				vad.New(vad.Config{
					EnergyThreshold: cfg.Pipeline.VAD.EnergyThreshold,
					MinSilence:      config.GetDuration(cfg.Pipeline.VAD.MinSilence),
					MinSpeech:       config.GetDuration(cfg.Pipeline.VAD.MinSpeech),
					FrameDuration:   config.GetDuration(cfg.Pipeline.VAD.FrameDuration),
				}),
				obs,
				log,
			)

			go func(job realtime.Job) {
				defer deregister()
				if err := agent.Run(jobCtx, inbound); err != nil && err != context.Canceled {
					zapLog.Error("session ended with error",
						zap.String("sessionId", job.ID),
						zap.String("room", job.RoomName),
						zap.Error(err),
					)
				}
			}(job)
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping sessions...")
	cancelJobs()

	if err := rtClient.Close(); err != nil {
		zapLog.Error("Error closing media server connection", zap.Error(err))
	}

	zapLog.Info("Voice agent stopped gracefully")
}
