// Command converse-relay runs the WebSocket relay: callers connect with JSON
// commands and receive the session event stream, while the relay holds the
// provider connection. Configuration comes from the environment (a .env file
// is loaded when present):
//
//	RELAY_ADDR                listen address (default ":8080")
//	RELAY_PATH                conversation endpoint path
//	RELAY_AUTH_TOKEN          bearer token; empty disables auth
//	RELAY_DEFAULT_PROVIDER    "openai" or "gemini"
//	RELAY_ALLOWED_MODELS      comma-separated model allow-list
//	RELAY_MAX_SESSIONS_PER_IP per-IP session cap
//	SESSION_CONFIG_FILE       JSON session config overrides
//	OPENAI_API_KEY            key for the openai provider
//	GEMINI_API_KEY            key for the gemini provider
//	TRACE_EXPORTER            "stdout", "otlp" or "none"
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/converse-ai/converse/pkg/live"
	"github.com/converse-ai/converse/pkg/live/geminilive"
	"github.com/converse-ai/converse/pkg/live/openairt"
	"github.com/converse-ai/converse/pkg/relay"
	"github.com/converse-ai/converse/pkg/trace"
)

func main() {
	godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		trace.Shutdown(shutdownCtx)
	}()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}
	cfg.Logger = logger

	srv := relay.New(cfg)
	srv.SetProviderFactory(providerFactory)

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("relay start failed", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func loadConfig() (*relay.Config, error) {
	cfg := relay.DefaultConfig()
	cfg.Addr = getEnv("RELAY_ADDR", cfg.Addr)
	cfg.Path = getEnv("RELAY_PATH", cfg.Path)
	cfg.AuthToken = os.Getenv("RELAY_AUTH_TOKEN")
	cfg.DefaultProvider = getEnv("RELAY_DEFAULT_PROVIDER", cfg.DefaultProvider)

	if models := os.Getenv("RELAY_ALLOWED_MODELS"); models != "" {
		for _, m := range strings.Split(models, ",") {
			if m = strings.TrimSpace(m); m != "" {
				cfg.AllowedModels = append(cfg.AllowedModels, m)
			}
		}
	}
	if limit := os.Getenv("RELAY_MAX_SESSIONS_PER_IP"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("RELAY_MAX_SESSIONS_PER_IP: %w", err)
		}
		cfg.MaxSessionsPerIP = n
	}
	if path := os.Getenv("SESSION_CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("session config: %w", err)
		}
		defer f.Close()
		session, err := relay.DecodeSessionConfig(f)
		if err != nil {
			return nil, err
		}
		cfg.Session = session
	}
	return cfg, nil
}

// providerFactory builds the provider for one caller connection. API keys are
// read per connection so a rotated key applies without a restart.
func providerFactory(provider, model string) (live.Provider, error) {
	switch provider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		if model != "" {
			return openairt.New(key, openairt.WithModel(model)), nil
		}
		return openairt.New(key), nil
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, errors.New("GEMINI_API_KEY is not set")
		}
		if model != "" {
			return geminilive.New(key, geminilive.WithModel(model)), nil
		}
		return geminilive.New(key), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
