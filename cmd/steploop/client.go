package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/martinemde/steploop/config"
	"github.com/martinemde/steploop/unifiedllm"
)

// newClient registers the configured provider. OpenAI goes through the
// native adapter for JSON mode; every other provider goes through gollm.
func newClient(cfg *config.Config, logger *slog.Logger) (*unifiedllm.Client, error) {
	adapter, err := newAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", cfg.Provider, err)
	}

	var middleware []unifiedllm.Middleware
	if cfg.MaxRetries > 0 {
		policy := unifiedllm.DefaultRetryPolicy()
		policy.MaxRetries = cfg.MaxRetries
		policy.OnRetry = func(err error, attempt int, delay time.Duration) {
			logger.Warn("retrying model call", "attempt", attempt, "delay", delay, "error", err)
		}
		middleware = append(middleware, unifiedllm.RetryMiddleware(policy))
	}
	middleware = append(middleware, unifiedllm.LoggingMiddleware(logger))

	return unifiedllm.NewClient(
		unifiedllm.WithProvider(cfg.Provider, adapter),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithMiddleware(middleware...),
	), nil
}

func newAdapter(cfg *config.Config) (unifiedllm.ProviderAdapter, error) {
	if cfg.Provider == "openai" {
		opts := []unifiedllm.OpenAIAdapterOption{unifiedllm.WithOpenAIModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, unifiedllm.WithOpenAIBaseURL(cfg.BaseURL))
		}
		return unifiedllm.NewOpenAIAdapter(cfg.APIKey, opts...)
	}

	opts := []unifiedllm.GollmAdapterOption{unifiedllm.WithModel(cfg.Model)}
	if cfg.Temperature != nil {
		opts = append(opts, unifiedllm.WithTemperature(*cfg.Temperature))
	}
	return unifiedllm.NewGollmAdapter(cfg.Provider, cfg.APIKey, opts...)
}
