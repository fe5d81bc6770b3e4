package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linguahub/translation-gateway/internal/auth"
	"github.com/linguahub/translation-gateway/internal/config"
	"github.com/linguahub/translation-gateway/internal/gateway"
	"github.com/linguahub/translation-gateway/internal/history"
	"github.com/linguahub/translation-gateway/internal/observability"
	"github.com/linguahub/translation-gateway/internal/pipeline"
	"github.com/linguahub/translation-gateway/internal/resilience"
	"github.com/linguahub/translation-gateway/internal/room"
	"github.com/linguahub/translation-gateway/internal/stt"
	"github.com/linguahub/translation-gateway/internal/translate"
	"github.com/linguahub/translation-gateway/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("translate_url", cfg.TranslateURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Translation Gateway Service starting")

	// Audio store backing synthesized speech references
	store, err := tts.NewStore(cfg.MediaDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.MediaDir).Msg("Failed to create media store")
	}

	// Stage clients
	transcriber := stt.NewDeepgramClient(cfg)
	translator := translate.NewLibreTranslateClient(cfg)
	synthesizer := tts.NewVoiceRSSClient(cfg, store)

	runner := pipeline.NewRunner(transcriber, translator, synthesizer, pipeline.Config{
		StageTimeout:   cfg.StageTimeoutDuration(),
		RealtimeTarget: cfg.RealtimeTargetDuration(),
		SlowCeiling:    cfg.SlowPipelineCapDuration(),
	}, logger)

	registry := room.NewRegistry(logger)
	authenticator := auth.NewAuthenticator(cfg.AuthSecret)

	var recorder history.Recorder = history.NopRecorder{}
	if cfg.HistoryURL != "" {
		recorder = history.NewHTTPRecorder(cfg.HistoryURL, &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}, logger)
		logger.Info().Str("history_url", cfg.HistoryURL).Msg("Exchange history recording enabled")
	}

	gw := gateway.New(cfg, runner, registry, authenticator, recorder, logger)

	// Create HTTP server
	mux := http.NewServeMux()

	// Translation WebSocket endpoints; room name from the path, default room
	// when omitted
	mux.HandleFunc("/ws/translation", gw.HandleWS)
	mux.HandleFunc("/ws/translation/{room}", gw.HandleWS)

	// Synthesized audio references resolve against the media store
	mux.Handle("/media/audio/", http.StripPrefix("/media/audio/", http.FileServer(http.Dir(store.Dir()))))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: validate stage client construction and media store access
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"deepgram": func(ctx context.Context) (bool, error) {
			if transcriber == nil {
				return false, fmt.Errorf("deepgram client unavailable")
			}
			return true, nil
		},
		"media_store": func(ctx context.Context) (bool, error) {
			if _, err := os.Stat(store.Dir()); err != nil {
				return false, err
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Read/write timeouts stay generous so
	// long-lived WebSocket sessions are not cut off.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	endpoint := fmt.Sprintf("ws://localhost:%s/ws/translation", cfg.Port)
	if cfg.GatewayURL != "" {
		endpoint = fmt.Sprintf("%s/ws/translation", cfg.GatewayURL)
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", endpoint).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
