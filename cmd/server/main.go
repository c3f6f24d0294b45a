// Package main provides the entry point for the HVAC voice agent.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/app"
	"github.com/devrev/hvac-voice-agent/internal/config"
	"github.com/devrev/hvac-voice-agent/internal/logging"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	bootLogger := logging.New("info", "json")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	logger.Info("Starting HVAC voice agent",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("company", cfg.Business.CompanyName),
		zap.String("public_base_url", cfg.Twilio.PublicBaseURL),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("database", cfg.Database.Enabled),
		zap.Bool("elevenlabs", cfg.ElevenLabs.Enabled),
		zap.Bool("openai", cfg.OpenAI.Enabled))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	agent, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize agent", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- agent.Run(ctx)
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	agent.Shutdown(shutdownCtx)

	logger.Info("HVAC voice agent shutdown complete")
}
