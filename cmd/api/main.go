package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"audio-relay-go/internal/config"
	"audio-relay-go/internal/extractor"
	"audio-relay-go/internal/logger"
	"audio-relay-go/internal/metrics"
	"audio-relay-go/internal/pipeline"
	"audio-relay-go/internal/server"
	"audio-relay-go/internal/transcription"
	"audio-relay-go/internal/workspace"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.Load()
	if err != nil {
		logger.New("", "").WithError(err).Fatal("invalid configuration")
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	log.WithField("service", "audio-relay-go").Info("starting service")

	m := metrics.New()
	ws := workspace.NewManager(cfg.WorkspaceRoot, workspace.Hooks{
		Acquired: m.WorkspaceAcquired,
		Released: m.WorkspaceReleased,
	})
	encoder := extractor.NewFFmpeg(cfg.EncoderPath, cfg.EncoderTimeout, cfg.EncoderProbeTimeout)
	relay := transcription.NewClient(cfg.AudioWebhookURL, cfg.TranscriptWebhookURL, cfg.AudioRelayTimeout, cfg.TranscriptRelayTimeout)
	orch := pipeline.New(cfg, ws, encoder, relay, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a missing encoder only disables video uploads, mp3 still works
	if err := encoder.Available(ctx); err != nil {
		m.EncoderAvailable(false)
		log.WithError(err).Warn("encoder unavailable at startup")
	} else {
		m.EncoderAvailable(true)
		log.WithField("encoder", cfg.EncoderPath).Info("encoder available")
	}

	log.WithFields(logrus.Fields{
		"audio_webhook":      cfg.AudioWebhookURL,
		"transcript_webhook": cfg.TranscriptWebhookURL,
		"max_file_size":      cfg.MaxFileSize,
		"workspace_root":     cfg.WorkspaceRoot,
	}).Info("configuration loaded")

	readTimeout, writeTimeout := cfg.ServerTimeouts()
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.New(cfg, log, orch, encoder, relay, m).Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown incomplete")
		}
	}()

	log.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
}
