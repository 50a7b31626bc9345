package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kylenessen/ramble/internal/config"
	"github.com/kylenessen/ramble/internal/ledger"
	"github.com/kylenessen/ramble/internal/llm"
	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/metrics"
	"github.com/kylenessen/ramble/internal/organizer"
	"github.com/kylenessen/ramble/internal/processor"
	"github.com/kylenessen/ramble/internal/resilience"
	"github.com/kylenessen/ramble/internal/storage"
	"github.com/kylenessen/ramble/internal/transcription"
)

const defaultLedgerPath = "ramble_sessions.xlsx"

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "ramble").Info("starting voice memo processing service")

	cfg, err := config.Load("")
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}

	transcriber, err := transcription.NewAssemblyAI(cfg.Transcription)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize transcription service")
	}
	enhancer, err := llm.NewChatClient(cfg.LLM)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize llm service")
	}
	org := organizer.New(store, cfg.Processing, cfg.Transcription.Service, cfg.LLM.Service)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	transcribeBreaker := resilience.NewBreaker("transcription",
		cfg.Resilience.Transcription.FailureThreshold, cfg.Resilience.Transcription.RecoveryTimeout())
	enhanceBreaker := resilience.NewBreaker("llm",
		cfg.Resilience.LLM.FailureThreshold, cfg.Resilience.LLM.RecoveryTimeout())
	m.ObserveBreaker(transcribeBreaker, "transcription")
	m.ObserveBreaker(enhanceBreaker, "llm")

	deps := processor.Deps{
		Store:       store,
		Transcriber: transcriber,
		Enhancer:    enhancer,
		Organizer:   org,
		TranscribeGuard: resilience.NewGuard(transcribeBreaker, resilience.NewRetrier("transcribe",
			cfg.Resilience.Transcription.MaxRetries, cfg.Resilience.Transcription.BaseDelay(),
			cfg.Resilience.Transcription.BackoffFactor)),
		EnhanceGuard: resilience.NewGuard(enhanceBreaker, resilience.NewRetrier("enhance",
			cfg.Resilience.LLM.MaxRetries, cfg.Resilience.LLM.BaseDelay(),
			cfg.Resilience.LLM.BackoffFactor)),
		Metrics: m,
	}
	if cfg.Processing.LedgerEnabled {
		path := cfg.Processing.LedgerPath
		if path == "" {
			path = defaultLedgerPath
		}
		deps.Ledger = ledger.New(path)
	}
	proc := processor.New(deps)

	srv := serveHTTP(cfg.Server.Addr, reg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poll := time.Duration(cfg.Processing.PollingInterval) * time.Second
	fallback := time.Duration(cfg.Processing.ErrorRetryInterval) * time.Second
	log.WithField("polling_interval", poll.String()).Info("monitoring inbox")

	for {
		wait := poll
		if err := proc.ScanInbox(ctx); err != nil {
			log.WithError(err).Error("error checking inbox")
			wait = fallback
		}

		// Shutdown is honored at the sleep boundary only; an in-flight item
		// may be left in the processing folder.
		select {
		case <-ctx.Done():
			log.Info("received shutdown signal")
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = srv.Shutdown(shutCtx)
			cancel()
			log.Info("ramble service stopped")
			return
		case <-time.After(wait):
		}
	}
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		return storage.NewLocal(cfg.Storage.LocalRoot)
	case config.BackendDropbox:
		d := storage.NewDropbox(cfg.Dropbox)
		if err := d.CheckConnection(); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

func serveHTTP(addr string, reg *prometheus.Registry, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server terminated")
		}
	}()
	return srv
}
