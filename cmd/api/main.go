package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/car-advisor/backend/internal/config"
	"github.com/zhouzirui/car-advisor/backend/internal/handler"
	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
	"github.com/zhouzirui/car-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/car-advisor/backend/internal/service/audit"
	"github.com/zhouzirui/car-advisor/backend/internal/service/predictor"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "car advisor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env 可选，缺失时仅使用系统环境变量
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	loader := predictor.NewLoader(predictor.Source{
		ArtifactPath: cfg.Predictor.ArtifactPath,
		RemoteURL:    cfg.Predictor.RemoteURL,
		Remote:       predictor.RemoteOptions{Timeout: cfg.Predictor.Timeout},
	}, logger.Named("predictor"))
	// load eagerly so a broken artifact shows up in the startup log
	loader.Ready()

	provider := newProvider(cfg.LLM, logger.Named("llm"))

	var recorder audit.Recorder = audit.Nop{}
	if cfg.Audit.Enabled() {
		sqlite, err := audit.OpenSQLite(ctx, cfg.Audit.DBPath)
		if err != nil {
			logger.Warn("audit log disabled", zap.String("path", cfg.Audit.DBPath), zap.Error(err))
		} else {
			defer sqlite.Close()
			recorder = sqlite
			logger.Info("audit log enabled", zap.String("path", cfg.Audit.DBPath))
		}
	}

	store := session.NewStore(cfg.Session.TTL, logger.Named("session"))
	svc := advisor.NewService(advisor.Options{
		Store:           store,
		Predictor:       loader,
		Provider:        provider,
		Audit:           recorder,
		TypingDelay:     cfg.Chat.TypingDelay,
		AllowSessionKey: cfg.LLM.AllowSessionKey,
		Logger:          logger.Named("advisor"),
	})

	router := handler.NewRouter(*cfg, store, svc, logger.Named("http"))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("car advisor listening", zap.String("addr", cfg.Server.Addr))
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		return store.Run(gctx)
	})
	return g.Wait()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		if err := zcfg.Level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
		}
	}
	return zcfg.Build()
}

// newProvider picks the chat vendor. A provider without a process key still
// serves per-session keys, so it is returned whenever one is selected.
func newProvider(cfg config.LLMConfig, logger *zap.Logger) ai.Provider {
	var provider ai.Provider
	switch cfg.Provider {
	case config.ProviderArk:
		provider = ai.NewArkProvider(cfg.Ark, logger)
	default:
		provider = ai.NewGeminiProvider(cfg.Gemini, logger)
	}

	if provider.HasCredential() {
		logger.Info("chat enabled", zap.String("provider", provider.Name()))
	} else if cfg.AllowSessionKey {
		logger.Warn("no llm api key configured, chat waits for a per-session key", zap.String("provider", provider.Name()))
	} else {
		logger.Warn("no llm api key configured, chat runs in degraded mode", zap.String("provider", provider.Name()))
	}
	return provider
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
