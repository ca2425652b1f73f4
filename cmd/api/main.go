package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ai-chatroom/internal/config"
	"ai-chatroom/internal/db"
	apihttp "ai-chatroom/internal/http"
	"ai-chatroom/internal/llm"
	"ai-chatroom/internal/repository"
	"ai-chatroom/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	repo, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	messageSvc := service.NewMessageService(repo)
	if messageSvc.Enabled() {
		ctxIdx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout())
		if err := messageSvc.EnsureIndexes(ctxIdx); err != nil {
			logger.Warn("ensure indexes failed", zap.Error(err))
		}
		cancel()
	}

	completer, llmEnabled := newCompleter(cfg, logger)

	hub := apihttp.NewHub(logger)
	chatSvc := service.NewChatService(
		logger,
		service.NewRoomRegistry(),
		service.NewSessionRegistry(),
		messageSvc,
		completer,
		hub,
		service.ChatOptions{
			HistoryLimit:      cfg.HistoryLimit,
			MaxTokens:         cfg.LLMMaxTokens,
			PersonaLanguage:   cfg.PersonaLanguage,
			CompletionTimeout: cfg.LLMTimeout(),
			StoreTimeout:      cfg.StoreTimeout(),
		},
	)
	socketHandler := apihttp.NewSocketHandler(logger, chatSvc, hub, cfg.ChatRatePerSecond, cfg.ChatRateBurst)
	healthHandler := apihttp.NewHealthHandler(chatSvc, hub, llmEnabled)
	router := apihttp.NewRouter(logger, socketHandler, healthHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("store_enabled", messageSvc.Enabled()),
		zap.Bool("llm_enabled", llmEnabled),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openStore conecta el almacén elegido. Cualquier fallo deja la persistencia
// deshabilitada y el servicio sigue arrancando.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.MessageRepository, func()) {
	noop := func() {}
	if !cfg.StoreConfigured() {
		logger.Warn("message store not configured, history will not be persisted",
			zap.String("store_driver", cfg.StoreDriver))
		return nil, noop
	}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Error("postgres connect failed", zap.Error(err))
			return nil, noop
		}
		logger.Info("postgres connected")
		return repository.NewPgMessageRepository(pool), pool.Close
	case config.StoreDriverRedis:
		client, err := db.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Error("redis connect failed", zap.Error(err))
			return nil, noop
		}
		logger.Info("redis connected")
		return repository.NewRedisMessageRepository(client, cfg.DBName, cfg.RedisHistoryCap), func() { _ = client.Close() }
	case config.StoreDriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg)
		if err != nil {
			logger.Error("sqlite open failed", zap.Error(err))
			return nil, noop
		}
		logger.Info("sqlite opened", zap.String("path", cfg.SQLitePath))
		return repository.NewSQLiteMessageRepository(sqlDB), func() { _ = sqlDB.Close() }
	}
	return nil, noop
}

func newCompleter(cfg *config.Config, logger *zap.Logger) (llm.Completer, bool) {
	if cfg.LLMAPIKey == "" {
		logger.Warn("llm api key not configured, every message will get the fallback reply")
		return llm.NewDisabledClient("llm api key not configured"), false
	}
	if cfg.LLMProvider == config.LLMProviderLangChain {
		client, err := llm.NewLangChainClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			logger.Error("langchain client init failed", zap.Error(err))
			return llm.NewDisabledClient(err.Error()), false
		}
		return client, true
	}
	return llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout(), logger), true
}
