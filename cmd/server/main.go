package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/minchat/minchat/internal/ai"
	"github.com/minchat/minchat/internal/chat"
	"github.com/minchat/minchat/internal/config"
	"github.com/minchat/minchat/internal/db"
	"github.com/minchat/minchat/internal/httpapi"
	"github.com/minchat/minchat/internal/httpapi/handlers"
	"github.com/minchat/minchat/internal/store/rabbitmq"
	"github.com/minchat/minchat/internal/store/redisstore"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	if err := chat.AutoMigrate(gdb); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	provider, err := ai.New(ai.FactoryConfig{
		Provider:      cfg.AIProvider,
		MockBaseURL:   cfg.MockBaseURL,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		logger.Fatal("configure completion provider", zap.Error(err))
	}

	repo := chat.NewRepo(gdb)
	svc := chat.NewService(repo, provider, logger, chat.Options{
		ProviderTimeout: cfg.ProviderTimeout,
		RetryMax:        cfg.RetryMax,
		RetryBaseDelay:  cfg.RetryBaseDelay,
	})

	var locks *redisstore.Store
	if cfg.RedisAddr != "" {
		locks = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer locks.Close()
	}

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		rabbit, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logger.Warn("rabbitmq unavailable, async sends disabled", zap.Error(err))
		} else {
			defer rabbit.Close()
		}
	}

	h := handlers.NewHandler(svc, locks, rabbit, logger)
	router := httpapi.NewRouter(h, cfg.AuthSecret, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
