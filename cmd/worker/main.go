package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/minchat/minchat/internal/ai"
	"github.com/minchat/minchat/internal/chat"
	"github.com/minchat/minchat/internal/config"
	"github.com/minchat/minchat/internal/db"
	"github.com/minchat/minchat/internal/store/rabbitmq"
)

// jobTimeout bounds one async send end to end, provider retries included.
const jobTimeout = 2 * time.Minute

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	if cfg.RabbitURL == "" {
		logger.Fatal("RABBIT_URL is required for the worker")
	}

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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal("queue declare", zap.Error(err))
	}

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", zap.Error(err))
	}

	deliveries, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency))

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					logger.Warn("bad job message", zap.Int("worker", workerID), zap.Error(err))
					_ = d.Nack(false, false) // to DLQ
					continue
				}

				jctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
				err := svc.RunJob(jctx, m.JobID)
				cancel()
				if err != nil {
					// infrastructure failure: let the broker redeliver once,
					// then dead-letter
					logger.Error("job infrastructure error",
						zap.Int("worker", workerID),
						zap.String("jobId", m.JobID),
						zap.Error(err))
					_ = d.Nack(false, !d.Redelivered)
					continue
				}
				_ = d.Ack(false)
			}
		}(i)
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-deliveries:
			if !ok {
				break loop
			}
			jobs <- d
		}
	}

	close(jobs)
	wg.Wait()
	logger.Info("worker stopped")
}
