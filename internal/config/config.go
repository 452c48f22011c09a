package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr string

	// DBDriver selects the gorm dialect: "sqlite" (default) or "mysql".
	// DSN demo (mysql):
	// app:apppass@tcp(127.0.0.1:3306)/minchat?charset=utf8mb4&parseTime=true&loc=Local
	DBDriver string
	DBDSN    string

	// AI provider
	AIProvider    string
	MockBaseURL   string
	OllamaBaseURL string
	OllamaModel   string

	// Send coordination
	ProviderTimeout time.Duration
	RetryMax        int
	RetryBaseDelay  time.Duration

	// rabbitMQ (async sends; disabled when RABBIT_URL is empty)
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	// redis (per-conversation send locks; disabled when REDIS_ADDR is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Optional bearer auth; empty disables the middleware.
	AuthSecret string
}

func Load() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "minchat.db"
	}

	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		aiProvider = "mock"
	}

	mockBaseURL := os.Getenv("MOCK_BASE_URL")
	if mockBaseURL == "" {
		mockBaseURL = "http://localhost:8090"
	}

	ollamaBaseURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}
	ollamaModel := os.Getenv("OLLAMA_MODEL")
	if ollamaModel == "" {
		ollamaModel = "llama3:latest"
	}

	providerTimeout := 12 * time.Second
	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			providerTimeout = d
		}
	}

	retryMax := 2
	if v := os.Getenv("RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			retryMax = n
		}
	}

	retryBaseDelay := 500 * time.Millisecond
	if v := os.Getenv("RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			retryBaseDelay = d
		}
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "chat_jobs"
	}

	workerConcurrency := 2
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			workerConcurrency = n
		}
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	return Config{
		HTTPAddr: addr,

		DBDriver: driver,
		DBDSN:    dsn,

		AIProvider:    aiProvider,
		MockBaseURL:   mockBaseURL,
		OllamaBaseURL: ollamaBaseURL,
		OllamaModel:   ollamaModel,

		ProviderTimeout: providerTimeout,
		RetryMax:        retryMax,
		RetryBaseDelay:  retryBaseDelay,

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       rabbitQueue,
		WorkerConcurrency: workerConcurrency,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		AuthSecret: os.Getenv("AUTH_SECRET"),
	}
}
