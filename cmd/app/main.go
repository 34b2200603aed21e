package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	v1 "github.com/davdis/summarizer-api-sqlite/internal/controller/http/v1"
	"github.com/davdis/summarizer-api-sqlite/internal/dispatcher"
	"github.com/davdis/summarizer-api-sqlite/internal/domain/entity"
	"github.com/davdis/summarizer-api-sqlite/internal/domain/usecase"
	"github.com/davdis/summarizer-api-sqlite/internal/extractor"
	"github.com/davdis/summarizer-api-sqlite/internal/ollama"
	psqlRepo "github.com/davdis/summarizer-api-sqlite/internal/repository/psql"
	redisRepo "github.com/davdis/summarizer-api-sqlite/internal/repository/redis"
	"github.com/davdis/summarizer-api-sqlite/pkg/client/db"
	redisClient "github.com/davdis/summarizer-api-sqlite/pkg/client/redis"
	"github.com/davdis/summarizer-api-sqlite/pkg/logger"
	"github.com/davdis/summarizer-api-sqlite/pkg/middleware"
)

type Config struct {
	ListenAddr string
	LogLevel   string

	DBDriver   string
	SQLitePath string

	PSQLHost     string
	PSQLPort     int
	PSQLUser     string
	PSQLPassword string
	PSQLDBName   string
	PSQLSSLMode  string

	RedisAddr   string
	RedisDB     int
	ProgressTTL time.Duration

	OllamaHost     string
	OllamaModel    string
	SummaryTimeout time.Duration

	Workers   int
	QueueSize int
}

func main() {
	cfg := loadConfig()
	log := logger.New(cfg.LogLevel)

	ctx := context.Background()

	gormDB, err := openDB(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := gormDB.AutoMigrate(&entity.Document{}); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	rdb, err := redisClient.NewRedisClient(ctx, redisClient.Config{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}

	docRepo := psqlRepo.NewGormDocumentRepo(gormDB)
	tracker := redisRepo.NewProgressRepo(rdb, cfg.ProgressTTL)

	// Crash recovery: a run cannot survive a restart, so anything still
	// RUNNING was interrupted. Fail it; the recovery path is resubmission.
	swept, err := docRepo.FailStaleRunning(ctx, time.Now(), "summarization interrupted by service restart")
	if err != nil {
		log.Fatalf("startup sweep failed: %v", err)
	}
	if swept > 0 {
		log.WithField("count", swept).Warn("failed documents left running by a previous process")
	}

	workflow := usecase.NewWorkflowUseCase(
		docRepo,
		tracker,
		extractor.New(nil),
		ollama.New(cfg.OllamaHost, cfg.OllamaModel, cfg.SummaryTimeout),
		log.WithField("component", "workflow"),
	)

	disp := dispatcher.New(workflow, cfg.Workers, cfg.QueueSize, log.WithField("component", "dispatcher"))
	disp.Start(ctx)

	uc := usecase.NewDocumentUseCase(docRepo, tracker, disp, log.WithField("component", "documents"))
	handler := v1.NewDocumentHandler(uc)

	r := gin.Default()
	r.GET("/healthz", handler.Healthz)

	api := r.Group("/")
	api.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RedisClient: rdb,
		Limit:       10,
		Window:      time.Second,
	}))
	{
		api.POST("/documents", handler.Submit)
		api.GET("/documents/:document_id", handler.Get)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("summarizer service started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}
	if err := disp.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("dispatcher drain timed out")
	}
}

func openDB(cfg Config) (*gorm.DB, error) {
	if cfg.DBDriver == "postgres" {
		return db.NewPostgresDB(db.PostgresConfig{
			Host:     cfg.PSQLHost,
			Port:     cfg.PSQLPort,
			User:     cfg.PSQLUser,
			Password: cfg.PSQLPassword,
			DBName:   cfg.PSQLDBName,
			SslMode:  cfg.PSQLSSLMode,
		})
	}
	return db.NewSQLiteDB(cfg.SQLitePath)
}

func loadConfig() Config {
	if err := godotenv.Load("./.env.local"); err != nil {
		logrus.Info("No .env file found. Falling back to OS environment variables.")
	}

	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}
	getEnvInt := func(key string, fallback int) int {
		val := os.Getenv(key)
		if val == "" {
			return fallback
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			logrus.Fatalf("Invalid %s value: %v", key, err)
		}
		return n
	}

	return Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		SQLitePath: getEnv("SQLITE_PATH", "./db.sqlite3"),

		PSQLHost:     getEnv("PSQL_HOST", "localhost"),
		PSQLPort:     getEnvInt("PSQL_PORT", 5432),
		PSQLUser:     getEnv("PSQL_USER", "postgres"),
		PSQLPassword: getEnv("PSQL_PASSWORD", ""),
		PSQLDBName:   getEnv("PSQL_DB", "summarizer"),
		PSQLSSLMode:  getEnv("PSQL_SSLMODE", "disable"),

		RedisAddr:   getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		ProgressTTL: time.Duration(getEnvInt("PROGRESS_TTL_SECONDS", 3600)) * time.Second,

		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434/api/generate"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "gemma3:1b"),
		SummaryTimeout: time.Duration(getEnvInt("SUMMARY_TIMEOUT_SECONDS", 3600)) * time.Second,

		Workers:   getEnvInt("DISPATCH_WORKERS", 4),
		QueueSize: getEnvInt("DISPATCH_QUEUE_SIZE", 256),
	}
}
