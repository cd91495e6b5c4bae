// cmd/command-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	commonaws "jobtrack-commands/internal/common/aws"
	"jobtrack-commands/internal/common/config"
	"jobtrack-commands/internal/common/database"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/common/observability"
	"jobtrack-commands/internal/engine"
	"jobtrack-commands/internal/engine/audit"
	"jobtrack-commands/internal/engine/clarify"
	"jobtrack-commands/internal/engine/dedup"
	"jobtrack-commands/internal/engine/executor"
	"jobtrack-commands/internal/engine/notify"
	"jobtrack-commands/internal/engine/parser"
	"jobtrack-commands/internal/engine/resolver"
	"jobtrack-commands/internal/server"

	es8 "github.com/elastic/go-elasticsearch/v8"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting command service...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("command-service")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional secondary audit index) ---
	var esClientRaw *es8.Client
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 10, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			// audit indexing is best-effort; the service still runs
			zapLog.Warn("elasticsearch unavailable, audit search index disabled", zap.Error(err))
		} else {
			esClientRaw = esClient.Client
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Init SES notifier (optional) ---
	var mailer notify.Mailer
	if cfg.Notifications.Email.Enabled {
		sesClient, err := commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("SES client init failed, email notifications disabled", zap.Error(err))
		} else {
			mailer = sesClient
			zapLog.Info("SES client initialized")
		}
	}

	// --- Wire the engine ---
	auditSink := audit.NewSink(pg.DB, esClientRaw, cfg.Database.Elasticsearch.AuditIndex, log)
	notifier := notify.NewNotifier(cfg.Notifications.Email.Enabled, cfg.Notifications.Email.FromEmail, mailer, pg.DB, log)

	jobResolver := resolver.New(
		&resolver.Config{
			MaxCandidates: cfg.Engine.MaxCandidates,
			MaxOptions:    cfg.Engine.MaxOptions,
			CacheTTL:      time.Duration(cfg.Engine.CandidateCacheMS) * time.Millisecond,
		},
		pg.DB, redis.Client, log,
	)

	exec := executor.New(pg.DB, auditSink, jobResolver, notifier, log)

	intentParser := parser.NewClient(
		&parser.Config{
			BaseURL:    cfg.APIs.GenAI.BaseURL,
			APIKey:     cfg.APIs.GenAI.APIKey,
			Model:      cfg.APIs.GenAI.Model,
			Timeout:    time.Duration(cfg.APIs.GenAI.Timeout) * time.Millisecond,
			MaxRetries: cfg.APIs.GenAI.MaxRetries,
		},
		log,
	)

	sessions := clarify.NewStore(
		&clarify.Config{TTL: time.Duration(cfg.Engine.ClarificationTTL) * time.Millisecond},
		pg.DB, log,
	)

	guard := dedup.NewGuard(pg.DB, log)

	commandEngine := engine.New(guard, intentParser, jobResolver, sessions, exec, log)

	// --- HTTP Server ---
	srv := server.New(
		&server.Config{RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Millisecond},
		commandEngine, pg, redis, obs, log,
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: srv.Handler(),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Command service stopped gracefully")
}
