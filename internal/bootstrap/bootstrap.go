// Package bootstrap wires infrastructure to the core use cases.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heliowatt/solar-copilot/internal/config"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
	"github.com/heliowatt/solar-copilot/internal/core/usecase"
	checkpointredis "github.com/heliowatt/solar-copilot/internal/infrastructure/checkpoint/redis"
	"github.com/heliowatt/solar-copilot/internal/infrastructure/llm/ollama"
	"github.com/heliowatt/solar-copilot/internal/infrastructure/queue/nats"
	"github.com/heliowatt/solar-copilot/internal/infrastructure/repository/postgres"
	"github.com/heliowatt/solar-copilot/internal/infrastructure/resilience"
	"github.com/heliowatt/solar-copilot/internal/infrastructure/tools/insight"
	"github.com/heliowatt/solar-copilot/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics
	TurnUC  ports.TurnService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	threads := postgres.NewThreadRepository(db)
	if err := threads.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := checkpointredis.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	checkpoints := checkpointredis.NewStore(redisClient, time.Duration(cfg.CheckpointTTLHours)*time.Hour)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	auditQueue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init audit publisher: %w", err)
	}

	serverMetrics := metrics.NewHTTPServerMetrics("solar-copilot")
	auditFanout := metrics.NewFanoutPublisher(
		metrics.NewTurnRecorder(serverMetrics, "solar-copilot"),
		auditQueue,
	)

	tools := insight.New(cfg.InsightURL, insight.Options{
		Timeout:  time.Duration(cfg.InsightTimeoutSeconds) * time.Second,
		Executor: executor,
	})
	model := ollama.New(cfg.OllamaURL, cfg.OllamaModel, ollama.Options{
		Executor: executor,
	})

	turnUC := usecase.NewTurnUseCase(tools, model, checkpoints, threads, auditFanout, usecase.TurnConfig{
		MaxLoopRounds:          cfg.MaxLoopRounds,
		FinancialWindowDays:    cfg.FinancialWindowDays,
		ForecastHorizonDays:    cfg.ForecastHorizonDays,
		DefaultElectricityRate: cfg.DefaultElectricityRate,
		HistoryLimit:           cfg.HistoryLimit,
	})

	return &App{
		Config:  cfg,
		Metrics: serverMetrics,
		TurnUC:  turnUC,

		closeFn: func() {
			auditQueue.Close()
			_ = redisClient.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
