package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/config"
	"github.com/markdave123-py/Parley/internal/core"
	db "github.com/markdave123-py/Parley/internal/core/database"
	"github.com/markdave123-py/Parley/internal/core/llm"
	"github.com/markdave123-py/Parley/internal/metrics"
)

type App struct {
	DBClient  core.DbClient
	Generator core.Generator
	Metrics   *metrics.Exporter
	Server    *Server
	log       *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("Database initialized and ready.")

	generator, err := llm.New(appCtx, cfg)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the %s provider: %w", cfg.LLMProvider, err)
	}
	log.Info("Generation provider ready.", zap.String("provider", cfg.LLMProvider))

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	server := NewServer(cfg, dbClient, generator, exporter, log)

	return &App{
		DBClient:  dbClient,
		Generator: generator,
		Metrics:   exporter,
		Server:    server,
		log:       log,
	}, nil
}

func (a *App) Close() {
	if c, ok := a.Generator.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("close generator", zap.Error(err))
		}
	}
	if a.DBClient != nil {
		if err := a.DBClient.Close(); err != nil {
			a.log.Warn("close database", zap.Error(err))
		}
	}
}
