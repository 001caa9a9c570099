package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paperpilot/paperpilot/internal/config"
	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/core/chunker"
	db "github.com/paperpilot/paperpilot/internal/core/database"
	"github.com/paperpilot/paperpilot/internal/core/embedcache"
	"github.com/paperpilot/paperpilot/internal/core/ingestion"
	"github.com/paperpilot/paperpilot/internal/core/llm"
	pdfx "github.com/paperpilot/paperpilot/internal/core/pdf"
	"github.com/paperpilot/paperpilot/internal/email"
	"github.com/paperpilot/paperpilot/internal/jobs"
	"github.com/paperpilot/paperpilot/internal/storage"
)

type App struct {
	DBClient core.DbClient
	Store    storage.Store
	Ingestor ingestion.Ingestor
	Janitor  *jobs.Janitor
	Server   *Server

	logger *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("database initialized and ready")

	store, err := storage.NewStore(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	logger.Info("file store ready", zap.String("type", cfg.StorageType))

	gemini, err := llm.NewGeminiClient(initCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.GenModel, cfg.EmbedDim, cfg.MaxEmbedChars())
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	// Query embeddings go through the cache; document embeddings don't (each
	// chunk is embedded once).
	queryEmbedder := embedcache.Wrap(gemini, cfg.QueryCacheSize, cfg.QueryCacheTTL)

	extractor := pdfx.NewExtractor()
	chk := chunker.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)

	ingestor := ingestion.NewDocumentIngestor(
		dbClient, store, gemini, extractor, chk,
		ingestion.Config{
			EmbedConcurrency: cfg.EmbedConcurrency,
			EmbedMaxAttempts: cfg.EmbedMaxRetries,
			EmbedDim:         cfg.EmbedDim,
		},
		logger.Named("ingest"),
		cfg.IngestQueueSize,
	)
	ingestor.Start(ctx, cfg.IngestWorkers)

	var mailer email.Mailer
	if cfg.SMTPHost != "" {
		mailer, err = email.NewSMTPMailer(cfg, logger.Named("email"))
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
	} else {
		logger.Warn("SMTP not configured, emails will only be logged")
		mailer = email.NewLogMailer(logger.Named("email"))
	}

	janitor := jobs.NewJanitor(dbClient, cfg.StaleAfter, logger.Named("janitor"))
	if err := janitor.Start(ctx); err != nil {
		return nil, fmt.Errorf("janitor: %w", err)
	}

	server := NewServer(cfg, dbClient, store, ingestor, queryEmbedder, gemini, mailer, logger)

	return &App{
		DBClient: dbClient,
		Store:    store,
		Ingestor: ingestor,
		Janitor:  janitor,
		Server:   server,
		logger:   logger,
	}, nil
}

func (a *App) Close() {
	if a.Janitor != nil {
		a.Janitor.Stop()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
