package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"paperloom/internal/config"
	"paperloom/internal/infrastructure/embeddings"
	"paperloom/internal/infrastructure/extract"
	"paperloom/internal/infrastructure/storage"
	"paperloom/internal/infrastructure/vector"
	"paperloom/internal/logging"
	"paperloom/internal/ports"
	"paperloom/internal/usecase"
)

// Application wires configs to adapters and use cases.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	vectors  *vector.Store
	pipeline *usecase.Pipeline
}

// New builds a runnable application instance: it opens the relational and
// vector databases and wires the ingestion pipeline.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}

	vectors, err := vector.Open(cfg.Vector.Path)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open vector store %s: %w", cfg.Vector.Path, err)
	}

	pipeline := usecase.NewPipeline(
		storage.NewUnitOfWork(db),
		baseLogger.With("component", "pipeline"),
	)

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		vectors:  vectors,
		pipeline: pipeline,
	}, nil
}

// Close releases both database handles.
func (a *Application) Close() error {
	return errors.Join(a.vectors.Close(), a.db.Close())
}

// Pipeline returns the ingestion use cases.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// TaxonomySource builds the category taxonomy scraper.
func (a *Application) TaxonomySource() ports.CategorySource {
	return extract.NewTaxonomySource(nil, a.cfg.Sources.TaxonomyURL)
}

// FeedSource builds the RSS feed source.
func (a *Application) FeedSource() ports.PaperSource {
	return extract.NewFeedSource(nil, a.cfg.Sources.FeedURL, a.logger.With("component", "source.feed"))
}

// DumpSource builds a source reading a bulk JSON-lines dump.
func (a *Application) DumpSource(path string) ports.PaperSource {
	return extract.NewJSONFileSource(path, a.logger.With("component", "source.dump"))
}

// Embedder builds the embeddings API client.
func (a *Application) Embedder() ports.Embedder {
	return embeddings.NewClient(nil, a.cfg.Embeddings.BaseURL, a.cfg.Embeddings.APIKey, a.cfg.Embeddings.Model)
}

// VectorIndex returns the embedding store.
func (a *Application) VectorIndex() ports.VectorIndex {
	return a.vectors
}
