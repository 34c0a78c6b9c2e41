package app

import (
	"context"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/config"
	"github.com/datallboy/datascan/internal/infra/logger"
)

// Store is the persistence surface the API reads and writes. Keeping
// it here lets controllers avoid importing the store package.
type Store interface {
	CreateDataset(ctx context.Context, ds *domain.Dataset) error
	GetDataset(ctx context.Context, datasetID string) (*domain.Dataset, error)
	ListDatasets(ctx context.Context, limit int) ([]*domain.Dataset, error)
	ListDatasetFiles(ctx context.Context, datasetID string, limit int) ([]*domain.FileRecord, error)
	CountDatasetFiles(ctx context.Context, datasetID string) (int, error)
}

// Pipeline accepts datasets for background processing.
type Pipeline interface {
	Enqueue(datasetID, url string) error
}

// Context holds the core environment and shared resources for
// datascan. It acts as the "Single Source of Truth" for the
// application state.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	// High-level interfaces for services to use
	Store    Store
	Pipeline Pipeline
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
