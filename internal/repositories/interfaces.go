package repositories

import (
	"context"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

type DatasetRepository interface {
	Save(ctx context.Context, ds *models.Dataset) error
	GetAll(ctx context.Context) ([]*models.Dataset, error)
	Delete(ctx context.Context, name string) error
}

type RegionRepository interface {
	BulkCreate(ctx context.Context, level models.RegionLevel, regions []models.Region) error
	GetByLevel(ctx context.Context, level models.RegionLevel) ([]models.Region, error)
	Count(ctx context.Context, level models.RegionLevel) (int, error)
	DeleteLevel(ctx context.Context, level models.RegionLevel) error
}
