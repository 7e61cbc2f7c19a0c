package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

type RegionRepository struct {
	pool *pgxpool.Pool
}

func NewRegionRepository(pool *pgxpool.Pool) *RegionRepository {
	return &RegionRepository{pool: pool}
}

func (r *RegionRepository) Init(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS regions (
            level TEXT NOT NULL,
            code TEXT NOT NULL,
            name TEXT NOT NULL,
            gemeente TEXT NOT NULL,
            geometry JSONB NOT NULL,
            PRIMARY KEY (level, code)
        )`)
	return err
}

func (r *RegionRepository) BulkCreate(ctx context.Context, level models.RegionLevel, regions []models.Region) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	stmt := `
        INSERT INTO regions (level, code, name, gemeente, geometry)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (level, code) DO UPDATE SET
            name = EXCLUDED.name,
            gemeente = EXCLUDED.gemeente,
            geometry = EXCLUDED.geometry`

	for _, region := range regions {
		geom, err := json.Marshal(geojson.NewGeometry(region.Geometry))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, stmt,
			string(level),
			region.Code,
			region.Name,
			region.Gemeente,
			geom,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *RegionRepository) GetByLevel(ctx context.Context, level models.RegionLevel) ([]models.Region, error) {
	query := `
        SELECT code, name, gemeente, geometry
        FROM regions
        WHERE level = $1
        ORDER BY code`

	rows, err := r.pool.Query(ctx, query, string(level))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []models.Region
	for rows.Next() {
		var region models.Region
		var geom []byte
		if err := rows.Scan(&region.Code, &region.Name, &region.Gemeente, &geom); err != nil {
			return nil, err
		}
		g, err := geojson.UnmarshalGeometry(geom)
		if err != nil {
			return nil, err
		}
		switch v := g.Geometry().(type) {
		case orb.MultiPolygon:
			region.Geometry = v
		case orb.Polygon:
			region.Geometry = orb.MultiPolygon{v}
		}
		regions = append(regions, region)
	}
	return regions, nil
}

func (r *RegionRepository) Count(ctx context.Context, level models.RegionLevel) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM regions WHERE level = $1", string(level)).Scan(&count)
	return count, err
}

func (r *RegionRepository) DeleteLevel(ctx context.Context, level models.RegionLevel) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM regions WHERE level = $1", string(level))
	return err
}
