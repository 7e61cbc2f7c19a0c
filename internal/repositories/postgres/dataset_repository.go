package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

type DatasetRepository struct {
	pool *pgxpool.Pool
}

func NewDatasetRepository(pool *pgxpool.Pool) *DatasetRepository {
	return &DatasetRepository{pool: pool}
}

// datasetPayload is the JSON snapshot stored per dataset. Geometry is
// embedded as GeoJSON so the snapshot round-trips without PostGIS.
type datasetPayload struct {
	Columns  []string        `json:"columns"`
	ReadType string          `json:"read_type"`
	Window   time.Duration   `json:"window,omitempty"`
	Records  []recordPayload `json:"records"`
}

type recordPayload struct {
	Fields   map[string]interface{} `json:"fields"`
	Geometry *geojson.Geometry      `json:"geometry,omitempty"`
}

func (r *DatasetRepository) Init(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS datasets (
            id TEXT PRIMARY KEY,
            name TEXT UNIQUE NOT NULL,
            source_url TEXT,
            aggregated BOOLEAN NOT NULL DEFAULT FALSE,
            load_error TEXT,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`)
	return err
}

func (r *DatasetRepository) Save(ctx context.Context, ds *models.Dataset) error {
	payload := datasetPayload{
		Columns:  ds.Columns,
		ReadType: ds.ReadType,
		Window:   ds.Window,
	}
	for _, rec := range ds.Records {
		p := recordPayload{Fields: rec.Fields}
		if rec.Geometry != nil {
			p.Geometry = geojson.NewGeometry(rec.Geometry)
		}
		payload.Records = append(payload.Records, p)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	stmt := `
        INSERT INTO datasets (id, name, source_url, aggregated, load_error, payload, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (name) DO UPDATE SET
            id = EXCLUDED.id,
            source_url = EXCLUDED.source_url,
            aggregated = EXCLUDED.aggregated,
            load_error = EXCLUDED.load_error,
            payload = EXCLUDED.payload,
            created_at = EXCLUDED.created_at`

	_, err = r.pool.Exec(ctx, stmt,
		ds.ID,
		ds.Name,
		ds.SourceURL,
		ds.Aggregated,
		ds.Err,
		body,
		ds.CreatedAt,
	)
	return err
}

func (r *DatasetRepository) GetAll(ctx context.Context) ([]*models.Dataset, error) {
	query := `
        SELECT id, name, source_url, aggregated, load_error, payload, created_at
        FROM datasets
        ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		var body []byte
		ds := &models.Dataset{}
		err := rows.Scan(
			&ds.ID,
			&ds.Name,
			&ds.SourceURL,
			&ds.Aggregated,
			&ds.Err,
			&body,
			&ds.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		var payload datasetPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		ds.Columns = payload.Columns
		ds.ReadType = payload.ReadType
		ds.Window = payload.Window
		for _, rec := range payload.Records {
			out := models.Record{Fields: rec.Fields}
			if rec.Geometry != nil {
				out.Geometry = rec.Geometry.Geometry()
			}
			ds.Records = append(ds.Records, out)
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (r *DatasetRepository) Delete(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM datasets WHERE name = $1", name)
	return err
}
