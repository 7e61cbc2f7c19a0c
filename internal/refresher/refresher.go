// Package refresher keeps the realtime sensor dataset current in the
// background and publishes fresh readings.
package refresher

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tau-omega/stadsmonitor/internal/export"
	"github.com/tau-omega/stadsmonitor/internal/ingest"
	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/store"
)

// ShapeSource resolves region sets per level.
type ShapeSource interface {
	LoadLevel(level models.RegionLevel) (*models.RegionSet, error)
}

// Refresher reloads the sensor dataset on a ticker. It stays dormant
// until the first manual load tells it which region level to use.
type Refresher struct {
	source   ingest.SensorSource
	store    *store.Store
	shapes   ShapeSource
	sink     export.Sink
	topic    string
	window   time.Duration
	interval time.Duration

	mu      sync.Mutex
	level   models.RegionLevel
	enabled bool
}

func New(source ingest.SensorSource, s *store.Store, shapes ShapeSource, sink export.Sink, cfg *models.Config) *Refresher {
	return &Refresher{
		source:   source,
		store:    s,
		shapes:   shapes,
		sink:     sink,
		topic:    cfg.KafkaTopic,
		window:   cfg.MeetjestadWindow,
		interval: cfg.RefreshInterval,
	}
}

// Enable arms the refresher for a region level. Called after each
// manual sensor load, so refreshes follow the level the client last
// asked for.
func (r *Refresher) Enable(level models.RegionLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = level
	r.enabled = true
}

func (r *Refresher) state() (models.RegionLevel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level, r.enabled
}

// Run blocks until the context is cancelled, refreshing on every
// tick while enabled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	level, enabled := r.state()
	if !enabled {
		return
	}

	set, err := r.shapes.LoadLevel(level)
	if err != nil {
		log.Printf("refresh: loading %s shapes: %v", level, err)
		return
	}

	end := time.Now().UTC()
	readings, err := r.source.Fetch(ctx, end.Add(-r.window), end)
	if err != nil {
		log.Printf("refresh: %v", err)
		return
	}
	readings = ingest.Latest(readings)

	ds, err := ingest.BuildSensorDataset(readings, set)
	if err != nil {
		log.Printf("refresh: %v", err)
		return
	}
	ds.Window = r.window
	r.store.SetRealtime(ds)
	log.Printf("refreshed %q with %d regions", ds.Name, len(ds.Records))

	if r.sink != nil {
		if err := export.PublishReadings(r.sink, r.topic, readings); err != nil {
			log.Printf("refresh: publishing readings: %v", err)
		}
	}
}
