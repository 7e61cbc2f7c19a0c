package refresher

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/tau-omega/stadsmonitor/internal/export"
	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/store"
)

type fakeSource struct {
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context, start, end time.Time) ([]models.SensorReading, error) {
	f.calls++
	temp, hum := 20.0, 60.0
	return []models.SensorReading{
		{SensorID: 1, Timestamp: end, Longitude: 5.05, Latitude: 51.55, Temperature: &temp, Humidity: &hum},
	}, nil
}

type fakeShapes struct {
	set *models.RegionSet
}

func (f *fakeShapes) LoadLevel(level models.RegionLevel) (*models.RegionSet, error) {
	return f.set, nil
}

type captureSink struct {
	messages [][]byte
}

func (c *captureSink) WriteMessage(topic string, msg []byte) error {
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureSink) Close() error { return nil }

func testSet() *models.RegionSet {
	return models.NewRegionSet(models.Buurt, []models.Region{
		{Code: "BU07550000", Name: "Binnenstad", Geometry: orb.MultiPolygon{{{
			{5.0, 51.5}, {5.1, 51.5}, {5.1, 51.6}, {5.0, 51.6}, {5.0, 51.5},
		}}}},
	})
}

func newTestRefresher(src *fakeSource, sink *captureSink) (*Refresher, *store.Store) {
	s := store.New()
	cfg := &models.Config{
		KafkaTopic:       "sensor-readings",
		MeetjestadWindow: time.Hour,
		RefreshInterval:  time.Minute,
	}
	var exportSink export.Sink
	if sink != nil {
		exportSink = sink
	}
	r := New(src, s, &fakeShapes{set: testSet()}, exportSink, cfg)
	return r, s
}

func TestRefreshDormantUntilEnabled(t *testing.T) {
	src := &fakeSource{}
	r, s := newTestRefresher(src, nil)

	r.refresh(context.Background())
	if src.calls != 0 {
		t.Error("refresher fetched before being enabled")
	}
	if _, ok := s.Realtime(); ok {
		t.Error("realtime slot set before first manual load")
	}
}

func TestRefreshUpdatesRealtimeSlot(t *testing.T) {
	src := &fakeSource{}
	r, s := newTestRefresher(src, nil)

	r.Enable(models.Buurt)
	r.refresh(context.Background())

	if src.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", src.calls)
	}
	ds, ok := s.Realtime()
	if !ok {
		t.Fatal("realtime slot not set")
	}
	if ds.Name != "meet je stad" {
		t.Errorf("name = %q", ds.Name)
	}
	if len(ds.Records) != 1 {
		t.Errorf("got %d records", len(ds.Records))
	}
}

func TestRefreshPublishesReadings(t *testing.T) {
	src := &fakeSource{}
	sink := &captureSink{}
	r, _ := newTestRefresher(src, sink)

	r.Enable(models.Buurt)
	r.refresh(context.Background())

	if len(sink.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(sink.messages))
	}
}
