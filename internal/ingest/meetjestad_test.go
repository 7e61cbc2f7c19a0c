package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

const sensorJSON = `[
	{"id": 580, "timestamp": "2026-08-26 09:00:00", "longitude": 5.5, "latitude": 51.5, "temperature": 20.0, "humidity": 60},
	{"id": 580, "timestamp": "2026-08-26 09:30:00", "longitude": 5.5, "latitude": 51.5, "temperature": 22.0, "humidity": 62},
	{"id": 581, "timestamp": "2026-08-26 09:15:00", "longitude": 5.2, "latitude": 51.2, "temperature": 18.0, "humidity": 70}
]`

func sensorServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "sensors" || q.Get("format") != "json" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("start") == "" || q.Get("end") == "" {
			t.Error("missing start or end parameter")
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestFetch(t *testing.T) {
	srv := sensorServer(t, sensorJSON, http.StatusOK)
	defer srv.Close()

	c := NewMeetjestadClient(srv.URL)
	end := time.Now().UTC()
	readings, err := c.Fetch(context.Background(), end.Add(-time.Hour), end)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}
	if readings[0].SensorID != 580 || *readings[0].Temperature != 20.0 {
		t.Errorf("unexpected first reading %+v", readings[0])
	}
}

func TestFetchStartAfterEnd(t *testing.T) {
	c := NewMeetjestadClient("http://example.invalid")
	now := time.Now()
	if _, err := c.Fetch(context.Background(), now, now.Add(-time.Hour)); err == nil {
		t.Error("expected error when start is after end")
	}
}

func TestFetchEmptyWindow(t *testing.T) {
	srv := sensorServer(t, `[]`, http.StatusOK)
	defer srv.Close()

	c := NewMeetjestadClient(srv.URL)
	end := time.Now().UTC()
	_, err := c.Fetch(context.Background(), end.Add(-time.Hour), end)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestLatest(t *testing.T) {
	temp := func(v float64) *float64 { return &v }
	readings := []models.SensorReading{
		{SensorID: 2, Timestamp: time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC), Temperature: temp(10)},
		{SensorID: 1, Timestamp: time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC), Temperature: temp(11)},
		{SensorID: 2, Timestamp: time.Date(2026, 8, 26, 9, 45, 0, 0, time.UTC), Temperature: temp(12)},
	}

	latest := Latest(readings)
	if len(latest) != 2 {
		t.Fatalf("got %d readings, want 2", len(latest))
	}
	if latest[0].SensorID != 1 || latest[1].SensorID != 2 {
		t.Errorf("order = %d, %d", latest[0].SensorID, latest[1].SensorID)
	}
	if *latest[1].Temperature != 12 {
		t.Errorf("sensor 2 kept temperature %v, want the most recent", *latest[1].Temperature)
	}
}

func TestLoadSensorDataset(t *testing.T) {
	srv := sensorServer(t, sensorJSON, http.StatusOK)
	defer srv.Close()

	square := func(x, y float64) orb.MultiPolygon {
		return orb.MultiPolygon{{{
			{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
		}}}
	}
	set := models.NewRegionSet(models.Buurt, []models.Region{
		{Code: "BU07550000", Name: "Binnenstad", Geometry: square(5, 51)},
	})

	c := NewMeetjestadClient(srv.URL)
	ds, err := LoadSensorDataset(context.Background(), c, set, time.Hour)
	if err != nil {
		t.Fatalf("LoadSensorDataset: %v", err)
	}
	if ds.Name != RealtimeDatasetName {
		t.Errorf("name = %q", ds.Name)
	}
	if !ds.Aggregated {
		t.Error("dataset not marked aggregated")
	}
	if len(ds.Records) != 1 {
		t.Fatalf("got %d records, want 1 region", len(ds.Records))
	}
	rec := ds.Records[0]
	if rec.Fields["BU_CODE"] != "BU07550000" {
		t.Errorf("code = %v", rec.Fields["BU_CODE"])
	}
	// Sensors 580 (latest 22.0) and 581 (18.0) both sit in the square.
	if got := rec.Fields["temperature"].(float64); got != 20.0 {
		t.Errorf("mean temperature = %v, want 20.0", got)
	}
}
