// Package ingest loads datasets from the Meet je stad sensor API,
// CKAN data portals and uploaded tabular files.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/tau-omega/stadsmonitor/internal/aggregate"
	"github.com/tau-omega/stadsmonitor/internal/models"
)

// ErrNoData is returned when a sensor query yields no readings.
var ErrNoData = errors.New("no sensor data in window")

// RealtimeDatasetName is the store slot the sensor dataset occupies.
const RealtimeDatasetName = "meet je stad"

const (
	mjsTimeFormat  = "2006-01-02,15:04"
	mjsStampFormat = "2006-01-02 15:04:05"
)

// SensorSource yields readings for a time window. The live client and
// the demo factory both satisfy it.
type SensorSource interface {
	Fetch(ctx context.Context, start, end time.Time) ([]models.SensorReading, error)
}

// MeetjestadClient reads the Meet je stad citizen sensor API.
type MeetjestadClient struct {
	BaseURL string
	Client  *http.Client

	loc *time.Location
}

func NewMeetjestadClient(baseURL string) *MeetjestadClient {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		loc = time.UTC
	}
	return &MeetjestadClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
		loc:     loc,
	}
}

type sensorRow struct {
	ID          int      `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Longitude   float64  `json:"longitude"`
	Latitude    float64  `json:"latitude"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Firmware    string   `json:"firmware_version"`
}

// Fetch downloads readings between start and end (UTC). Start must
// precede end and the window must contain data.
func (c *MeetjestadClient) Fetch(ctx context.Context, start, end time.Time) ([]models.SensorReading, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("start %s is not before end %s", start, end)
	}

	q := url.Values{}
	q.Set("type", "sensors")
	q.Set("format", "json")
	q.Set("start", start.UTC().Format(mjsTimeFormat))
	q.Set("end", end.UTC().Format(mjsTimeFormat))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sensor data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sensor API returned %s", resp.Status)
	}

	var rows []sensorRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding sensor data: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	readings := make([]models.SensorReading, 0, len(rows))
	for _, row := range rows {
		ts, err := time.ParseInLocation(mjsStampFormat, row.Timestamp, time.UTC)
		if err != nil {
			continue
		}
		readings = append(readings, models.SensorReading{
			SensorID:    row.ID,
			Timestamp:   ts.In(c.loc),
			Longitude:   row.Longitude,
			Latitude:    row.Latitude,
			Temperature: row.Temperature,
			Humidity:    row.Humidity,
			Firmware:    row.Firmware,
		})
	}
	if len(readings) == 0 {
		return nil, ErrNoData
	}
	return readings, nil
}

// Latest keeps the most recent reading per sensor, ordered by id.
func Latest(readings []models.SensorReading) []models.SensorReading {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})

	last := make(map[int]models.SensorReading, len(readings))
	for _, r := range readings {
		last[r.SensorID] = r
	}

	ids := make([]int, 0, len(last))
	for id := range last {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]models.SensorReading, 0, len(ids))
	for _, id := range ids {
		out = append(out, last[id])
	}
	return out
}

// LoadSensorDataset fetches the window ending now, keeps the latest
// reading per sensor, assigns readings to regions and means the
// temperature and humidity per region.
func LoadSensorDataset(ctx context.Context, src SensorSource, set *models.RegionSet, window time.Duration) (*models.Dataset, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	readings, err := src.Fetch(ctx, start, end)
	if err != nil {
		return nil, err
	}
	readings = Latest(readings)

	ds, err := BuildSensorDataset(readings, set)
	if err != nil {
		return nil, err
	}
	ds.Window = window
	return ds, nil
}

// BuildSensorDataset turns deduplicated readings into the aggregated
// realtime dataset: one record per region with mean temperature and
// humidity.
func BuildSensorDataset(readings []models.SensorReading, set *models.RegionSet) (*models.Dataset, error) {
	ds := models.NewDataset(RealtimeDatasetName)
	ds.ReadType = models.ReadTypeLatLong
	ds.Columns = []string{"id", "temperature", "humidity"}
	for _, r := range readings {
		fields := map[string]interface{}{"id": r.SensorID}
		if r.Temperature != nil {
			fields["temperature"] = *r.Temperature
		}
		if r.Humidity != nil {
			fields["humidity"] = *r.Humidity
		}
		ds.Records = append(ds.Records, models.Record{
			Fields:   fields,
			Geometry: orb.Point{r.Longitude, r.Latitude},
		})
	}

	aggregate.AssignRegions(ds, set)
	dropUnknownRegions(ds, set.Level)

	grouped, err := aggregate.Group(ds, set, "mean", []string{"temperature", "humidity"})
	if err != nil {
		return nil, err
	}
	grouped.Name = RealtimeDatasetName
	return grouped, nil
}

func dropUnknownRegions(ds *models.Dataset, level models.RegionLevel) {
	codeCol := level.CodeColumn()
	kept := ds.Records[:0]
	for _, rec := range ds.Records {
		if rec.Fields[codeCol] != models.Onbekend {
			kept = append(kept, rec)
		}
	}
	ds.Records = kept
}
