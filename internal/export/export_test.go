package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

func exportDataset() *models.Dataset {
	ds := models.NewDataset("temperaturen")
	ds.Columns = []string{"BU_CODE", "temperature"}
	ds.Records = []models.Record{
		{
			Fields:   map[string]interface{}{"BU_CODE": "BU07550000", "temperature": 21.5},
			Geometry: orb.Point{5.09, 51.56},
		},
		{
			Fields: map[string]interface{}{"BU_CODE": "BU07550001", "temperature": 19.0},
		},
	}
	return ds
}

func TestCSVBytes(t *testing.T) {
	data, err := CSVBytes(exportDataset())
	if err != nil {
		t.Fatalf("CSVBytes: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "BU_CODE,temperature" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "BU07550000,21.5" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestGeoJSONBytes(t *testing.T) {
	data, err := GeoJSONBytes(exportDataset())
	if err != nil {
		t.Fatalf("GeoJSONBytes: %v", err)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q", fc.Type)
	}
	// The record without geometry is skipped.
	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	if fc.Features[0].Properties["BU_CODE"] != "BU07550000" {
		t.Errorf("properties = %v", fc.Features[0].Properties)
	}
}

func TestParquetBytes(t *testing.T) {
	data, err := ParquetBytes(exportDataset())
	if err != nil {
		t.Fatalf("ParquetBytes: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty parquet output")
	}
	// PAR1 magic at both ends of the file.
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Error("output is not a parquet file")
	}
}

func TestExportUnknownFormat(t *testing.T) {
	if _, _, err := Export(exportDataset(), "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir)

	if err := s.WriteMessage("sensor-readings", []byte(`{"id":1}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := s.WriteMessage("sensor-readings", []byte(`{"id":2}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sensor-readings.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("got %d lines, want 2", len(lines))
	}
}

func TestDeliverLocal(t *testing.T) {
	cfg := &models.Config{
		OutputFolder:      t.TempDir(),
		OutputDestination: "local",
	}

	data, _, err := Export(exportDataset(), FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	path, err := Deliver(cfg, "temperaturen", FormatCSV, data)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("delivered file missing: %v", err)
	}
}
