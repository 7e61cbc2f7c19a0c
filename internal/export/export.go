package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

// Export formats.
const (
	FormatCSV     = "csv"
	FormatGeoJSON = "geojson"
	FormatParquet = "parquet"
)

// Export renders a dataset in the requested format and returns the
// bytes with their content type.
func Export(ds *models.Dataset, format string) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		data, err := CSVBytes(ds)
		return data, "text/csv", err
	case FormatGeoJSON:
		data, err := GeoJSONBytes(ds)
		return data, "application/geo+json", err
	case FormatParquet:
		data, err := ParquetBytes(ds)
		return data, "application/octet-stream", err
	}
	return nil, "", fmt.Errorf("unknown export format %q", format)
}

// CSVBytes renders the dataset's columns as CSV, geometry omitted.
func CSVBytes(ds *models.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(ds.Columns); err != nil {
		return nil, err
	}
	for _, rec := range ds.Records {
		row := make([]string, len(ds.Columns))
		for i, col := range ds.Columns {
			if v, ok := rec.Fields[col]; ok && v != nil {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// GeoJSONBytes renders the dataset as a FeatureCollection with the
// record fields as properties.
func GeoJSONBytes(ds *models.Dataset) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, rec := range ds.Records {
		if rec.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(rec.Geometry)
		for k, v := range rec.Fields {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return json.Marshal(fc)
}

// ParquetBytes renders the dataset's columns as a Parquet file, every
// column as UTF8 strings. The writer needs a seekable file, so the
// bytes pass through a temp file.
func ParquetBytes(ds *models.Dataset) ([]byte, error) {
	dir, err := os.MkdirTemp("", "export")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data.parquet")

	md := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY", col)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create local file writer: %w", err)
	}

	pw, err := writer.NewCSVWriter(md, fw, 4)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to create ParquetWriter: %w", err)
	}

	for _, rec := range ds.Records {
		row := make([]*string, len(ds.Columns))
		for i, col := range ds.Columns {
			if v, ok := rec.Fields[col]; ok && v != nil {
				s := fmt.Sprintf("%v", v)
				row[i] = &s
			}
		}
		if err := pw.WriteString(row); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}
