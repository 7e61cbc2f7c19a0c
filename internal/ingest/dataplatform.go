package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

// dataplatformHost is the only CKAN portal datasets may come from.
const dataplatformHost = "ckan.dataplatform.nl"

// LoadDataplatform fetches a GeoJSON resource from the dataplatform
// CKAN portal. Download failures do not fail the load: the dataset
// comes back empty with its Err field set, so the client sees what
// went wrong.
func LoadDataplatform(ctx context.Context, client *http.Client, name, rawURL string) (*models.Dataset, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Host != dataplatformHost {
		return nil, fmt.Errorf("host %q is not %s", u.Host, dataplatformHost)
	}

	ds := models.NewDataset(name)
	ds.SourceURL = rawURL
	ds.ReadType = models.ReadTypeUnknown

	body, err := fetch(ctx, client, rawURL)
	if err != nil {
		log.Printf("dataplatform download failed for %s: %v", rawURL, err)
		ds.Err = err.Error()
		return ds, nil
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		log.Printf("dataplatform resource %s is not GeoJSON: %v", rawURL, err)
		ds.Err = err.Error()
		return ds, nil
	}

	columns := make(map[string]struct{})
	allPoints := len(fc.Features) > 0
	for _, f := range fc.Features {
		fields := make(map[string]interface{}, len(f.Properties))
		for k, v := range f.Properties {
			fields[k] = v
			columns[k] = struct{}{}
		}
		if _, ok := f.Geometry.(orb.Point); !ok {
			allPoints = false
		}
		ds.Records = append(ds.Records, models.Record{Fields: fields, Geometry: f.Geometry})
	}
	for c := range columns {
		ds.Columns = append(ds.Columns, c)
	}
	sort.Strings(ds.Columns)

	if allPoints {
		ds.ReadType = models.ReadTypeLatLong
	}
	return ds, nil
}

func fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
