package models

import (
	"time"

	"github.com/lucsky/cuid"
	"github.com/paulmach/orb"
)

// Read types a dataset can carry. Region levels double as read types
// for tables joined on a CBS code column.
const (
	ReadTypeLatLong  = "latlong"
	ReadTypeGeometry = "geometry"
	ReadTypeUnknown  = Onbekend
)

// Record is one row of a dataset: a bag of column values plus an
// optional WGS84 geometry.
type Record struct {
	Fields   map[string]interface{}
	Geometry orb.Geometry
}

func (r Record) Point() (orb.Point, bool) {
	p, ok := r.Geometry.(orb.Point)
	return p, ok
}

// Dataset is a named table loaded from a sensor network, a CKAN
// portal or an uploaded file.
type Dataset struct {
	ID         string
	Name       string
	Columns    []string
	Records    []Record
	ReadType   string
	Aggregated bool
	SourceURL  string
	// Err carries a load failure that should surface to the client
	// without discarding the dataset slot.
	Err       string
	Window    time.Duration
	CreatedAt time.Time
}

func NewDataset(name string) *Dataset {
	return &Dataset{
		ID:        cuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy whose columns and field maps can be
// mutated without affecting readers of the original. Geometries are
// shared; nothing writes to them.
func (d *Dataset) Clone() *Dataset {
	out := *d
	out.Columns = append([]string(nil), d.Columns...)
	out.Records = make([]Record, len(d.Records))
	for i, rec := range d.Records {
		fields := make(map[string]interface{}, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = v
		}
		out.Records[i] = Record{Fields: fields, Geometry: rec.Geometry}
	}
	return &out
}

// Column reports whether the dataset has the named column.
func (d *Dataset) Column(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Values collects the column's value from every record, missing
// fields as nil.
func (d *Dataset) Values(column string) []interface{} {
	out := make([]interface{}, len(d.Records))
	for i, rec := range d.Records {
		out[i] = rec.Fields[column]
	}
	return out
}
