// Package aggregate assigns point records to regions and groups
// dataset columns per region.
package aggregate

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

// Grouping methods.
const (
	Mean      = "mean"
	Max       = "max"
	Min       = "min"
	Sum       = "sum"
	Frequency = "frequency"
)

// AssignRegions adds the level's code and name columns to every
// record, based on which region contains its geometry. Records
// outside every region get "onbekend" for both.
func AssignRegions(ds *models.Dataset, set *models.RegionSet) {
	codeCol, nameCol := set.Level.CodeColumn(), set.Level.NameColumn()

	for i := range ds.Records {
		rec := &ds.Records[i]
		code, name := models.Onbekend, models.Onbekend

		if pt, ok := representativePoint(rec.Geometry); ok {
			if r, found := set.Find(pt); found {
				code, name = r.Code, r.Name
			}
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]interface{})
		}
		rec.Fields[codeCol] = code
		rec.Fields[nameCol] = name
	}

	if !ds.Column(codeCol) {
		ds.Columns = append(ds.Columns, codeCol, nameCol)
	}
}

func representativePoint(g orb.Geometry) (orb.Point, bool) {
	switch v := g.(type) {
	case nil:
		return orb.Point{}, false
	case orb.Point:
		return v, true
	default:
		c, _ := planar.CentroidArea(g)
		return c, true
	}
}

// Group aggregates value columns per region. Method is one of mean,
// max, min, sum or frequency; anything else falls back to mean. An
// empty column list aggregates every castable column. The result has
// one record per region code carrying the region's geometry.
func Group(ds *models.Dataset, set *models.RegionSet, method string, valueCols []string) (*models.Dataset, error) {
	switch method {
	case Mean, Max, Min, Sum, Frequency:
	default:
		log.Printf("unknown aggregation method %q, using mean", method)
		method = Mean
	}

	codeCol, nameCol := set.Level.CodeColumn(), set.Level.NameColumn()

	if len(valueCols) == 0 && method != Frequency {
		valueCols = castableColumns(ds, codeCol, nameCol)
	}

	type group struct {
		name   string
		values map[string][]float64
		count  int
	}
	groups := make(map[string]*group)
	var order []string

	for _, rec := range ds.Records {
		code, _ := rec.Fields[codeCol].(string)
		if code == "" {
			code = models.Onbekend
		}
		g, ok := groups[code]
		if !ok {
			g = &group{values: make(map[string][]float64)}
			if name, ok := rec.Fields[nameCol].(string); ok {
				g.name = name
			}
			groups[code] = g
			order = append(order, code)
		}
		g.count++
		for _, col := range valueCols {
			v, ok := rec.Fields[col]
			if !ok || v == nil {
				continue
			}
			f, err := CastFloat(v)
			if err != nil {
				return nil, castError(ds, col)
			}
			g.values[col] = append(g.values[col], f)
		}
	}

	out := models.NewDataset(ds.Name)
	out.ReadType = string(set.Level)
	out.Aggregated = true
	out.SourceURL = ds.SourceURL
	out.Columns = append([]string{codeCol, nameCol}, valueCols...)
	if method == Frequency {
		out.Columns = []string{codeCol, nameCol, Frequency}
	}

	for _, code := range order {
		g := groups[code]
		fields := map[string]interface{}{codeCol: code, nameCol: g.name}

		if method == Frequency {
			fields[Frequency] = float64(g.count)
		} else {
			for _, col := range valueCols {
				vals := g.values[col]
				if len(vals) == 0 {
					continue
				}
				fields[col] = reduce(method, vals)
			}
		}

		var geom orb.Geometry
		if r, ok := set.Get(code); ok {
			geom = r.Geometry
		}
		out.Records = append(out.Records, models.Record{Fields: fields, Geometry: geom})
	}

	return out, nil
}

func reduce(method string, vals []float64) float64 {
	switch method {
	case Max:
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case Min:
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case Sum:
		var s float64
		for _, v := range vals {
			s += v
		}
		return s
	default: // mean
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	}
}

// CastFloat converts the dynamic column values a dataset carries.
func CastFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(x), ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

// castError names the distinct value types found in the column, so
// the client can tell which rows broke the cast.
func castError(ds *models.Dataset, col string) error {
	seen := make(map[string]struct{})
	for _, rec := range ds.Records {
		if v, ok := rec.Fields[col]; ok && v != nil {
			seen[fmt.Sprintf("%T", v)] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return fmt.Errorf("cannot cast column %q to number, found types %s", col, strings.Join(types, ", "))
}

// castableColumns returns the columns whose every non-nil value casts
// to float, skipping the region key columns.
func castableColumns(ds *models.Dataset, skip ...string) []string {
	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipSet[s] = struct{}{}
	}

	var cols []string
	for _, col := range ds.Columns {
		if _, ok := skipSet[col]; ok {
			continue
		}
		castable := true
		any := false
		for _, rec := range ds.Records {
			v, ok := rec.Fields[col]
			if !ok || v == nil {
				continue
			}
			any = true
			if _, err := CastFloat(v); err != nil {
				castable = false
				break
			}
		}
		if castable && any {
			cols = append(cols, col)
		}
	}
	return cols
}
