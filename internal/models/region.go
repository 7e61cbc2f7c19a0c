package models

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// RegionLevel is a CBS statistical division level.
type RegionLevel string

const (
	Buurt    RegionLevel = "Buurt"
	Wijk     RegionLevel = "Wijk"
	Gemeente RegionLevel = "Gemeente"
)

// Onbekend marks records that could not be matched to a region.
const Onbekend = "onbekend"

// AllGemeenten is the filter keyword that keeps every gemeente.
const AllGemeenten = "All"

// ParseRegionLevel maps a level name onto a RegionLevel. Unrecognised
// values fall back to Buurt; the second return reports whether the
// input matched.
func ParseRegionLevel(s string) (RegionLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buurt":
		return Buurt, true
	case "wijk":
		return Wijk, true
	case "gemeente":
		return Gemeente, true
	}
	return Buurt, false
}

func (l RegionLevel) CodeColumn() string {
	switch l {
	case Wijk:
		return "WK_CODE"
	case Gemeente:
		return "GM_CODE"
	}
	return "BU_CODE"
}

func (l RegionLevel) NameColumn() string {
	switch l {
	case Wijk:
		return "WK_NAAM"
	case Gemeente:
		return "GM_NAAM"
	}
	return "BU_NAAM"
}

func (l RegionLevel) CodePrefix() string {
	switch l {
	case Wijk:
		return "WK"
	case Gemeente:
		return "GM"
	}
	return "BU"
}

func (l RegionLevel) CodeLength() int {
	switch l {
	case Wijk:
		return 8
	case Gemeente:
		return 6
	}
	return 10
}

// ShapeName is the base name of the CBS shapefile for this level.
func (l RegionLevel) ShapeName() string {
	switch l {
	case Wijk:
		return "wijk_2020_v1"
	case Gemeente:
		return "gemeente_2020_v1"
	}
	return "buurt_2020_v1"
}

// Region is one CBS statistical area with WGS84 geometry.
type Region struct {
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Gemeente string           `json:"gemeente"`
	Geometry orb.MultiPolygon `json:"-"`
}

// RegionSet holds every region of one level, indexed by code.
type RegionSet struct {
	Level   RegionLevel
	Regions []Region
	byCode  map[string]int
}

func NewRegionSet(level RegionLevel, regions []Region) *RegionSet {
	s := &RegionSet{Level: level, Regions: regions, byCode: make(map[string]int, len(regions))}
	for i, r := range regions {
		s.byCode[r.Code] = i
	}
	return s
}

func (s *RegionSet) Get(code string) (Region, bool) {
	i, ok := s.byCode[code]
	if !ok {
		return Region{}, false
	}
	return s.Regions[i], true
}

// Find returns the region containing the point, if any.
func (s *RegionSet) Find(pt orb.Point) (Region, bool) {
	for _, r := range s.Regions {
		if planar.MultiPolygonContains(r.Geometry, pt) {
			return r, true
		}
	}
	return Region{}, false
}

// Centroid returns the area centroid of the region's geometry.
func (s *RegionSet) Centroid(code string) (orb.Point, error) {
	r, ok := s.Get(code)
	if !ok {
		return orb.Point{}, fmt.Errorf("region %q: %s", code, Onbekend)
	}
	c, _ := planar.CentroidArea(r.Geometry)
	return c, nil
}

// FilterGemeente keeps only regions belonging to the named gemeente.
// The keyword "All" keeps everything.
func (s *RegionSet) FilterGemeente(name string) *RegionSet {
	if name == AllGemeenten {
		return s
	}
	var kept []Region
	for _, r := range s.Regions {
		if r.Gemeente == name {
			kept = append(kept, r)
		}
	}
	return NewRegionSet(s.Level, kept)
}

// FeatureCollection renders the set as GeoJSON with code, name and
// gemeente properties.
func (s *RegionSet) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range s.Regions {
		f := geojson.NewFeature(r.Geometry)
		f.ID = r.Code
		f.Properties[s.Level.CodeColumn()] = r.Code
		f.Properties[s.Level.NameColumn()] = r.Name
		f.Properties["GM_NAAM"] = r.Gemeente
		fc.Append(f)
	}
	return fc
}
