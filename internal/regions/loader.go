// Package regions loads CBS region shapes (buurt, wijk, gemeente)
// from disk and serves them as WGS84 multipolygons.
package regions

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/encoding/charmap"

	"github.com/tau-omega/stadsmonitor/internal/geo"
	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/repositories"
)

// gemeenteColumn names the municipality attribute present on every
// CBS level.
const gemeenteColumn = "GM_NAAM"

// Loader reads region shapes from ShapeDir and filters them to one
// gemeente. Loaded sets are cached per level. When a repository is
// attached, levels without files on disk are read from it instead.
type Loader struct {
	ShapeDir string
	Gemeente string

	repo repositories.RegionRepository

	mu    sync.Mutex
	cache map[models.RegionLevel]*models.RegionSet
}

func NewLoader(shapeDir, gemeente string) *Loader {
	return &Loader{
		ShapeDir: shapeDir,
		Gemeente: gemeente,
		cache:    make(map[models.RegionLevel]*models.RegionSet),
	}
}

// SetRepository attaches a fallback source for levels whose files are
// missing, typically filled by the import-shapes command.
func (l *Loader) SetRepository(repo repositories.RegionRepository) {
	l.repo = repo
}

// Load returns the region set for a level name. Unknown names fall
// back to Buurt.
func (l *Loader) Load(levelName string) (*models.RegionSet, error) {
	level, ok := models.ParseRegionLevel(levelName)
	if !ok {
		log.Printf("unknown region level %q, falling back to %s", levelName, models.Buurt)
	}
	return l.LoadLevel(level)
}

func (l *Loader) LoadLevel(level models.RegionLevel) (*models.RegionSet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if set, ok := l.cache[level]; ok {
		return set, nil
	}

	set, err := l.read(level)
	if err != nil {
		return nil, err
	}
	set = set.FilterGemeente(l.Gemeente)
	l.cache[level] = set
	return set, nil
}

func (l *Loader) read(level models.RegionLevel) (*models.RegionSet, error) {
	base := filepath.Join(l.ShapeDir, level.ShapeName())

	if _, err := os.Stat(base + ".geojson"); err == nil {
		return readGeoJSON(base+".geojson", level)
	}
	if _, err := os.Stat(base + ".shp"); err == nil {
		return readShapefile(base+".shp", level)
	}
	if l.repo != nil {
		regions, err := l.repo.GetByLevel(context.Background(), level)
		if err != nil {
			return nil, fmt.Errorf("loading %s regions from database: %w", level, err)
		}
		return models.NewRegionSet(level, regions), nil
	}
	return readShapefile(base+".shp", level)
}

func readShapefile(path string, level models.RegionLevel) (*models.RegionSet, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", path, err)
	}
	defer r.Close()

	codeIdx, nameIdx, gemIdx := -1, -1, -1
	for i, f := range r.Fields() {
		switch f.String() {
		case level.CodeColumn():
			codeIdx = i
		case level.NameColumn():
			nameIdx = i
		case gemeenteColumn:
			gemIdx = i
		}
	}
	if codeIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("shapefile %s misses %s or %s", path, level.CodeColumn(), level.NameColumn())
	}

	var regions []models.Region
	for r.Next() {
		n, s := r.Shape()
		poly, ok := s.(*shp.Polygon)
		if !ok {
			continue
		}

		region := models.Region{
			Code:     strings.TrimSpace(r.ReadAttribute(n, codeIdx)),
			Name:     decodeLatin1(strings.TrimSpace(r.ReadAttribute(n, nameIdx))),
			Geometry: geo.MultiPolygonToWGS84(multiPolygon(poly)),
		}
		if gemIdx >= 0 {
			region.Gemeente = decodeLatin1(strings.TrimSpace(r.ReadAttribute(n, gemIdx)))
		}
		if level == models.Gemeente {
			region.Gemeente = region.Name
		}
		regions = append(regions, region)
	}

	return models.NewRegionSet(level, regions), nil
}

// multiPolygon reassembles a shapefile polygon's part rings. Outer
// rings are clockwise per the shapefile spec, holes counter-clockwise.
func multiPolygon(p *shp.Polygon) orb.MultiPolygon {
	var mp orb.MultiPolygon
	var cur orb.Polygon

	for i, start := range p.Parts {
		end := len(p.Points)
		if i+1 < len(p.Parts) {
			end = int(p.Parts[i+1])
		}

		ring := make(orb.Ring, 0, end-int(start))
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}

		if ring.Orientation() == orb.CW || cur == nil {
			if cur != nil {
				mp = append(mp, cur)
			}
			cur = orb.Polygon{ring}
		} else {
			cur = append(cur, ring)
		}
	}
	if cur != nil {
		mp = append(mp, cur)
	}
	return mp
}

func readGeoJSON(path string, level models.RegionLevel) (*models.RegionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var regions []models.Region
	for _, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}

		region := models.Region{
			Code:     f.Properties.MustString(level.CodeColumn(), ""),
			Name:     f.Properties.MustString(level.NameColumn(), ""),
			Gemeente: f.Properties.MustString(gemeenteColumn, ""),
			Geometry: geo.MultiPolygonToWGS84(mp),
		}
		if level == models.Gemeente {
			region.Gemeente = region.Name
		}
		regions = append(regions, region)
	}

	return models.NewRegionSet(level, regions), nil
}

// decodeLatin1 recovers names from DBF files written in ISO-8859-1.
// Valid UTF-8 input is kept as is.
func decodeLatin1(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}
