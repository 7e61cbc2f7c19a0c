// Package geo converts coordinates from the Dutch RD New grid
// (EPSG:28992) to WGS84.
package geo

import "github.com/paulmach/orb"

// Amersfoort origin of the RD New grid and its WGS84 position.
const (
	rdX0 = 155000.0
	rdY0 = 463000.0

	phi0    = 52.15517440
	lambda0 = 5.38720621
)

type rdTerm struct {
	p, q int
	coef float64
}

// Schreutelkamp & van Hees approximation polynomials, seconds of arc.
var (
	phiTerms = []rdTerm{
		{0, 1, 3235.65389},
		{2, 0, -32.58297},
		{0, 2, -0.24750},
		{2, 1, -0.84978},
		{0, 3, -0.06550},
		{2, 2, -0.01709},
		{1, 0, -0.00738},
		{4, 0, 0.00530},
		{2, 3, -0.00039},
		{4, 1, 0.00033},
		{1, 1, -0.00012},
	}
	lambdaTerms = []rdTerm{
		{1, 0, 5260.52916},
		{1, 1, 105.94684},
		{1, 2, 2.45656},
		{3, 0, -0.81885},
		{1, 3, 0.05594},
		{3, 1, -0.05607},
		{0, 1, 0.01199},
		{3, 2, -0.00256},
		{1, 4, 0.00128},
		{0, 2, 0.00022},
		{2, 0, -0.00022},
		{5, 0, 0.00026},
	}
)

func pow(base float64, exp int) float64 {
	v := 1.0
	for i := 0; i < exp; i++ {
		v *= base
	}
	return v
}

// RDToWGS84 converts RD New metres to a WGS84 longitude/latitude pair.
func RDToWGS84(x, y float64) (lon, lat float64) {
	dX := (x - rdX0) * 1e-5
	dY := (y - rdY0) * 1e-5

	var dPhi, dLambda float64
	for _, t := range phiTerms {
		dPhi += t.coef * pow(dX, t.p) * pow(dY, t.q)
	}
	for _, t := range lambdaTerms {
		dLambda += t.coef * pow(dX, t.p) * pow(dY, t.q)
	}

	lat = phi0 + dPhi/3600
	lon = lambda0 + dLambda/3600
	return lon, lat
}

// isWGS84 treats coordinates already inside lon/lat bounds as
// converted. RD New coordinates are metres and far outside it.
func isWGS84(p orb.Point) bool {
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

// PointToWGS84 converts an RD New point, passing WGS84 input through.
func PointToWGS84(p orb.Point) orb.Point {
	if isWGS84(p) {
		return p
	}
	lon, lat := RDToWGS84(p[0], p[1])
	return orb.Point{lon, lat}
}

// RingToWGS84 converts a ring in place.
func RingToWGS84(r orb.Ring) orb.Ring {
	for i, p := range r {
		r[i] = PointToWGS84(p)
	}
	return r
}

// PolygonToWGS84 converts every ring of the polygon in place.
func PolygonToWGS84(poly orb.Polygon) orb.Polygon {
	for i, r := range poly {
		poly[i] = RingToWGS84(r)
	}
	return poly
}

// MultiPolygonToWGS84 converts every polygon in place.
func MultiPolygonToWGS84(mp orb.MultiPolygon) orb.MultiPolygon {
	for i, poly := range mp {
		mp[i] = PolygonToWGS84(poly)
	}
	return mp
}

// GeometryToWGS84 converts the supported geometry kinds, returning
// anything else untouched.
func GeometryToWGS84(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return PointToWGS84(v)
	case orb.MultiPoint:
		for i, p := range v {
			v[i] = PointToWGS84(p)
		}
		return v
	case orb.Ring:
		return RingToWGS84(v)
	case orb.Polygon:
		return PolygonToWGS84(v)
	case orb.MultiPolygon:
		return MultiPolygonToWGS84(v)
	case orb.LineString:
		for i, p := range v {
			v[i] = PointToWGS84(p)
		}
		return v
	}
	return g
}
