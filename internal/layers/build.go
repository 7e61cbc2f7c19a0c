package layers

import (
	"fmt"
	"sort"

	"github.com/tau-omega/stadsmonitor/internal/aggregate"
	"github.com/tau-omega/stadsmonitor/internal/models"
)

// Bubble sizing bounds in pixels.
const (
	maxBubbleSize = 20.0
	minBubbleSize = 3.0
)

// Figure is the plot-ready payload of one figure.
type Figure struct {
	Figure string       `json:"figure"`
	Level  string       `json:"level,omitempty"`
	Layers []BuiltLayer `json:"layers"`
}

// BuiltLayer carries the resolved data of one layer. Chart layers
// fill the series fields, map layers the region fields.
type BuiltLayer struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Mode     string `json:"mode,omitempty"`
	XTitle   string `json:"x_title,omitempty"`
	YTitle   string `json:"y_title,omitempty"`
	Colormap string `json:"colormap,omitempty"`

	X []interface{} `json:"x,omitempty"`
	Y []float64     `json:"y,omitempty"`

	Codes      []string        `json:"codes,omitempty"`
	Values     []float64       `json:"values,omitempty"`
	Labels     []string        `json:"labels,omitempty"`
	Categories []CategoryGroup `json:"categories,omitempty"`
	Bubbles    *BubbleData     `json:"bubbles,omitempty"`
}

// CategoryGroup lists the regions sharing one category colour.
type CategoryGroup struct {
	Category string   `json:"category"`
	Color    string   `json:"color"`
	Codes    []string `json:"codes"`
}

// BubbleData positions scaled markers at region centroids.
type BubbleData struct {
	Lats        []float64 `json:"lats"`
	Lons        []float64 `json:"lons"`
	Sizes       []float64 `json:"sizes"`
	BorderSizes []float64 `json:"border_sizes"`
	Labels      []string  `json:"labels"`
	SizeRef     float64   `json:"sizeref"`
}

// BuildFigure resolves every saved layer of a figure against the
// current datasets.
func (r *Registry) BuildFigure(figure string) (*Figure, error) {
	r.mu.RLock()
	specs := append([]models.LayerSpec(nil), r.figures[figure]...)
	level, hasLevel := r.mapLevelLocked(figure)
	r.mu.RUnlock()

	out := &Figure{Figure: figure}
	if hasLevel {
		out.Level = string(level)
	}

	for _, spec := range specs {
		ds, err := r.dataset(spec.Dataset)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", spec.Name, err)
		}

		var built BuiltLayer
		if spec.IsMap() {
			built, err = r.buildMapLayer(spec, ds, level)
		} else {
			built, err = buildChartLayer(spec, ds)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", spec.Name, err)
		}
		out.Layers = append(out.Layers, built)
	}
	return out, nil
}

func buildChartLayer(spec models.LayerSpec, ds *models.Dataset) (BuiltLayer, error) {
	built := BuiltLayer{
		Name:   spec.Name,
		Type:   spec.Type,
		Mode:   spec.Mode,
		XTitle: spec.XTitle,
		YTitle: spec.YTitle,
	}

	type pair struct {
		x interface{}
		y float64
	}
	var pairs []pair

	needsY := spec.Type != models.ChartHistogram && spec.Type != models.ChartMultiHistogram
	for _, rec := range ds.Records {
		x, ok := rec.Fields[spec.XColumn]
		if !ok || x == nil {
			continue
		}
		p := pair{x: x}
		if needsY {
			v, ok := rec.Fields[spec.YColumn]
			if !ok || v == nil {
				continue
			}
			f, err := aggregate.CastFloat(v)
			if err != nil {
				return built, err
			}
			p.y = f
		}
		pairs = append(pairs, p)
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return fmt.Sprintf("%v", pairs[i].x) < fmt.Sprintf("%v", pairs[j].x)
	})

	for _, p := range pairs {
		built.X = append(built.X, p.x)
		if needsY {
			built.Y = append(built.Y, p.y)
		}
	}
	return built, nil
}

func (r *Registry) buildMapLayer(spec models.LayerSpec, ds *models.Dataset, level models.RegionLevel) (BuiltLayer, error) {
	built := BuiltLayer{
		Name:     spec.Name,
		Type:     spec.Type,
		Colormap: spec.Colormap,
	}

	set, err := r.shapes.LoadLevel(level)
	if err != nil {
		return built, err
	}

	// Rows outside every region carry the onbekend code and are not
	// drawn.
	var rows []codeValue
	for _, rec := range ds.Records {
		code, _ := rec.Fields[spec.LabelsColumn].(string)
		if code == "" || code == models.Onbekend {
			continue
		}
		rows = append(rows, codeValue{code: code, value: rec.Fields[spec.DataColumn]})
	}

	switch spec.Type {
	case models.MapChoropleth:
		for _, rw := range rows {
			f, err := aggregate.CastFloat(rw.value)
			if err != nil {
				return built, err
			}
			built.Codes = append(built.Codes, rw.code)
			built.Values = append(built.Values, f)
			built.Labels = append(built.Labels, regionName(set, rw.code))
		}

	case models.MapCategoricalChoro:
		built.Categories = buildCategories(rows)

	case models.MapBubble:
		bubbles := &BubbleData{}
		var maxVal float64
		vals := make([]float64, 0, len(rows))
		for _, rw := range rows {
			f, err := aggregate.CastFloat(rw.value)
			if err != nil {
				return built, err
			}
			vals = append(vals, f)
			if f > maxVal {
				maxVal = f
			}
		}
		sizeRef := 1.0
		if maxVal > 0 {
			sizeRef = maxVal / maxBubbleSize
		}
		for i, rw := range rows {
			c, err := set.Centroid(rw.code)
			if err != nil {
				continue
			}
			size := vals[i] / sizeRef
			if size < minBubbleSize {
				size = minBubbleSize
			}
			border := 1.2 * size
			if size+2 < border {
				border = size + 2
			}
			bubbles.Lons = append(bubbles.Lons, c[0])
			bubbles.Lats = append(bubbles.Lats, c[1])
			bubbles.Sizes = append(bubbles.Sizes, size)
			bubbles.BorderSizes = append(bubbles.BorderSizes, border)
			bubbles.Labels = append(bubbles.Labels, regionName(set, rw.code))
		}
		bubbles.SizeRef = sizeRef
		built.Bubbles = bubbles
	}

	return built, nil
}

type codeValue struct {
	code  string
	value interface{}
}

// buildCategories groups regions by category value in first-seen
// order, assigning palette colours. A region with several categories
// keeps its most frequent one.
func buildCategories(rows []codeValue) []CategoryGroup {
	counts := make(map[string]map[string]int)
	var codeOrder []string
	for _, rw := range rows {
		cat := fmt.Sprintf("%v", rw.value)
		if counts[rw.code] == nil {
			counts[rw.code] = make(map[string]int)
			codeOrder = append(codeOrder, rw.code)
		}
		counts[rw.code][cat]++
	}

	chosen := make(map[string]string, len(counts))
	var catOrder []string
	seenCat := make(map[string]struct{})
	for _, code := range codeOrder {
		best, bestN := "", 0
		for cat, n := range counts[code] {
			if n > bestN || (n == bestN && cat < best) {
				best, bestN = cat, n
			}
		}
		chosen[code] = best
		if _, ok := seenCat[best]; !ok {
			seenCat[best] = struct{}{}
			catOrder = append(catOrder, best)
		}
	}

	groups := make([]CategoryGroup, 0, len(catOrder))
	for i, cat := range catOrder {
		g := CategoryGroup{Category: cat, Color: alphabet[i%len(alphabet)]}
		for _, code := range codeOrder {
			if chosen[code] == cat {
				g.Codes = append(g.Codes, code)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

func regionName(set *models.RegionSet, code string) string {
	if r, ok := set.Get(code); ok {
		return r.Name
	}
	return code
}
