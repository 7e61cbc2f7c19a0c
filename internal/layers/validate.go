package layers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tau-omega/stadsmonitor/internal/aggregate"
	"github.com/tau-omega/stadsmonitor/internal/models"
)

// validate checks a layer spec against its dataset and the figure's
// existing layers. Called with the registry lock held.
func (r *Registry) validate(spec *models.LayerSpec, replace bool) models.ValidationReport {
	var report models.ValidationReport

	if spec.Name == models.DefaultLayerName {
		report.Warnf("layer has no name, using %q", models.DefaultLayerName)
	}

	for _, l := range r.figures[spec.Figure] {
		if l.Name == spec.Name && !replace {
			report.Errorf("figure %q already has a layer named %q", spec.Figure, spec.Name)
		}
	}

	ds, err := r.dataset(spec.Dataset)
	if err != nil {
		report.Errorf("%v", err)
		return report
	}

	if spec.IsMap() {
		r.validateMapLayer(spec, ds, &report)
	} else {
		validateChartLayer(spec, ds, &report)
	}
	return report
}

func validateChartLayer(spec *models.LayerSpec, ds *models.Dataset, report *models.ValidationReport) {
	switch spec.Type {
	case models.ChartScatter, models.ChartBar, models.ChartGroupedBar, models.ChartPie,
		models.ChartHistogram, models.ChartMultiHistogram:
	default:
		report.Errorf("unknown chart type %q", spec.Type)
		return
	}

	if spec.XColumn == "" {
		report.Errorf("layer %q has no x data", spec.Name)
	} else if !ds.Column(spec.XColumn) {
		report.Errorf("dataset %q has no column %q", ds.Name, spec.XColumn)
	}

	needsY := spec.Type != models.ChartHistogram && spec.Type != models.ChartMultiHistogram
	if needsY {
		if spec.YColumn == "" {
			report.Errorf("layer %q has no y data", spec.Name)
		} else if !ds.Column(spec.YColumn) {
			report.Errorf("dataset %q has no column %q", ds.Name, spec.YColumn)
		} else if err := columnCastsToFloat(ds, spec.YColumn); err != nil {
			report.Errorf("%v", err)
		}
	}

	if spec.Type == models.ChartBar && spec.XColumn != "" && ds.Column(spec.XColumn) {
		if hasDuplicates(ds.Values(spec.XColumn)) {
			report.Warnf("column %q has duplicate x values, bars will stack", spec.XColumn)
		}
	}
}

func (r *Registry) validateMapLayer(spec *models.LayerSpec, ds *models.Dataset, report *models.ValidationReport) {
	if spec.LabelsColumn == "" {
		report.Errorf("map layer %q needs a region code column", spec.Name)
		return
	}
	if !ds.Column(spec.LabelsColumn) {
		report.Errorf("dataset %q has no column %q", ds.Name, spec.LabelsColumn)
		return
	}

	level, ok := codesLevel(ds.Values(spec.LabelsColumn), report)
	if !ok {
		return
	}
	spec.MapLevel = string(level)

	if mapLevel, exists := r.mapLevelLocked(spec.Figure); exists && mapLevel != level {
		report.Errorf("layer %q has %s codes but the map shows %s regions", spec.Name, level, mapLevel)
	}

	if spec.DataColumn == "" {
		report.Errorf("map layer %q has no data column", spec.Name)
		return
	}
	if !ds.Column(spec.DataColumn) {
		report.Errorf("dataset %q has no column %q", ds.Name, spec.DataColumn)
		return
	}

	switch spec.Type {
	case models.MapChoropleth, models.MapBubble:
		if err := columnCastsToFloat(ds, spec.DataColumn); err != nil {
			report.Errorf("%v", err)
		}
	case models.MapCategoricalChoro:
		validateCategories(spec, ds, report)
	}
}

// codesLevel derives the region level from the code values: every
// code must be a string carrying a known prefix and the matching
// length, and all codes must agree on the level.
func codesLevel(values []interface{}, report *models.ValidationReport) (models.RegionLevel, bool) {
	var level models.RegionLevel
	for _, v := range values {
		code, ok := v.(string)
		if !ok {
			report.Errorf("region codes must be text, found %s", distinctTypes(values))
			return "", false
		}
		if code == models.Onbekend {
			continue
		}
		l, err := levelOfCode(code)
		if err != nil {
			report.Errorf("%v", err)
			return "", false
		}
		if level == "" {
			level = l
		} else if level != l {
			report.Errorf("column mixes %s and %s codes", level, l)
			return "", false
		}
	}
	if level == "" {
		report.Errorf("column contains no usable region codes")
		return "", false
	}
	return level, true
}

func levelOfCode(code string) (models.RegionLevel, error) {
	for _, level := range []models.RegionLevel{models.Buurt, models.Wijk, models.Gemeente} {
		if strings.HasPrefix(code, level.CodePrefix()) {
			if len(code) != level.CodeLength() {
				return "", fmt.Errorf("code %q has prefix %s but length %d, want %d",
					code, level.CodePrefix(), len(code), level.CodeLength())
			}
			return level, nil
		}
	}
	return "", fmt.Errorf("%q is not a region code", code)
}

func validateCategories(spec *models.LayerSpec, ds *models.Dataset, report *models.ValidationReport) {
	categories := make(map[string]struct{})
	perRegion := make(map[string]map[string]struct{})

	for _, rec := range ds.Records {
		code, _ := rec.Fields[spec.LabelsColumn].(string)
		cat := fmt.Sprintf("%v", rec.Fields[spec.DataColumn])
		categories[cat] = struct{}{}

		if perRegion[code] == nil {
			perRegion[code] = make(map[string]struct{})
		}
		perRegion[code][cat] = struct{}{}
	}

	if len(categories) > MaxCategories {
		report.Errorf("column %q has %d categories, at most %d can be coloured",
			spec.DataColumn, len(categories), MaxCategories)
	}
	for code, cats := range perRegion {
		if code != models.Onbekend && len(cats) > 1 {
			report.Warnf("region %s has %d categories, the most frequent one is shown", code, len(cats))
		}
	}
}

func columnCastsToFloat(ds *models.Dataset, col string) error {
	for _, rec := range ds.Records {
		v, ok := rec.Fields[col]
		if !ok || v == nil {
			continue
		}
		if _, err := aggregate.CastFloat(v); err != nil {
			return fmt.Errorf("cannot cast column %q to number, found types %s", col, distinctTypes(ds.Values(col)))
		}
	}
	return nil
}

func distinctTypes(values []interface{}) string {
	seen := make(map[string]struct{})
	for _, v := range values {
		if v != nil {
			seen[fmt.Sprintf("%T", v)] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

func hasDuplicates(values []interface{}) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := fmt.Sprintf("%v", v)
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}
