package models

import "fmt"

// Figure identifiers understood by the layer registry.
const (
	FigureChart1 = "chart-1"
	FigureChart2 = "chart-2"
	FigureMap    = "map"
)

// Chart layer types.
const (
	ChartScatter        = "scatter"
	ChartBar            = "barchart"
	ChartGroupedBar     = "grouped_barchart"
	ChartPie            = "piechart"
	ChartHistogram      = "histogram"
	ChartMultiHistogram = "multi_histogram"
	MapChoropleth       = "choroplethmapbox"
	MapCategoricalChoro = "categorical_choroplethmapbox"
	MapBubble           = "bubble_mapbox"
)

// DefaultLayerName is assigned when a layer is saved without a name.
const DefaultLayerName = "Laag zonder naam"

// LayerSpec describes one visualisation layer on a figure.
type LayerSpec struct {
	Figure       string `json:"figure"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Dataset      string `json:"dataset"`
	XColumn      string `json:"x_column,omitempty"`
	YColumn      string `json:"y_column,omitempty"`
	XTitle       string `json:"x_title,omitempty"`
	YTitle       string `json:"y_title,omitempty"`
	Mode         string `json:"mode,omitempty"`
	MapLevel     string `json:"map_level,omitempty"`
	DataColumn   string `json:"data_column,omitempty"`
	LabelsColumn string `json:"labels_column,omitempty"`
	Aggregate    string `json:"aggregate,omitempty"`
	Colormap     string `json:"colormap,omitempty"`
}

// IsMap reports whether the layer renders on the map figure.
func (s LayerSpec) IsMap() bool {
	switch s.Type {
	case MapChoropleth, MapCategoricalChoro, MapBubble:
		return true
	}
	return false
}

// ValidationReport collects the warnings and errors a layer save
// produced. Errors block the save, warnings do not.
type ValidationReport struct {
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

func (r *ValidationReport) Warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) Errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) OK() bool { return len(r.Errors) == 0 }
