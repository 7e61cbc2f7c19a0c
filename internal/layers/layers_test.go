package layers

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/store"
)

type fakeShapes struct {
	set *models.RegionSet
}

func (f *fakeShapes) LoadLevel(level models.RegionLevel) (*models.RegionSet, error) {
	return f.set, nil
}

func square(x, y float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}}}
}

func testRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	set := models.NewRegionSet(models.Buurt, []models.Region{
		{Code: "BU07550000", Name: "Binnenstad", Geometry: square(5, 51)},
		{Code: "BU07550001", Name: "Noord", Geometry: square(5, 52)},
	})
	s := store.New()
	return NewRegistry(s, &fakeShapes{set: set}), s
}

func regionDataset() *models.Dataset {
	ds := models.NewDataset("temperaturen")
	ds.Columns = []string{"BU_CODE", "BU_NAAM", "temperature", "label"}
	ds.Records = []models.Record{
		{Fields: map[string]interface{}{"BU_CODE": "BU07550000", "BU_NAAM": "Binnenstad", "temperature": 21.5, "label": "warm"}},
		{Fields: map[string]interface{}{"BU_CODE": "BU07550001", "BU_NAAM": "Noord", "temperature": 19.0, "label": "koel"}},
		{Fields: map[string]interface{}{"BU_CODE": models.Onbekend, "BU_NAAM": models.Onbekend, "temperature": 15.0, "label": "koel"}},
	}
	return ds
}

func TestSaveAssignsDefaultName(t *testing.T) {
	reg, s := testRegistry(t)
	s.Put(regionDataset())

	report := reg.Save(models.LayerSpec{
		Figure:       models.FigureMap,
		Type:         models.MapChoropleth,
		Dataset:      "temperaturen",
		DataColumn:   "temperature",
		LabelsColumn: "BU_CODE",
	}, false)

	if !report.OK() {
		t.Fatalf("errors: %v", report.Errors)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected a warning about the missing name")
	}
	specs := reg.Layers(models.FigureMap)
	if len(specs) != 1 || specs[0].Name != models.DefaultLayerName {
		t.Errorf("layers = %+v", specs)
	}
}

func TestSaveDuplicateNameBlocked(t *testing.T) {
	reg, s := testRegistry(t)
	s.Put(regionDataset())

	spec := models.LayerSpec{
		Figure:       models.FigureMap,
		Name:         "temperatuur",
		Type:         models.MapChoropleth,
		Dataset:      "temperaturen",
		DataColumn:   "temperature",
		LabelsColumn: "BU_CODE",
	}
	if report := reg.Save(spec, false); !report.OK() {
		t.Fatalf("first save failed: %v", report.Errors)
	}
	if report := reg.Save(spec, false); report.OK() {
		t.Error("duplicate name was not rejected")
	}
	// Editing under the same name is allowed.
	if report := reg.Save(spec, true); !report.OK() {
		t.Errorf("replace save failed: %v", report.Errors)
	}
	if len(reg.Layers(models.FigureMap)) != 1 {
		t.Errorf("got %d layers, want 1", len(reg.Layers(models.FigureMap)))
	}
}

func TestSaveUnknownDataset(t *testing.T) {
	reg, _ := testRegistry(t)

	report := reg.Save(models.LayerSpec{
		Figure:  models.FigureChart1,
		Name:    "l",
		Type:    models.ChartScatter,
		Dataset: "bestaat niet",
		XColumn: "x",
		YColumn: "y",
	}, false)
	if report.OK() {
		t.Error("missing dataset was not rejected")
	}
}

func TestValidateRegionCodes(t *testing.T) {
	reg, s := testRegistry(t)

	ds := models.NewDataset("kapot")
	ds.Columns = []string{"code", "waarde"}
	ds.Records = []models.Record{
		{Fields: map[string]interface{}{"code": "BU123", "waarde": 1.0}},
	}
	s.Put(ds)

	report := reg.Save(models.LayerSpec{
		Figure:       models.FigureMap,
		Name:         "l",
		Type:         models.MapChoropleth,
		Dataset:      "kapot",
		DataColumn:   "waarde",
		LabelsColumn: "code",
	}, false)
	if report.OK() {
		t.Fatal("bad code length was not rejected")
	}
	if !strings.Contains(strings.Join(report.Errors, " "), "length") {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestValidateLevelMismatch(t *testing.T) {
	reg, s := testRegistry(t)
	s.Put(regionDataset())

	wijk := models.NewDataset("wijken")
	wijk.Columns = []string{"WK_CODE", "waarde"}
	wijk.Records = []models.Record{
		{Fields: map[string]interface{}{"WK_CODE": "WK075500", "waarde": 2.0}},
	}
	s.Put(wijk)

	first := reg.Save(models.LayerSpec{
		Figure: models.FigureMap, Name: "buurten", Type: models.MapChoropleth,
		Dataset: "temperaturen", DataColumn: "temperature", LabelsColumn: "BU_CODE",
	}, false)
	if !first.OK() {
		t.Fatalf("first layer failed: %v", first.Errors)
	}

	second := reg.Save(models.LayerSpec{
		Figure: models.FigureMap, Name: "wijklaag", Type: models.MapChoropleth,
		Dataset: "wijken", DataColumn: "waarde", LabelsColumn: "WK_CODE",
	}, false)
	if second.OK() {
		t.Error("level mismatch was not rejected")
	}
}

func TestValidateChartLayers(t *testing.T) {
	reg, s := testRegistry(t)
	s.Put(regionDataset())

	// Histogram needs only x.
	report := reg.Save(models.LayerSpec{
		Figure: models.FigureChart1, Name: "hist", Type: models.ChartHistogram,
		Dataset: "temperaturen", XColumn: "temperature",
	}, false)
	if !report.OK() {
		t.Errorf("histogram rejected: %v", report.Errors)
	}

	// Scatter without y is an error.
	report = reg.Save(models.LayerSpec{
		Figure: models.FigureChart1, Name: "punten", Type: models.ChartScatter,
		Dataset: "temperaturen", XColumn: "BU_NAAM",
	}, false)
	if report.OK() {
		t.Error("scatter without y was not rejected")
	}

	// Non-numeric y names the types it found.
	report = reg.Save(models.LayerSpec{
		Figure: models.FigureChart1, Name: "tekst", Type: models.ChartScatter,
		Dataset: "temperaturen", XColumn: "BU_NAAM", YColumn: "label",
	}, false)
	if report.OK() {
		t.Error("text y column was not rejected")
	}
}

func TestValidateBarchartStackingWarning(t *testing.T) {
	reg, s := testRegistry(t)

	ds := models.NewDataset("dubbel")
	ds.Columns = []string{"x", "y"}
	ds.Records = []models.Record{
		{Fields: map[string]interface{}{"x": "a", "y": 1.0}},
		{Fields: map[string]interface{}{"x": "a", "y": 2.0}},
	}
	s.Put(ds)

	report := reg.Save(models.LayerSpec{
		Figure: models.FigureChart2, Name: "staaf", Type: models.ChartBar,
		Dataset: "dubbel", XColumn: "x", YColumn: "y",
	}, false)
	if !report.OK() {
		t.Fatalf("errors: %v", report.Errors)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected stacking warning for duplicate x values")
	}
}

func TestValidateTooManyCategories(t *testing.T) {
	reg, s := testRegistry(t)

	ds := models.NewDataset("veel")
	ds.Columns = []string{"BU_CODE", "cat"}
	for i := 0; i < MaxCategories+1; i++ {
		ds.Records = append(ds.Records, models.Record{Fields: map[string]interface{}{
			"BU_CODE": "BU07550000",
			"cat":     string(rune('a'+i%26)) + string(rune('0'+i/26)),
		}})
	}
	s.Put(ds)

	report := reg.Save(models.LayerSpec{
		Figure: models.FigureMap, Name: "cats", Type: models.MapCategoricalChoro,
		Dataset: "veel", DataColumn: "cat", LabelsColumn: "BU_CODE",
	}, false)
	if report.OK() {
		t.Error("too many categories was not rejected")
	}
}

func TestBuildChoropleth(t *testing.T) {
	reg, s := testRegistry(t)
	s.Put(regionDataset())

	report := reg.Save(models.LayerSpec{
		Figure: models.FigureMap, Name: "temperatuur", Type: models.MapChoropleth,
		Dataset: "temperaturen", DataColumn: "temperature", LabelsColumn: "BU_CODE",
	}, false)
	if !report.OK() {
		t.Fatalf("save failed: %v", report.Errors)
	}

	fig, err := reg.BuildFigure(models.FigureMap)
	if err != nil {
		t.Fatalf("BuildFigure: %v", err)
	}
	if fig.Level != string(models.Buurt) {
		t.Errorf("level = %q", fig.Level)
	}
	if len(fig.Layers) != 1 {
		t.Fatalf("got %d layers", len(fig.Layers))
	}
	layer := fig.Layers[0]
	// The onbekend row is dropped.
	if len(layer.Codes) != 2 || len(layer.Values) != 2 {
		t.Fatalf("codes = %v, values = %v", layer.Codes, layer.Values)
	}
	if layer.Labels[0] != "Binnenstad" {
		t.Errorf("labels = %v", layer.Labels)
	}
}

func TestBuildBubble(t *testing.T) {
	reg, s := testRegistry(t)

	ds := models.NewDataset("aantallen")
	ds.Columns = []string{"BU_CODE", "aantal"}
	ds.Records = []models.Record{
		{Fields: map[string]interface{}{"BU_CODE": "BU07550000", "aantal": 100.0}},
		{Fields: map[string]interface{}{"BU_CODE": "BU07550001", "aantal": 1.0}},
	}
	s.Put(ds)

	report := reg.Save(models.LayerSpec{
		Figure: models.FigureMap, Name: "bollen", Type: models.MapBubble,
		Dataset: "aantallen", DataColumn: "aantal", LabelsColumn: "BU_CODE",
	}, false)
	if !report.OK() {
		t.Fatalf("save failed: %v", report.Errors)
	}

	fig, err := reg.BuildFigure(models.FigureMap)
	if err != nil {
		t.Fatalf("BuildFigure: %v", err)
	}
	b := fig.Layers[0].Bubbles
	if b == nil {
		t.Fatal("no bubble data")
	}
	if len(b.Lats) != 2 {
		t.Fatalf("got %d bubbles", len(b.Lats))
	}
	if b.Sizes[0] != maxBubbleSize {
		t.Errorf("largest bubble = %v, want %v", b.Sizes[0], maxBubbleSize)
	}
	if b.Sizes[1] != minBubbleSize {
		t.Errorf("smallest bubble = %v, want %v", b.Sizes[1], minBubbleSize)
	}
	// Border grows by at most 2 pixels.
	if b.BorderSizes[0] != b.Sizes[0]+2 {
		t.Errorf("border = %v", b.BorderSizes[0])
	}
}

func TestBuildCategorical(t *testing.T) {
	reg, s := testRegistry(t)
	s.Put(regionDataset())

	report := reg.Save(models.LayerSpec{
		Figure: models.FigureMap, Name: "labels", Type: models.MapCategoricalChoro,
		Dataset: "temperaturen", DataColumn: "label", LabelsColumn: "BU_CODE",
	}, false)
	if !report.OK() {
		t.Fatalf("save failed: %v", report.Errors)
	}

	fig, err := reg.BuildFigure(models.FigureMap)
	if err != nil {
		t.Fatalf("BuildFigure: %v", err)
	}
	cats := fig.Layers[0].Categories
	if len(cats) != 2 {
		t.Fatalf("got %d categories: %+v", len(cats), cats)
	}
	if cats[0].Color == cats[1].Color {
		t.Error("categories share a colour")
	}
}

func TestBuildChartSortsByX(t *testing.T) {
	reg, s := testRegistry(t)

	ds := models.NewDataset("reeks")
	ds.Columns = []string{"x", "y"}
	ds.Records = []models.Record{
		{Fields: map[string]interface{}{"x": "b", "y": 2.0}},
		{Fields: map[string]interface{}{"x": "a", "y": 1.0}},
	}
	s.Put(ds)

	report := reg.Save(models.LayerSpec{
		Figure: models.FigureChart1, Name: "lijn", Type: models.ChartScatter,
		Dataset: "reeks", XColumn: "x", YColumn: "y",
	}, false)
	if !report.OK() {
		t.Fatalf("save failed: %v", report.Errors)
	}

	fig, err := reg.BuildFigure(models.FigureChart1)
	if err != nil {
		t.Fatal(err)
	}
	layer := fig.Layers[0]
	if layer.X[0] != "a" || layer.Y[0] != 1.0 {
		t.Errorf("series not sorted by x: %v %v", layer.X, layer.Y)
	}
}

func TestDeleteLayer(t *testing.T) {
	reg, s := testRegistry(t)
	s.Put(regionDataset())

	reg.Save(models.LayerSpec{
		Figure: models.FigureMap, Name: "weg", Type: models.MapChoropleth,
		Dataset: "temperaturen", DataColumn: "temperature", LabelsColumn: "BU_CODE",
	}, false)

	if !reg.Delete(models.FigureMap, "weg") {
		t.Error("Delete returned false")
	}
	if reg.Delete(models.FigureMap, "weg") {
		t.Error("second Delete returned true")
	}
	if len(reg.Layers(models.FigureMap)) != 0 {
		t.Error("layer still present")
	}
}
