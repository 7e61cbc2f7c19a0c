package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tau-omega/stadsmonitor/internal/aggregate"
	"github.com/tau-omega/stadsmonitor/internal/export"
	"github.com/tau-omega/stadsmonitor/internal/ingest"
	"github.com/tau-omega/stadsmonitor/internal/models"
)

type datasetSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Columns    []string  `json:"columns"`
	ReadType   string    `json:"read_type"`
	Aggregated bool      `json:"aggregated"`
	SourceURL  string    `json:"source_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	Records    int       `json:"records"`
	CreatedAt  time.Time `json:"created_at"`
}

func summarize(ds *models.Dataset) datasetSummary {
	return datasetSummary{
		ID:         ds.ID,
		Name:       ds.Name,
		Columns:    ds.Columns,
		ReadType:   ds.ReadType,
		Aggregated: ds.Aggregated,
		SourceURL:  ds.SourceURL,
		Error:      ds.Err,
		Records:    len(ds.Records),
		CreatedAt:  ds.CreatedAt,
	}
}

// persist mirrors a dataset to the database when one is configured.
func (s *Server) persist(ctx context.Context, ds *models.Dataset) {
	if s.datasets == nil {
		return
	}
	if err := s.datasets.Save(ctx, ds); err != nil {
		log.Printf("persisting dataset %q: %v", ds.Name, err)
	}
}

func (s *Server) loadMeetjestad(c *gin.Context) {
	var req struct {
		Level string `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	set, err := s.regions.Load(req.Level)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ds, err := ingest.LoadSensorDataset(c.Request.Context(), s.source, set, s.cfg.MeetjestadWindow)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	s.store.SetRealtime(ds)
	if s.refresher != nil {
		s.refresher.Enable(set.Level)
	}
	s.persist(c.Request.Context(), ds)

	c.JSON(http.StatusOK, summarize(ds))
}

func (s *Server) loadDataplatform(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ds, err := ingest.LoadDataplatform(c.Request.Context(), http.DefaultClient, req.Name, req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.store.Put(ds)
	s.persist(c.Request.Context(), ds)

	c.JSON(http.StatusOK, summarize(ds))
}

func (s *Server) uploadDataset(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	defer file.Close()

	opts := ingest.ReadOptions{
		Name:           c.PostForm("name"),
		ReadType:       c.PostForm("read_type"),
		Separator:      c.PostForm("separator"),
		LatColumn:      c.PostForm("lat_column"),
		LonColumn:      c.PostForm("lon_column"),
		CodeColumn:     c.PostForm("code_column"),
		GeometryColumn: c.PostForm("geometry_column"),
	}
	if h := c.PostForm("header_row"); h != "" {
		opts.HeaderRow, _ = strconv.Atoi(h)
	}

	ds, warnings, err := ingest.ReadFile(header.Filename, file, opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	set, err := s.shapesFor(ds.ReadType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	geoWarnings, err := ingest.ApplyGeometry(ds, opts, set)
	if err != nil {
		// Geometry failures stay on the dataset so the client can
		// inspect and fix the options.
		ds.Err = err.Error()
	}
	warnings = append(warnings, geoWarnings...)

	name := s.store.Put(ds)
	s.persist(c.Request.Context(), ds)

	resp := gin.H{"dataset": summarize(ds), "name": name}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.JSON(http.StatusOK, resp)
}

// shapesFor loads the region set a read type joins against, nil for
// read types that need none.
func (s *Server) shapesFor(readType string) (*models.RegionSet, error) {
	switch readType {
	case string(models.Buurt), string(models.Wijk), string(models.Gemeente):
		level, _ := models.ParseRegionLevel(readType)
		return s.regions.LoadLevel(level)
	}
	return nil, nil
}

func (s *Server) uploadOptions(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	defer file.Close()

	preview, err := ingest.Preview(header.Filename, file, s.cfg.MaxOptionRows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (s *Server) aggregateDataset(c *gin.Context) {
	var req struct {
		Level       string   `json:"level"`
		Method      string   `json:"method"`
		ValueColumn []string `json:"value_columns"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ds, ok := s.store.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}

	set, err := s.regions.Load(req.Level)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Work on a copy: the stored dataset is read concurrently by
	// other handlers and the layer registry.
	ds = ds.Clone()
	if !ds.Column(set.Level.CodeColumn()) {
		aggregate.AssignRegions(ds, set)
	}
	out, err := aggregate.Group(ds, set, req.Method, req.ValueColumn)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.store.Put(out)
	s.persist(c.Request.Context(), out)
	c.JSON(http.StatusOK, summarize(out))
}

func (s *Server) convertTypes(c *gin.Context) {
	var req struct {
		Types map[string]string `json:"types" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ds, ok := s.store.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}

	// Convert a copy and swap it in, so concurrent readers never see
	// the field maps change under them.
	ds = ds.Clone()
	warnings := ingest.ConvertTypes(ds, req.Types)
	s.store.Put(ds)
	s.persist(c.Request.Context(), ds)

	resp := gin.H{"dataset": summarize(ds)}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listDatasets(c *gin.Context) {
	datasets := s.store.List()
	out := make([]datasetSummary, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, summarize(ds))
	}
	c.JSON(http.StatusOK, gin.H{"datasets": out})
}

func (s *Server) getDataset(c *gin.Context) {
	ds, ok := s.store.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}

	n := s.cfg.PreviewRows
	if n <= 0 {
		n = 10
	}
	rows := make([]map[string]interface{}, 0, n)
	for i, rec := range ds.Records {
		if i >= n {
			break
		}
		rows = append(rows, rec.Fields)
	}

	c.JSON(http.StatusOK, gin.H{
		"dataset": summarize(ds),
		"rows":    rows,
	})
}

func (s *Server) deleteDataset(c *gin.Context) {
	name := c.Param("name")
	if !s.store.Delete(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}
	if s.datasets != nil {
		if err := s.datasets.Delete(c.Request.Context(), name); err != nil {
			log.Printf("deleting dataset %q from database: %v", name, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

func (s *Server) exportDataset(c *gin.Context) {
	ds, ok := s.store.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}

	format := c.DefaultQuery("format", export.FormatCSV)
	data, contentType, err := export.Export(ds, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("deliver") == "true" {
		dest, err := export.Deliver(s.cfg, ds.Name, format, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": dest})
		return
	}

	filename := fmt.Sprintf("%s.%s", ds.Name, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) getRegions(c *gin.Context) {
	set, err := s.regions.Load(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, set.FeatureCollection())
}

func (s *Server) saveLayer(c *gin.Context) {
	var spec models.LayerSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	spec.Figure = c.Param("figure")

	replace := c.Query("replace") == "true"
	report := s.layers.Save(spec, replace)

	status := http.StatusOK
	if !report.OK() {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"saved": report.OK(), "report": report})
}

func (s *Server) deleteLayer(c *gin.Context) {
	figure, layer := c.Param("figure"), c.Param("layer")
	if !s.layers.Delete(figure, layer) {
		c.JSON(http.StatusNotFound, gin.H{"error": "layer not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": layer})
}

func (s *Server) getFigure(c *gin.Context) {
	fig, err := s.layers.BuildFigure(c.Param("figure"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fig)
}

func (s *Server) getReport(c *gin.Context) {
	c.JSON(http.StatusOK, s.layers.Report(c.Param("figure")))
}
