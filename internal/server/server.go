// Package server exposes the dashboard backend over HTTP.
package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tau-omega/stadsmonitor/internal/ingest"
	"github.com/tau-omega/stadsmonitor/internal/layers"
	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/refresher"
	"github.com/tau-omega/stadsmonitor/internal/regions"
	"github.com/tau-omega/stadsmonitor/internal/repositories"
	"github.com/tau-omega/stadsmonitor/internal/store"
)

type Server struct {
	cfg       *models.Config
	store     *store.Store
	layers    *layers.Registry
	regions   *regions.Loader
	source    ingest.SensorSource
	refresher *refresher.Refresher
	datasets  repositories.DatasetRepository
}

// Options carries the optional collaborators of a server.
type Options struct {
	Refresher *refresher.Refresher
	Datasets  repositories.DatasetRepository
}

func New(cfg *models.Config, s *store.Store, reg *layers.Registry, loader *regions.Loader, source ingest.SensorSource, opts Options) *Server {
	return &Server{
		cfg:       cfg,
		store:     s,
		layers:    reg,
		regions:   loader,
		source:    source,
		refresher: opts.Refresher,
		datasets:  opts.Datasets,
	}
}

// Cors allows the dashboard frontend to call from another origin.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method

		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, AccessToken, X-CSRF-Token, Authorization, Token")
		c.Header("Access-Control-Allow-Methods", "POST, GET, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")
		c.Header("Access-Control-Allow-Credentials", "true")

		if method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
		}
		c.Next()
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.Use(Cors())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	{
		api.POST("/datasets/meetjestad", s.loadMeetjestad)
		api.POST("/datasets/dataplatform", s.loadDataplatform)
		api.POST("/datasets/upload", s.uploadDataset)
		api.POST("/datasets/upload/options", s.uploadOptions)
		api.POST("/datasets/:name/aggregate", s.aggregateDataset)
		api.POST("/datasets/:name/types", s.convertTypes)
		api.GET("/datasets", s.listDatasets)
		api.GET("/datasets/:name", s.getDataset)
		api.GET("/datasets/:name/export", s.exportDataset)
		api.DELETE("/datasets/:name", s.deleteDataset)

		api.GET("/regions/:level", s.getRegions)

		api.PUT("/figures/:figure/layers", s.saveLayer)
		api.DELETE("/figures/:figure/layers/:layer", s.deleteLayer)
		api.GET("/figures/:figure", s.getFigure)
		api.GET("/figures/:figure/report", s.getReport)
	}

	return r
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	log.Printf("listening on %s", s.cfg.ListenAddr)
	return s.Router().Run(s.cfg.ListenAddr)
}
