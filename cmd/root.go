package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tau-omega/stadsmonitor/internal/export"
	"github.com/tau-omega/stadsmonitor/internal/factories"
	"github.com/tau-omega/stadsmonitor/internal/ingest"
	"github.com/tau-omega/stadsmonitor/internal/layers"
	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/refresher"
	"github.com/tau-omega/stadsmonitor/internal/regions"
	"github.com/tau-omega/stadsmonitor/internal/repositories/postgres"
	"github.com/tau-omega/stadsmonitor/internal/server"
	"github.com/tau-omega/stadsmonitor/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stadsmonitor",
	Short: "Serves an open data dashboard backend for Dutch municipalities",
	Long: `stadsmonitor combines Meet je stad sensor readings, CKAN open data
and uploaded tables into datasets aggregated over CBS buurt, wijk and
gemeente regions, and serves them as map and chart figures over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := models.LoadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		if err := serve(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func serve(cfg *models.Config) error {
	ctx := context.Background()

	s := store.New()
	loader := regions.NewLoader(cfg.ShapeDir, cfg.Gemeente)

	opts := server.Options{}
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		repo := postgres.NewDatasetRepository(pool)
		if err := repo.Init(ctx); err != nil {
			return fmt.Errorf("initialising dataset table: %w", err)
		}
		if err := restoreDatasets(ctx, repo, s); err != nil {
			return err
		}
		opts.Datasets = repo

		regionRepo := postgres.NewRegionRepository(pool)
		if err := regionRepo.Init(ctx); err != nil {
			return fmt.Errorf("initialising regions table: %w", err)
		}
		loader.SetRepository(regionRepo)
	}

	source, err := sensorSource(cfg, loader)
	if err != nil {
		return err
	}

	sink, err := export.NewSink(cfg)
	if err != nil {
		return fmt.Errorf("creating sink: %w", err)
	}
	defer sink.Close()

	ref := refresher.New(source, s, loader, sink, cfg)
	if cfg.RefreshEnabled {
		go ref.Run(ctx)
	}
	opts.Refresher = ref

	reg := layers.NewRegistry(s, loader)

	return server.New(cfg, s, reg, loader, source, opts).Run()
}

// sensorSource picks the sensor backend: generated readings in demo
// mode, the Meet je stad API otherwise.
func sensorSource(cfg *models.Config, loader *regions.Loader) (ingest.SensorSource, error) {
	if !cfg.DemoMode {
		return ingest.NewMeetjestadClient(cfg.MeetjestadBaseURL), nil
	}
	set, err := loader.LoadLevel(models.Buurt)
	if err != nil {
		return nil, fmt.Errorf("loading regions for demo sensors: %w", err)
	}
	log.Printf("demo mode: generating readings for %d sensors", cfg.DemoSensors)
	return factories.NewSensorFactory(set, cfg.DemoSensors, int64(cfg.Seed)), nil
}

func restoreDatasets(ctx context.Context, repo *postgres.DatasetRepository, s *store.Store) error {
	datasets, err := repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("restoring datasets: %w", err)
	}
	for _, ds := range datasets {
		s.Put(ds)
	}
	if len(datasets) > 0 {
		log.Printf("restored %d datasets from database", len(datasets))
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stadsmonitor.yaml)")

	rootCmd.Flags().String("listen-addr", ":8080", "Address the HTTP server listens on")
	rootCmd.Flags().String("gemeente", "Tilburg", "Gemeente the dashboard covers (use All for the whole country)")
	rootCmd.Flags().String("shape-dir", "datasets/shape_data", "Directory holding the CBS region shapefiles")
	rootCmd.Flags().String("meetjestad-base-url", "https://meetjestad.net/data", "Meet je stad API endpoint")
	rootCmd.Flags().Duration("meetjestad-window", time.Hour, "Lookback window for sensor readings")
	rootCmd.Flags().Duration("refresh-interval", 15*time.Minute, "How often the realtime dataset refreshes")
	rootCmd.Flags().Bool("refresh-enabled", true, "Refresh the realtime dataset in the background")
	rootCmd.Flags().Bool("kafka-enabled", false, "Publish sensor readings to Kafka")
	rootCmd.Flags().String("kafka-broker-list", "localhost:9092", "Kafka broker list")
	rootCmd.Flags().String("kafka-topic", "sensor-readings", "Kafka topic for sensor readings")
	rootCmd.Flags().String("database-url", "", "Postgres connection string (datasets stay in memory when empty)")
	rootCmd.Flags().String("output-folder", "output", "Folder for exported files")
	rootCmd.Flags().Bool("demo-mode", false, "Generate sensor readings instead of calling Meet je stad")
	rootCmd.Flags().Int("demo-sensors", 25, "Number of sensors generated in demo mode")
	rootCmd.Flags().Int("seed", 42, "Random seed for demo mode")

	viper.BindPFlags(rootCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".stadsmonitor")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
