package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/regions"
	"github.com/tau-omega/stadsmonitor/internal/repositories/postgres"
)

var importShapesCmd = &cobra.Command{
	Use:   "import-shapes",
	Short: "Loads the CBS region shapefiles into Postgres",
	Long: `import-shapes reads the buurt, wijk and gemeente shapefiles from the
configured shape directory, converts their geometries to WGS84 and
upserts them into the regions table.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := models.LoadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		replace, _ := cmd.Flags().GetBool("replace")
		if err := importShapes(cfg, replace); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func importShapes(cfg *models.Config, replace bool) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("import-shapes needs database_url set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewRegionRepository(pool)
	if err := repo.Init(ctx); err != nil {
		return fmt.Errorf("initialising regions table: %w", err)
	}

	loader := regions.NewLoader(cfg.ShapeDir, cfg.Gemeente)
	for _, level := range []models.RegionLevel{models.Buurt, models.Wijk, models.Gemeente} {
		set, err := loader.LoadLevel(level)
		if err != nil {
			return fmt.Errorf("loading %s shapes: %w", level, err)
		}

		if replace {
			if err := repo.DeleteLevel(ctx, level); err != nil {
				return fmt.Errorf("clearing %s regions: %w", level, err)
			}
		}

		bar := progressbar.Default(int64(len(set.Regions)), fmt.Sprintf("importing %s", level))
		for start := 0; start < len(set.Regions); start += shapeBatchSize {
			end := start + shapeBatchSize
			if end > len(set.Regions) {
				end = len(set.Regions)
			}
			if err := repo.BulkCreate(ctx, level, set.Regions[start:end]); err != nil {
				return fmt.Errorf("importing %s regions: %w", level, err)
			}
			bar.Add(end - start)
		}
		bar.Finish()

		total, err := repo.Count(ctx, level)
		if err != nil {
			return fmt.Errorf("counting %s regions: %w", level, err)
		}
		log.Printf("%s: %d regions in database", level, total)
	}
	return nil
}

const shapeBatchSize = 200

func init() {
	importShapesCmd.Flags().Bool("replace", false, "Clear each level before importing")
	rootCmd.AddCommand(importShapesCmd)
}
