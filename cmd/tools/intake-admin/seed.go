package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"service-intake/internal/audit"
	"service-intake/internal/catalog"
	"service-intake/internal/common/database"
)

var (
	seedPath   string
	seedNoES   bool
	seedSchema bool
)

var seedCmd = &cobra.Command{
	Use:   "seed-catalog",
	Short: "Load the catalog seed into PostgreSQL and the search index",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedPath, "file", "", "seed file (defaults to pipeline.catalog_seed_path)")
	seedCmd.Flags().BoolVar(&seedNoES, "skip-index", false, "do not index services in Elasticsearch")
	seedCmd.Flags().BoolVar(&seedSchema, "schema", true, "create the catalog and audit tables first")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	path := seedPath
	if path == "" {
		path = cfg.Pipeline.CatalogSeedPath
	}
	if path == "" {
		return fmt.Errorf("no seed file given and pipeline.catalog_seed_path is empty")
	}
	seed, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	pc := catalog.NewPostgresCatalog(pg.DB, nil, log)
	if seedSchema {
		if err := pc.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := audit.NewPostgresSink(pg.DB).EnsureSchema(ctx); err != nil {
			return err
		}
	}
	if err := pc.Import(ctx, seed); err != nil {
		return err
	}
	log.Info("catalog imported", map[string]interface{}{
		"services":     len(seed.Services),
		"zones":        len(seed.Zones),
		"availability": len(seed.Availability),
	})

	if seedNoES {
		return nil
	}
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return err
	}
	if err := catalog.NewElasticSearcher(es.Client, es.Index).IndexServices(ctx, seed.Services); err != nil {
		return fmt.Errorf("indexing services: %w", err)
	}
	log.Info("services indexed", map[string]interface{}{"index": es.Index, "count": len(seed.Services)})
	return nil
}
