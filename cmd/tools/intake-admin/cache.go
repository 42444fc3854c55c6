package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"service-intake/internal/catalog"
	"service-intake/internal/common/database"
)

var (
	invalidateServices []string
	invalidateZones    []string
	invalidatePattern  string
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate-cache",
	Short: "Drop cached catalog entries after an out-of-band catalog change",
	Long: `Removes catalog entries from the Redis cache. Without flags every
cached catalog entry is dropped.`,
	RunE: runInvalidate,
}

func init() {
	invalidateCmd.Flags().StringSliceVar(&invalidateServices, "service", nil, "service codes to drop")
	invalidateCmd.Flags().StringSliceVar(&invalidateZones, "zone", nil, "zone codes to drop")
	invalidateCmd.Flags().StringVar(&invalidatePattern, "pattern", "", "glob over catalog cache keys, e.g. 'zone:*'")
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	cache := catalog.NewCachedCatalog(nil, rdb.GetClient(), cfg.Pipeline.CatalogCacheTTLDuration(), log)

	var keys []string
	for _, code := range invalidateServices {
		keys = append(keys, catalog.ServiceKey(code))
	}
	for _, code := range invalidateZones {
		keys = append(keys, catalog.ZoneKey(code))
	}

	if len(keys) > 0 {
		if err := cache.Invalidate(ctx, keys...); err != nil {
			return err
		}
		fmt.Printf("dropped %d keys\n", len(keys))
	}
	if len(keys) == 0 || invalidatePattern != "" {
		pattern := invalidatePattern
		if pattern == "" {
			pattern = "*"
		}
		n, err := cache.InvalidatePattern(ctx, pattern)
		if err != nil {
			return err
		}
		fmt.Printf("dropped %d keys matching %s\n", n, pattern)
	}
	return nil
}
