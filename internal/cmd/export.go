package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/netmap/internal/datasource"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write region snapshots from the configured store",
	Long: `Export loads every active location of the given regions from the configured
store and writes one zstd-compressed snapshot per region. The snapshot store
driver serves these files without a database.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringSlice("regions", nil, "Regions to export (default: all)")
	exportCmd.Flags().String("out", "snapshots", "Output directory")
	exportCmd.Flags().Bool("skip-empty", true, "Skip regions without locations")

	mustBind(exportCmd, "export.regions", "regions")
	mustBind(exportCmd, "export.out", "out")
	mustBind(exportCmd, "export.skip_empty", "skip-empty")
}

func runExport(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	regions := viper.GetStringSlice("export.regions")
	if len(regions) == 0 {
		regions = types.RegionCodes()
	}
	outDir := viper.GetString("export.out")
	skipEmpty := viper.GetBool("export.skip_empty")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := storeConfig()
	// Snapshots are read whole; a viewport cache would never be hit.
	cfg.Cache = "none"
	store, err := datasource.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	for _, code := range regions {
		region, err := types.LookupRegion(code)
		if err != nil {
			return err
		}

		start := time.Now()
		locs, err := store.FetchRegionLocations(ctx, region.Code)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && skipEmpty {
				logger.Warn("No source data for region, skipping", "region", region.Code)
				continue
			}
			return fmt.Errorf("failed to load region %s: %w", region.Code, err)
		}
		if len(locs) == 0 && skipEmpty {
			logger.Info("Region has no locations, skipping", "region", region.Code)
			continue
		}

		path, err := datasource.SaveSnapshot(outDir, datasource.Snapshot{
			Region:    region.Code,
			CreatedAt: time.Now().UTC(),
			Locations: locs,
		})
		if err != nil {
			return fmt.Errorf("failed to write snapshot for %s: %w", region.Code, err)
		}
		logger.Info("Snapshot written",
			"region", region.Code,
			"locations", len(locs),
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return nil
}
