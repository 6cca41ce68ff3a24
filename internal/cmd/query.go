package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/netmap/internal/datasource"
	"github.com/MeKo-Tech/netmap/internal/filter"
	"github.com/MeKo-Tech/netmap/internal/geojson"
	"github.com/MeKo-Tech/netmap/internal/mapstate"
	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print the renderables of one viewport as GeoJSON",
	Long: `Query loads a region, applies the given filters and prints what the map would
draw for one viewport. With --counts only the filter counts and options are printed.`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().String("region", "us", "Region code")
	queryCmd.Flags().String("bbox", "", "Viewport: west,south,east,north (default: region bounds)")
	queryCmd.Flags().Float64P("zoom", "z", -1, "Zoom level (default: region default zoom)")
	queryCmd.Flags().String("networks", "", "Comma separated networks to show (default: all)")
	queryCmd.Flags().StringSlice("city", nil, "Restrict to cities")
	queryCmd.Flags().StringSlice("zip", nil, "Restrict to zip codes")
	queryCmd.Flags().StringSlice("county", nil, "Restrict to counties")
	queryCmd.Flags().String("render-mode", string(mapstate.RenderClustered), "Render mode (clustered, individual)")
	queryCmd.Flags().Bool("counts", false, "Print counts and filter options instead of GeoJSON")
	queryCmd.Flags().Bool("pretty", true, "Indent output")
	queryCmd.Flags().Duration("timeout", time.Minute, "Overall timeout")

	for _, name := range []string{"region", "bbox", "zoom", "networks", "city", "zip", "county", "render-mode", "counts", "pretty", "timeout"} {
		mustBind(queryCmd, "query."+strings.ReplaceAll(name, "-", "_"), name)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	region, err := types.LookupRegion(viper.GetString("query.region"))
	if err != nil {
		return err
	}
	v, err := queryViewport(region, viper.GetString("query.bbox"), viper.GetFloat64("query.zoom"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("query.timeout"))
	defer cancel()

	store, err := datasource.Open(ctx, storeConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	cfg := engineConfig()
	cfg.Viewport.Debounce = 0
	sy, err := mapstate.New(ctx, cfg, region, store, nil, filter.ParseNetworks(viper.GetString("query.networks")))
	if err != nil {
		return err
	}
	defer sy.Close()

	for _, c := range viper.GetStringSlice("query.city") {
		sy.ToggleCity(c)
	}
	for _, z := range viper.GetStringSlice("query.zip") {
		sy.ToggleZip(z)
	}
	for _, c := range viper.GetStringSlice("query.county") {
		sy.ToggleCounty(c)
	}
	if err := sy.SetRenderMode(mapstate.RenderMode(viper.GetString("query.render_mode"))); err != nil {
		return err
	}

	if err := sy.OnViewportChanged(v); err != nil {
		return err
	}
	if err := waitForViewport(ctx, sy); err != nil {
		return err
	}

	pretty := viper.GetBool("query.pretty")
	if viper.GetBool("query.counts") {
		return printJSON(struct {
			Counts  filter.Counts  `json:"counts"`
			Options filter.Options `json:"options"`
		}{sy.Counts(), sy.FilterOptions()}, pretty)
	}

	rend, err := sy.Renderables(ctx, v)
	if err != nil {
		return err
	}
	data, err := geojson.Marshal(geojson.FromRenderables(rend), pretty)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

// waitForViewport blocks until a viewport fetch issued for the current view has
// settled. Notices from a failed fetch are logged; the previous data is used.
func waitForViewport(ctx context.Context, sy *mapstate.Synchronizer) error {
	sy.Flush()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := sy.Status()
		if !st.Loader.Fetching {
			if st.Notice != "" {
				logger.Warn("Viewport fetch failed", "notice", st.Notice)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("viewport fetch did not finish: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func queryViewport(region types.Region, bbox string, zoom float64) (types.Viewport, error) {
	v := types.Viewport{BoundingBox: region.Bounds, Zoom: float64(region.DefaultView().Zoom)}
	if zoom >= 0 {
		v.Zoom = zoom
	}
	if bbox != "" {
		b, err := parseBBox(bbox)
		if err != nil {
			return types.Viewport{}, fmt.Errorf("invalid bbox: %w", err)
		}
		v.BoundingBox = b
	}
	return v, v.Validate()
}

// parseBBox parses and validates "west,south,east,north".
func parseBBox(s string) (types.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.BoundingBox{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.BoundingBox{}, fmt.Errorf("invalid value %q: %w", p, err)
		}
		vals[i] = v
	}
	b := types.BoundingBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	return b, b.Validate()
}

func printJSON(v any, pretty bool) error {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
