package cmd

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/spf13/viper"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.BoundingBox
		wantErr bool
	}{
		{
			name:  "valid bbox",
			input: "-88.0,41.6,-87.5,42.1",
			want:  types.BoundingBox{West: -88.0, South: 41.6, East: -87.5, North: 42.1},
		},
		{
			name:  "valid bbox with spaces",
			input: "9.7, 52.3, 9.9, 52.4",
			want:  types.BoundingBox{West: 9.7, South: 52.3, East: 9.9, North: 52.4},
		},
		{
			name:    "too few values",
			input:   "9.7,52.3,9.9",
			wantErr: true,
		},
		{
			name:    "too many values",
			input:   "9.7,52.3,9.9,52.4,10.0",
			wantErr: true,
		},
		{
			name:    "invalid number",
			input:   "abc,52.3,9.9,52.4",
			wantErr: true,
		},
		{
			name:    "crosses antimeridian",
			input:   "170,-20,-170,20",
			wantErr: true,
		},
		{
			name:    "south >= north",
			input:   "9.7,52.5,9.9,52.4",
			wantErr: true,
		},
		{
			name:    "out of range",
			input:   "9.7,52.3,9.9,95",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBBox(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseBBox(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseBBox(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.want {
				t.Errorf("parseBBox(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestQueryViewport(t *testing.T) {
	us, err := types.LookupRegion("us")
	if err != nil {
		t.Fatal(err)
	}

	v, err := queryViewport(us, "", -1)
	if err != nil {
		t.Fatalf("queryViewport defaults: %v", err)
	}
	if v.BoundingBox != us.Bounds {
		t.Errorf("bbox = %v, want region bounds %v", v.BoundingBox, us.Bounds)
	}
	if v.Zoom != float64(us.DefaultView().Zoom) {
		t.Errorf("zoom = %v, want %d", v.Zoom, us.DefaultView().Zoom)
	}

	v, err = queryViewport(us, "-88,41.6,-87.5,42.1", 11)
	if err != nil {
		t.Fatalf("queryViewport: %v", err)
	}
	if v.Zoom != 11 || v.West != -88 {
		t.Errorf("queryViewport = %+v", v)
	}

	if _, err := queryViewport(us, "-87,41,-88,42", 11); err == nil {
		t.Error("expected error for inverted bbox")
	}
}

func TestEngineConfigFromViper(t *testing.T) {
	keys := []string{"engine.zoom_threshold", "engine.debounce", "engine.cluster_radius", "engine.max_zoom"}
	old := make(map[string]any, len(keys))
	for _, k := range keys {
		old[k] = viper.Get(k)
	}
	t.Cleanup(func() {
		for k, v := range old {
			viper.Set(k, v)
		}
	})

	viper.Set("engine.zoom_threshold", 10.0)
	viper.Set("engine.debounce", "250ms")
	viper.Set("engine.cluster_radius", 40.0)
	viper.Set("engine.max_zoom", 16)

	cfg := engineConfig()
	if cfg.Viewport.ZoomThreshold != 10 {
		t.Errorf("ZoomThreshold = %v, want 10", cfg.Viewport.ZoomThreshold)
	}
	if cfg.Viewport.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", cfg.Viewport.Debounce)
	}
	if cfg.Cluster.Radius != 40 || cfg.Cluster.MaxZoom != 16 {
		t.Errorf("Cluster = %+v", cfg.Cluster)
	}
}

func TestEnvKeyReplacer(t *testing.T) {
	if got := envKeyReplacer.Replace("store.snapshot_dir"); got != "store_snapshot_dir" {
		t.Errorf("Replace = %q", got)
	}
	if got := envKeyReplacer.Replace("cache.redis-addr"); got != "cache_redis_addr" {
		t.Errorf("Replace = %q", got)
	}
}
