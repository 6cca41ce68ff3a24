package datasource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		check   func(t *testing.T, s Store)
		wantErr bool
	}{
		{
			name: "sqlite",
			cfg:  Config{Driver: "sqlite", DSN: filepath.Join(dir, "a.db")},
			check: func(t *testing.T, s Store) {
				assert.IsType(t, &SQLStore{}, s)
			},
		},
		{
			name: "sqlite with memory cache",
			cfg:  Config{Driver: "sqlite", DSN: filepath.Join(dir, "b.db"), Cache: "memory"},
			check: func(t *testing.T, s Store) {
				c, ok := s.(*CachedStore)
				require.True(t, ok)
				assert.IsType(t, &SQLStore{}, c.Store)
			},
		},
		{
			name: "snapshot",
			cfg:  Config{Driver: "snapshot", SnapshotDir: dir},
			check: func(t *testing.T, s Store) {
				assert.IsType(t, &SnapshotStore{}, s)
			},
		},
		{
			name: "overpass",
			cfg:  Config{Driver: "overpass"},
			check: func(t *testing.T, s Store) {
				assert.IsType(t, &OverpassStore{}, s)
			},
		},
		{name: "unknown driver", cfg: Config{Driver: "mongo"}, wantErr: true},
		{name: "unknown cache", cfg: Config{Driver: "snapshot", Cache: "memcached"}, wantErr: true},
		{name: "redis without address", cfg: Config{Driver: "snapshot", Cache: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.cfg, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			tt.check(t, s)
		})
	}
}
