package datasource

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	snap := Snapshot{
		Region:    "us",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Locations: []types.Location{
			loc("a", "Acme", 40, -100),
			{ID: "b", Network: "Volt", Subnetwork: "Volt Plus", City: "Austin", Region: "us", Lat: 30.27, Lng: -97.74, Active: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap))

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.Region, got.Region)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, snap.Locations, got.Locations)
}

func TestReadSnapshot_Garbage(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte("not zstd")))
	require.Error(t, err)
}

func TestSnapshotStore(t *testing.T) {
	dir := t.TempDir()
	inactive := loc("c", "Acme", 40.2, -100.2)
	inactive.Active = false

	path, err := SaveSnapshot(dir, Snapshot{
		Region:    "us",
		CreatedAt: time.Now(),
		Locations: []types.Location{loc("a", "Acme", 40, -100), loc("b", "Volt", 45, -90), inactive},
	})
	require.NoError(t, err)
	assert.Equal(t, SnapshotPath(dir, "US"), path)

	s := NewSnapshotStore(dir, nil)
	defer s.Close()

	locs, err := s.FetchRegionLocations(context.Background(), "us")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(locs))

	// Served from memory once decoded.
	require.NoError(t, os.Remove(path))
	vp, err := s.FetchViewportLocations(context.Background(), "us", types.BoundingBox{West: -101, South: 39, East: -99, North: 41})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(vp))

	_, err = s.FetchRegionLocations(context.Background(), "de")
	require.ErrorIs(t, err, os.ErrNotExist)
}
