package datasource

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	calls atomic.Int32
	err   error
}

func (c *countingStore) FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.FetchViewportLocations(ctx, region, bbox)
}

func testLocations() []types.Location {
	return []types.Location{
		loc("a", "Acme", 40, -100),
		loc("b", "Volt", 40.5, -99.5),
		loc("c", "Volt", 45, -90),
	}
}

func TestMemoryCache(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore(testLocations())}
	c := NewMemoryCache(inner, 8, time.Minute, nil)
	ctx := context.Background()

	bbox := types.BoundingBox{West: -101, South: 39, East: -99, North: 41}
	first, err := c.FetchViewportLocations(ctx, "us", bbox)
	require.NoError(t, err)
	second, err := c.FetchViewportLocations(ctx, "us", bbox)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "b"}, ids(second))
	assert.EqualValues(t, 1, inner.calls.Load())

	_, err = c.FetchViewportLocations(ctx, "us", types.BoundingBox{West: -95, South: 44, East: -85, North: 46})
	require.NoError(t, err)
	_, err = c.FetchViewportLocations(ctx, "de", bbox)
	require.NoError(t, err)
	assert.EqualValues(t, 3, inner.calls.Load())

	all, err := c.FetchRegionLocations(ctx, "us")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryCache_ErrorsNotCached(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore(testLocations()), err: errors.New("boom")}
	c := NewMemoryCache(inner, 0, 0, nil)
	bbox := types.BoundingBox{West: -101, South: 39, East: -99, North: 41}

	_, err := c.FetchViewportLocations(context.Background(), "us", bbox)
	require.Error(t, err)

	inner.err = nil
	locs, err := c.FetchViewportLocations(context.Background(), "us", bbox)
	require.NoError(t, err)
	assert.Len(t, locs, 2)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestMemoryCache_Expires(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore(testLocations())}
	c := NewMemoryCache(inner, 8, 20*time.Millisecond, nil)
	bbox := types.BoundingBox{West: -101, South: 39, East: -99, North: 41}

	_, err := c.FetchViewportLocations(context.Background(), "us", bbox)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.FetchViewportLocations(context.Background(), "us", bbox)
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
}

// Needs a reachable redis; set NETMAP_TEST_REDIS_ADDR to run.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("NETMAP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NETMAP_TEST_REDIS_ADDR not set")
	}
	rc := OpenRedis(addr, "", 0)
	defer rc.Close()

	inner := &countingStore{Store: NewMemoryStore(testLocations())}
	c := NewRedisCache(inner, rc, time.Minute, nil)
	ctx := context.Background()
	bbox := types.BoundingBox{West: -101.123, South: 39, East: -99, North: 41}
	require.NoError(t, rc.Del(ctx, cacheKey("us", bbox)).Err())

	first, err := c.FetchViewportLocations(ctx, "us", bbox)
	require.NoError(t, err)
	second, err := c.FetchViewportLocations(ctx, "us", bbox)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestOpenRedis_EmptyAddr(t *testing.T) {
	assert.Nil(t, OpenRedis("", "", 0))
}
