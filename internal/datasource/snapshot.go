package datasource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/netmap/internal/types"
	"github.com/klauspost/compress/zstd"
)

// SnapshotExt is the file extension of region snapshots.
const SnapshotExt = ".json.zst"

// Snapshot is a region dataset frozen to disk.
type Snapshot struct {
	Region    string           `json:"region"`
	CreatedAt time.Time        `json:"created_at"`
	Locations []types.Location `json:"locations"`
}

// WriteSnapshot encodes a snapshot as zstd-compressed JSON.
func WriteSnapshot(w io.Writer, snap Snapshot) error {
	bufWriter := bufio.NewWriterSize(w, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var snap Snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotPath returns the snapshot file of a region inside dir.
func SnapshotPath(dir, region string) string {
	return filepath.Join(dir, strings.ToLower(region)+SnapshotExt)
}

// SaveSnapshot writes the snapshot of a region into dir.
func SaveSnapshot(dir string, snap Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	path := SnapshotPath(dir, snap.Region)
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteSnapshot(file, snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return path, nil
}

// SnapshotStore serves regions from snapshot files in a directory. Each file is
// decoded once and kept in memory.
type SnapshotStore struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	loaded map[string][]types.Location
}

// NewSnapshotStore creates a store over dir.
func NewSnapshotStore(dir string, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{dir: dir, logger: logger.With("store", "snapshot"), loaded: make(map[string][]types.Location)}
}

func (s *SnapshotStore) region(region string) ([]types.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if locs, ok := s.loaded[region]; ok {
		return locs, nil
	}

	path := SnapshotPath(s.dir, region)
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no snapshot for region %q at %s: %w", region, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	snap, err := ReadSnapshot(file)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	locs := sanitize(snap.Locations, s.logger)
	s.loaded[region] = locs
	s.logger.Info("Loaded snapshot", "region", region, "locations", len(locs), "created_at", snap.CreatedAt)
	return locs, nil
}

// FetchRegionLocations returns the snapshot of a region.
func (s *SnapshotStore) FetchRegionLocations(ctx context.Context, region string) ([]types.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.region(region)
}

// FetchViewportLocations filters the snapshot of a region to bbox.
func (s *SnapshotStore) FetchViewportLocations(ctx context.Context, region string, bbox types.BoundingBox) ([]types.Location, error) {
	locs, err := s.FetchRegionLocations(ctx, region)
	if err != nil {
		return nil, err
	}
	return inBBox(locs, bbox), nil
}

// Close drops the decoded snapshots.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	s.loaded = make(map[string][]types.Location)
	s.mu.Unlock()
	return nil
}
