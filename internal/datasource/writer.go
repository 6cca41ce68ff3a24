package datasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/netmap/internal/types"
)

// DefaultBatchSize is the number of locations to buffer before flushing to the database.
const DefaultBatchSize = 500

// Writer upserts locations into a SQLStore in batched transactions.
type Writer struct {
	store     *SQLStore
	batch     []types.Location
	batchSize int
	written   int
	mu        sync.Mutex
}

// NewWriter creates a batched writer. batchSize < 1 uses DefaultBatchSize.
func (s *SQLStore) NewWriter(batchSize int) *Writer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Writer{
		store:     s,
		batch:     make([]types.Location, 0, batchSize),
		batchSize: batchSize,
	}
}

// Write validates a location and adds it to the batch. When the batch is full,
// it is flushed.
func (w *Writer) Write(ctx context.Context, l types.Location) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("refusing to write location: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch = append(w.batch, l)
	if len(w.batch) >= w.batchSize {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush writes any buffered locations to the database.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Written returns the number of locations committed so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, w.store.rebind(`INSERT INTO locations (`+locationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			network = excluded.network, subnetwork = excluded.subnetwork, city = excluded.city,
			zip = excluded.zip, county = excluded.county, region = excluded.region,
			lat = excluded.lat, lng = excluded.lng, active = excluded.active, name = excluded.name,
			phone = excluded.phone, description = excluded.description, industry = excluded.industry`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range w.batch {
		if _, err := stmt.ExecContext(ctx, l.ID, string(l.Network), l.Subnetwork, l.City, l.Zip, l.County, l.Region,
			l.Lat, l.Lng, l.Active, l.Name, l.Phone, l.Description, l.Industry); err != nil {
			return fmt.Errorf("failed to insert location %q: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.written += len(w.batch)
	w.batch = w.batch[:0]
	return nil
}

// Close flushes any remaining locations. The store stays open.
func (w *Writer) Close(ctx context.Context) error {
	return w.Flush(ctx)
}
