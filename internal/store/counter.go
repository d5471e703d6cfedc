package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/prayerwall/internal/model"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 8

// Counter appends increment records to an item's log, spreading them over shards.
// It never reads the log back.
type Counter struct {
	store  *Store
	shards int
	pick   func(n int) int
}

// NewCounter returns a Counter writing into st. shards <= 0 selects DefaultShards.
func NewCounter(st *Store, shards int) *Counter {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &Counter{store: st, shards: shards, pick: rand.IntN}
}

// Dispatch appends one increment record for itemKey.
func (c *Counter) Dispatch(ctx context.Context, itemKey string, delta int) error {
	_, err := c.store.AppendIncrement(ctx, model.IncrementRecord{
		ItemKey: itemKey,
		Delta:   delta,
		Shard:   c.pick(c.shards),
	})
	return err
}

// AppendIncrement writes a single increment record.
func (s *Store) AppendIncrement(ctx context.Context, rec model.IncrementRecord) (model.IncrementRecord, error) {
	if rec.Delta != 1 && rec.Delta != -1 {
		return model.IncrementRecord{}, fmt.Errorf("invalid delta %d", rec.Delta)
	}
	if rec.ItemKey == "" {
		return model.IncrementRecord{}, fmt.Errorf("item key is empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prayer_increments (id, item_key, delta, shard, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ItemKey,
		rec.Delta,
		rec.Shard,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.IncrementRecord{}, fmt.Errorf("failed to append increment: %w", err)
	}
	return rec, nil
}

// FoldedItem reports the new aggregate of an item touched by a fold.
type FoldedItem struct {
	Key     string
	Records int
	Count   int64
}

// FoldIncrements folds every unprocessed increment record into shard totals and
// recomputes the aggregate of each touched item, all in one transaction.
// Records for unknown items are consumed without effect on any aggregate.
func (s *Store) FoldIncrements(ctx context.Context) (folded []FoldedItem, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	var watermark int64
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM prayer_increments WHERE processed = 0`).Scan(&watermark); err != nil {
		return nil, err
	}
	if watermark == 0 {
		err = tx.Commit()
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO prayer_shards (item_key, shard, total)
		 SELECT item_key, shard, SUM(delta) FROM prayer_increments
		 WHERE processed = 0 AND seq <= ?
		 GROUP BY item_key, shard
		 ON CONFLICT (item_key, shard) DO UPDATE SET total = total + excluded.total`,
		watermark); err != nil {
		return nil, fmt.Errorf("failed to fold shards: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT item_key, COUNT(*) FROM prayer_increments
		 WHERE processed = 0 AND seq <= ?
		 GROUP BY item_key
		 ORDER BY item_key`, watermark)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var item FoldedItem
		if err = rows.Scan(&item.Key, &item.Records); err != nil {
			_ = rows.Close()
			return nil, err
		}
		folded = append(folded, item)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE prayer_increments SET processed = 1 WHERE processed = 0 AND seq <= ?`, watermark); err != nil {
		return nil, err
	}

	for i := range folded {
		if err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(total), 0) FROM prayer_shards WHERE item_key = ?`,
			folded[i].Key).Scan(&folded[i].Count); err != nil {
			return nil, err
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE prayers SET count = ?, aggregated = 1 WHERE key = ?`,
			folded[i].Count, folded[i].Key); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return folded, nil
}

// PendingIncrements counts records not yet folded.
func (s *Store) PendingIncrements(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prayer_increments WHERE processed = 0`).Scan(&n)
	return n, err
}
