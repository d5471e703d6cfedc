// Package aggregator folds increment records into per-item aggregate counts.
// It stands in for the managed distributed-counter extension: clients only ever
// append records, and this loop is the single writer of the counts.
package aggregator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/prayerwall/internal/logging"
	"github.com/verte-zerg/prayerwall/internal/store"
)

// DefaultInterval is the pause between passes when none is configured.
const DefaultInterval = 2 * time.Second

// Folder folds pending increment records in one transaction.
type Folder interface {
	FoldIncrements(ctx context.Context) ([]store.FoldedItem, error)
}

// Aggregator runs fold passes.
type Aggregator struct {
	folder   Folder
	interval time.Duration
	logger   *zap.Logger
}

// New returns an aggregator folding through folder every interval.
func New(folder Folder, interval time.Duration, logger *zap.Logger) *Aggregator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Aggregator{
		folder:   folder,
		interval: interval,
		logger:   logging.OrNop(logger).Named("aggregator"),
	}
}

// RunOnce performs a single fold pass.
func (a *Aggregator) RunOnce(ctx context.Context) ([]store.FoldedItem, error) {
	folded, err := a.folder.FoldIncrements(ctx)
	if err != nil {
		return nil, err
	}
	if len(folded) == 0 {
		return nil, nil
	}
	records := 0
	for _, item := range folded {
		records += item.Records
		a.logger.Debug("item folded",
			zap.String("item", item.Key),
			zap.Int("records", item.Records),
			zap.Int64("count", item.Count))
	}
	a.logger.Info("fold pass", zap.Int("items", len(folded)), zap.Int("records", records))
	return folded, nil
}

// Run folds until ctx is cancelled. Failed passes are logged and retried on the
// next tick.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		if _, err := a.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("fold pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
