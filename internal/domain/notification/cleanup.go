package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// CleanupConfig holds configuration for the retention purge.
type CleanupConfig struct {
	RetentionDays int // keep notifications for N days (default: 90)
	BatchSize     int // notifications deleted per transaction
}

func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		RetentionDays: 90,
		BatchSize:     500,
	}
}

// CleanupService removes old, fully read notifications. It is an operator
// job and never runs inside request handling.
type CleanupService struct {
	store *Store
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewCleanupService(store *Store, log logrus.FieldLogger) *CleanupService {
	return &CleanupService{store: store, log: log, now: store.now}
}

// Run deletes batches until nothing older than the retention window is left.
// Notifications with at least one unread row are kept.
func (c *CleanupService) Run(ctx context.Context, cfg CleanupConfig) (int64, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultCleanupConfig().RetentionDays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultCleanupConfig().BatchSize
	}

	startTime := time.Now()
	cutoff := c.now().AddDate(0, 0, -cfg.RetentionDays)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := c.store.PurgeRead(ctx, cutoff, cfg.BatchSize)
		if err != nil {
			c.log.WithError(err).WithField("deleted", total).Error("notification cleanup failed")
			return total, err
		}
		total += n
		if n < int64(cfg.BatchSize) {
			break
		}
	}

	c.log.WithFields(logrus.Fields{
		"deleted":  total,
		"cutoff":   cutoff,
		"duration": time.Since(startTime).String(),
	}).Info("notification cleanup completed")
	return total, nil
}
