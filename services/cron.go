package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"brand-deck-platform/internal/config"
)

// CronService schedules the recurring jobs: the quota alert sweep, the
// stale deck sweep, the storage cleanup and, when configured, the site
// snapshot refresh.
type CronService struct {
	config         *config.Config
	scheduler      *gocron.Scheduler
	alertEvaluator *AlertEvaluator
	snapshotSweep  func(context.Context) error
	storageCleanup func(context.Context) error
	deckSweep      func(context.Context) error
}

func NewCronService(cfg *config.Config, alertEvaluator *AlertEvaluator) *CronService {
	return &CronService{
		config:         cfg,
		scheduler:      gocron.NewScheduler(time.UTC),
		alertEvaluator: alertEvaluator,
	}
}

// SetSnapshotSweep registers the snapshot refresh job body. It only runs
// when SNAPSHOT_REFRESH_CRON is configured.
func (c *CronService) SetSnapshotSweep(fn func(context.Context) error) {
	c.snapshotSweep = fn
}

// SetStorageCleanup registers the job that removes files left behind by
// soft-deleted media records and interrupted uploads.
func (c *CronService) SetStorageCleanup(fn func(context.Context) error) {
	c.storageCleanup = fn
}

// SetDeckSweep registers the job that fails deck builds abandoned by a
// dead worker.
func (c *CronService) SetDeckSweep(fn func(context.Context) error) {
	c.deckSweep = fn
}

// Start registers the jobs and runs the scheduler in the background.
func (c *CronService) Start() error {
	if c.alertEvaluator != nil && c.config.QuotaAlertCron != "" {
		_, err := c.scheduler.Cron(c.config.QuotaAlertCron).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := c.alertEvaluator.ScanAllBrands(ctx); err != nil {
				log.Printf("Quota alert sweep failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
		log.Printf("✅ Quota alert sweep scheduled (%s)", c.config.QuotaAlertCron)
	}

	if c.snapshotSweep != nil && c.config.SnapshotRefresh != "" {
		_, err := c.scheduler.Cron(c.config.SnapshotRefresh).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := c.snapshotSweep(ctx); err != nil {
				log.Printf("Snapshot refresh sweep failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
		log.Printf("✅ Snapshot refresh scheduled (%s)", c.config.SnapshotRefresh)
	}

	if c.storageCleanup != nil && c.config.StorageCleanupCron != "" {
		_, err := c.scheduler.Cron(c.config.StorageCleanupCron).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := c.storageCleanup(ctx); err != nil {
				log.Printf("Storage cleanup sweep failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
		log.Printf("✅ Storage cleanup scheduled (%s)", c.config.StorageCleanupCron)
	}

	if c.deckSweep != nil && c.config.DeckSweepCron != "" {
		_, err := c.scheduler.Cron(c.config.DeckSweepCron).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := c.deckSweep(ctx); err != nil {
				log.Printf("Stale deck sweep failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
		log.Printf("✅ Stale deck sweep scheduled (%s)", c.config.DeckSweepCron)
	}

	c.scheduler.StartAsync()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (c *CronService) Stop() {
	c.scheduler.Stop()
}
