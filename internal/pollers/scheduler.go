package pollers

import (
	"context"
	"time"

	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/hub"
	"github.com/paperminder/paperminder/internal/logging"
	"gorm.io/gorm"
)

// NewSchedulerPoller drives the rollout lifecycle: each tick activates
// scheduled rollouts whose start time has passed, then re-evaluates every
// connected printer so newly-activated or widened rollouts reach online
// printers without a reconnect.
func NewSchedulerPoller(db *gorm.DB, h *hub.Hub, interval time.Duration) *BasePoller {
	rollouts := database.NewRolloutService(db)

	config := PollerConfig{
		Name:       "rollout_scheduler",
		Enabled:    true,
		Interval:   interval,
		Timeout:    time.Minute,
		MaxRetries: 1,
	}

	return NewBasePoller(config, func(ctx context.Context) error {
		now := time.Now()

		activated, err := rollouts.ActivateDue(now)
		if err != nil {
			return err
		}
		for _, r := range activated {
			logging.InfoWithComponent(logging.ComponentScheduler, "Activated scheduled rollout",
				"rollout", r.ID, "version", r.Version)
		}

		h.EvaluateConnected(now)
		return nil
	})
}

// NewCacheCleanupPoller deletes delivered cache rows past the retention
// window.
func NewCacheCleanupPoller(db *gorm.DB, retention time.Duration) *BasePoller {
	messages := database.NewMessageService(db)

	config := PollerConfig{
		Name:       "cache_cleanup",
		Enabled:    true,
		Interval:   time.Hour,
		Timeout:    time.Minute,
		MaxRetries: 1,
	}

	return NewBasePoller(config, func(ctx context.Context) error {
		removed, err := messages.ClearOldCache(retention)
		if err != nil {
			return err
		}
		if removed > 0 {
			logging.InfoWithComponent(logging.ComponentScheduler, "Cleared delivered cache rows",
				"removed", removed)
		}
		return nil
	})
}
