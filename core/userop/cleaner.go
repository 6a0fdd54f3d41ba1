package userop

import (
	"errors"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/go-co-op/gocron/v2"

	"github.com/Polkamarkets/particle-bundler-server/core/config"
	"github.com/Polkamarkets/particle-bundler-server/pkg/timekeeper"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

// Cleaner periodically sweeps abandoned records for every configured chain
// and compacts the value log afterwards.
type Cleaner struct {
	mgr    *LifecycleManager
	db     storage.Storage
	cfg    *config.Config
	logger sdklogging.Logger

	scheduler gocron.Scheduler
}

func NewCleaner(mgr *LifecycleManager, db storage.Storage, cfg *config.Config, logger sdklogging.Logger) (*Cleaner, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	return &Cleaner{
		mgr:       mgr,
		db:        db,
		cfg:       cfg,
		logger:    logger,
		scheduler: scheduler,
	}, nil
}

func (c *Cleaner) Start() error {
	interval := c.cfg.CleanupInterval
	if interval <= 0 {
		interval = config.DefaultCleanupInterval
	}

	if _, err := c.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(c.Sweep),
	); err != nil {
		return err
	}

	c.scheduler.Start()
	c.logger.Infof("cleanup job scheduled every %s", interval)
	return nil
}

// Sweep runs one cleanup round. Exposed so operators can trigger it from the
// cli without waiting for the schedule.
func (c *Cleaner) Sweep() {
	elapsing := timekeeper.NewElapsing()

	total := 0
	for _, chain := range c.cfg.Chains {
		removed, err := c.mgr.DeleteAbandoned(chain.ChainId)
		if err != nil {
			c.logger.Error("cleanup sweep failed", "chain", chain.ChainId, "error", err)
			continue
		}
		total += removed
	}

	if err := c.db.Vacuum(); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		c.logger.Error("value log gc failed", "error", err)
	}

	c.logger.Info("cleanup round finished", "removed", total, "took", elapsing.Report())
}

func (c *Cleaner) Stop() error {
	return c.scheduler.Shutdown()
}
