package refresh

import (
	"fmt"

	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers dataset refreshes on cron expressions (with seconds
// field, e.g. "0 30 22 * * 1-5")
type Scheduler struct {
	Cron    *cron.Cron
	Trigger interfaces.IRefreshTrigger
	Logger  *logger.Logger
	entries map[string]cron.EntryID
}

func NewScheduler(trigger interfaces.IRefreshTrigger, log *logger.Logger) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Trigger: trigger,
		Logger:  log,
		entries: make(map[string]cron.EntryID),
	}
}

// -----------------------------------------------------------------------------

// RegisterAll adds a job for every dataset with a refresh_cron
func (s *Scheduler) RegisterAll(datasets []models.MDatasetConfig) error {
	for _, ds := range datasets {
		if ds.RefreshCron == "" {
			continue
		}
		key := ds.Key
		id, err := s.Cron.AddFunc(ds.RefreshCron, func() { s.fire(key) })
		if err != nil {
			return fmt.Errorf("register refresh of %s (%q): %w", key, ds.RefreshCron, err)
		}
		s.entries[key] = id
	}
	return nil
}

func (s *Scheduler) fire(dataset string) {
	ack, err := s.Trigger.Refresh(dataset)
	if err != nil {
		s.Logger.Error("scheduled refresh of %s failed to queue: %v", dataset, err)
		return
	}
	s.Logger.Info("scheduled refresh of %s queued as job %s (coalesced=%t)", dataset, ack.JobID, ack.Coalesced)
}

// -----------------------------------------------------------------------------

// Registered reports how many datasets have a schedule
func (s *Scheduler) Registered() int {
	return len(s.entries)
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("refresh scheduler started with %d jobs", len(s.entries))
}

func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("refresh scheduler stopped")
}
