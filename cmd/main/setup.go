package main

import (
	"context"
	"time"

	"market-analytics/src/analysis"
	"market-analytics/src/cache"
	"market-analytics/src/config"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/refresh"
	"market-analytics/src/snapshot"
	"market-analytics/src/storage"
	"market-analytics/src/utils"
)

// pipeline holds the long lived components shared by the servers
type pipeline struct {
	snapshots    *snapshot.Store
	cache        *cache.ResponseCache
	bus          *refresh.EventBus
	history      *refresh.EventHistory
	orchestrator *refresh.Orchestrator
	scheduler    *refresh.Scheduler
	facade       *analysis.AnalysisFacade
	markets      *utils.MarketScheduler
}

// -----------------------------------------------------------------------------

// setupDatabase opens the durable store and creates the dataset tables
func setupDatabase(conf *config.Config, appLogger *logger.Logger) (interfaces.IDurableStore, error) {
	dbLogger := appLogger.Named("storage")

	store, err := storage.NewDurableStore(conf.MConfig, dbLogger)
	if err != nil {
		appLogger.Error("Failed to init db: %v", err)
		return nil, err
	}
	if err := store.Initialize(conf.Datasets); err != nil {
		appLogger.Error("Failed to migrate db: %v", err)
		return nil, err
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// setupPipeline wires snapshot store, response cache, refresh orchestrator
// and analytics facade. Cache invalidation subscribes before the hub so a
// client told about a new snapshot never reads a stale response.
func setupPipeline(ctx context.Context, conf *config.Config, appLogger *logger.Logger, store interfaces.IDurableStore) *pipeline {
	p := &pipeline{
		snapshots: snapshot.NewStore(),
		bus:       refresh.NewEventBus(),
		history:   refresh.NewEventHistory(100),
		markets:   utils.NewMarketScheduler(conf.Datasets, appLogger.Named("calendar")),
	}

	p.cache = cache.NewResponseCache(conf.Cache, appLogger.Named("cache"))
	p.bus.Subscribe(p.cache)
	p.bus.Subscribe(p.history)
	if !conf.Cache.Disabled {
		go p.cache.RunJanitor(ctx, time.Duration(conf.Cache.PurgeIntervalSeconds)*time.Second)
	}

	p.orchestrator = refresh.NewOrchestrator(conf.MConfig, appLogger.Named("refresh"), store, p.snapshots, p.bus)
	eventLogger := appLogger.Named("events")
	p.bus.Subscribe(refresh.SubscriberFunc(func(ev models.MRefreshEvent) {
		if ev.Status == models.StatusFailed {
			eventLogger.Warning("%s %s %s: %s", ev.Dataset, ev.Phase, ev.Status, ev.Error)
			return
		}
		eventLogger.Debug("%s %s %s (v%d, %d rows)", ev.Dataset, ev.Phase, ev.Status, ev.SnapshotVersion, ev.Rows)
	}))

	p.scheduler = refresh.NewScheduler(p.orchestrator, appLogger.Named("scheduler"))
	if err := p.scheduler.RegisterAll(conf.Datasets); err != nil {
		appLogger.Critical("Invalid refresh schedule: %v", err)
	}

	p.facade = analysis.NewAnalysisFacade(conf.MConfig, appLogger.Named("analysis"), p.snapshots, p.cache)
	p.facade.SetRefreshTrigger(p.orchestrator)

	// subscribed after the cache so prewarmed entries carry the new generation
	if !conf.Cache.Disabled {
		p.bus.Subscribe(analysis.NewCachePrewarmer(p.facade, appLogger.Named("prewarm"), conf.Cache.PrewarmPeriods))
	}
	return p
}

// -----------------------------------------------------------------------------

func preloadDatasets(conf *config.Config, trigger interfaces.IRefreshTrigger, appLogger *logger.Logger) {
	for _, ds := range conf.Datasets {
		if !ds.Preload {
			continue
		}
		ack, err := trigger.Refresh(ds.Key)
		if err != nil {
			appLogger.Warning("preload of %s not queued: %v", ds.Key, err)
			continue
		}
		appLogger.Info("preloading %s (job %s)", ds.Key, ack.JobID)
	}
}
