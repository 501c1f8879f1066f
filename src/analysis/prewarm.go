package analysis

import (
	"sync"

	"market-analytics/src/logger"
	"market-analytics/src/models"
)

// CachePrewarmer recomputes the sector tables of a dataset once its full
// rebuild is installed, so the first request after an invalidation is a hit.
// It must be subscribed after the response cache.
type CachePrewarmer struct {
	facade  *AnalysisFacade
	logger  *logger.Logger
	periods []string
	wg      sync.WaitGroup
}

func NewCachePrewarmer(facade *AnalysisFacade, log *logger.Logger, periods []string) *CachePrewarmer {
	return &CachePrewarmer{facade: facade, logger: log, periods: periods}
}

// -----------------------------------------------------------------------------

// OnRefreshEvent starts a prewarm in the background; the bus is never held
// for the recompute.
func (p *CachePrewarmer) OnRefreshEvent(event models.MRefreshEvent) {
	if event.Phase != models.PhaseFullHydrate || event.Status != models.StatusCompleted || len(p.periods) == 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Prewarm(event.Dataset)
	}()
}

// Prewarm computes the sector table of dataset for every configured period
func (p *CachePrewarmer) Prewarm(dataset string) {
	warmed := 0
	for _, period := range p.periods {
		if _, err := p.facade.SectorTable([]string{dataset}, PeriodQuery{Period: period}, 0); err != nil {
			p.logger.Warning("prewarm of %s sector table (%s) failed: %v", dataset, period, err)
			continue
		}
		warmed++
	}
	p.logger.Debug("prewarmed %d sector tables for %s", warmed, dataset)
}

// Wait blocks until background prewarms finish
func (p *CachePrewarmer) Wait() {
	p.wg.Wait()
}
