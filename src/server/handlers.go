package server

import (
	"net/http"
	"time"

	"market-analytics/src/models"
	"market-analytics/src/snapshot"
	"market-analytics/src/utils"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Latest view and per symbol queries
// -----------------------------------------------------------------------------

func (s *APIServer) getSummary(c *gin.Context) {
	summary, err := s.Facade.LatestSummary(c.Query("dataset"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSeries(c *gin.Context) {
	series, err := s.Facade.Series(c.Query("dataset"), c.Param("symbol"), periodQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getVolatility(c *gin.Context) {
	vol, err := s.Facade.Volatility(c.Query("dataset"), c.Param("symbol"), periodQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vol)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getStats(c *gin.Context) {
	stats, err := s.Facade.SymbolStats(c.Query("dataset"), c.Param("symbol"), periodQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// -----------------------------------------------------------------------------
// Cross-sectional queries
// -----------------------------------------------------------------------------

func (s *APIServer) getRankings(c *gin.Context) {
	n, err := intQuery(c, "n")
	if err != nil {
		s.writeError(c, err)
		return
	}
	ranking, err := s.Facade.Rankings(c.Query("dataset"), periodQuery(c), n)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSectorTable(c *gin.Context) {
	minGroup, err := intQuery(c, "min_group_size")
	if err != nil {
		s.writeError(c, err)
		return
	}
	table, err := s.Facade.SectorTable(listQuery(c, "datasets"), periodQuery(c), minGroup)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getIndustryBreakdown(c *gin.Context) {
	minGroup, err := intQuery(c, "min_group_size")
	if err != nil {
		s.writeError(c, err)
		return
	}
	breakdown, err := s.Facade.IndustryBreakdown(c.Query("dataset"), c.Query("sector"), periodQuery(c), minGroup)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// -----------------------------------------------------------------------------

// getComparison lays several symbols on one rebased timeline
func (s *APIServer) getComparison(c *gin.Context) {
	cmp, err := s.Facade.CompareSymbols(c.Query("dataset"), listQuery(c, "symbols"), periodQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *APIServer) getComparisonStats(c *gin.Context) {
	stats, err := s.Facade.CompareStats(c.Query("dataset"), listQuery(c, "symbols"), periodQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getGroupSeries(c *gin.Context) {
	groupBy := c.DefaultQuery("group_by", snapshot.GroupBySector)
	series, err := s.Facade.GroupSeries(c.Query("dataset"), groupBy, listQuery(c, "names"), c.Query("sector"), periodQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSectorList(c *gin.Context) {
	groups, err := s.Facade.Groups(listQuery(c, "datasets"), snapshot.GroupBySector, "")
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getIndustryList(c *gin.Context) {
	groups, err := s.Facade.Groups(listQuery(c, "datasets"), snapshot.GroupByIndustry, c.Query("sector"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getTopGroups(c *gin.Context) {
	n, err := intQuery(c, "n")
	if err != nil {
		s.writeError(c, err)
		return
	}
	minGroup, err := intQuery(c, "min_group_size")
	if err != nil {
		s.writeError(c, err)
		return
	}
	groupBy := c.DefaultQuery("group_by", snapshot.GroupBySector)
	top, err := s.Facade.TopGroups(listQuery(c, "datasets"), groupBy, periodQuery(c), n, minGroup)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, top)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSectorTopStocks(c *gin.Context) {
	n, err := intQuery(c, "n")
	if err != nil {
		s.writeError(c, err)
		return
	}
	ranking, err := s.Facade.SectorTopStocks(listQuery(c, "datasets"), c.Query("sector"), periodQuery(c), n)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getTurnover(c *gin.Context) {
	rows, err := s.Facade.Turnover(c.Query("dataset"), c.Query("sector"), periodQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// -----------------------------------------------------------------------------
// Administration
// -----------------------------------------------------------------------------

func (s *APIServer) postRefreshAll(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"jobs": s.Refresher.RefreshAll()})
}

// -----------------------------------------------------------------------------

func (s *APIServer) postRefresh(c *gin.Context) {
	ack, err := s.Refresher.Refresh(c.Param("dataset"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// -----------------------------------------------------------------------------

type datasetHealth struct {
	models.MRefreshState
	RowsHuman  string      `json:"rows_human"`
	Freshness  interface{} `json:"freshness,omitempty"`
	LastUpdate string      `json:"last_update,omitempty"`
}

// getHealth reports "ok" once every dataset is served, "loading" while some
// have no snapshot yet and "degraded" when the last refresh of any failed
func (s *APIServer) getHealth(c *gin.Context) {
	now := time.Now()
	states := s.Refresher.States()

	status := "ok"
	datasets := make([]datasetHealth, 0, len(states))
	for _, st := range states {
		h := datasetHealth{MRefreshState: st, RowsHuman: humanize.Comma(int64(st.Rows))}
		if !st.LastCompletedAt.IsZero() {
			h.LastUpdate = humanize.Time(st.LastCompletedAt)
		}
		if st.SnapshotVersion == 0 {
			if status == "ok" {
				status = "loading"
			}
		} else if s.Markets != nil {
			h.Freshness = s.Markets.Freshness(st.Dataset, st.LatestDate, now)
		}
		if st.LastError != "" {
			status = "degraded"
		}
		datasets = append(datasets, h)
	}

	body := gin.H{
		"status":      status,
		"started":     humanize.Time(s.startedAt),
		"connections": s.Hub.Connections(),
		"datasets":    datasets,
		"errors":      s.Refresher.ErrorCounts(),
		"memory":      utils.MemoryUsage(),
	}
	if s.Cache != nil {
		body["cache"] = s.Cache.Stats()
	}
	if s.Events != nil {
		body["recent_events"] = s.Events.Recent(20)
	}
	c.JSON(http.StatusOK, body)
}
