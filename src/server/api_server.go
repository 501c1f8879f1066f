package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"market-analytics/src/analysis"
	"market-analytics/src/cache"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/refresh"
	"market-analytics/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	Facade    *analysis.AnalysisFacade
	Refresher interfaces.IRefreshController
	Cache     *cache.ResponseCache
	Markets   *utils.MarketScheduler
	Hub       *Hub
	Events    *refresh.EventHistory // optional, adds recent events to health

	engine    *gin.Engine
	http      *http.Server
	startedAt time.Time
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, log *logger.Logger, facade *analysis.AnalysisFacade,
	refresher interfaces.IRefreshController, responseCache *cache.ResponseCache, markets *utils.MarketScheduler) *APIServer {
	// Set Gin mode
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:    cfg,
		Logger:    log,
		Facade:    facade,
		Refresher: refresher,
		Cache:     responseCache,
		Markets:   markets,
		Hub:       NewHub(log.Named("ws"), refresher),
		engine:    gin.New(),
		startedAt: time.Now(),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())

	// CORS for local dashboards
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.engine,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/summary", s.getSummary)
	api.GET("/series/:symbol", s.getSeries)
	api.GET("/rankings", s.getRankings)
	api.GET("/volatility/:symbol", s.getVolatility)
	api.GET("/stats/:symbol", s.getStats)
	api.GET("/compare", s.getComparison)
	api.GET("/compare/stats", s.getComparisonStats)

	sectors := api.Group("/sectors")
	sectors.GET("/table", s.getSectorTable)
	sectors.GET("/industry-breakdown", s.getIndustryBreakdown)
	sectors.GET("/series", s.getGroupSeries)
	sectors.GET("/list", s.getSectorList)
	sectors.GET("/industries", s.getIndustryList)
	sectors.GET("/top", s.getTopGroups)
	sectors.GET("/top-stocks", s.getSectorTopStocks)

	api.GET("/industries/turnover", s.getTurnover)

	api.GET("/health", s.getHealth)
	api.POST("/admin/refresh", s.postRefreshAll)
	api.POST("/admin/refresh/:dataset", s.postRefresh)

	// WebSocket endpoint
	s.engine.GET("/ws", s.Hub.handleWebSocket)
}

// -----------------------------------------------------------------------------

// Handler exposes the router, mainly for tests
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d in %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start serves until Stop is called
func (s *APIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.http.Addr)

	go s.Hub.Run()

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop() error {
	s.Hub.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
