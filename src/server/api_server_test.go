package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market-analytics/src/analysis"
	"market-analytics/src/cache"
	"market-analytics/src/helpers"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/refresh"
	"market-analytics/src/snapshot"
	"market-analytics/src/utils"

	"github.com/gorilla/websocket"
	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	refreshed []string
	states    []models.MRefreshState
}

func (f *fakeController) Refresh(dataset string) (models.MRefreshAck, error) {
	if dataset != "sp500" && dataset != "dax" {
		return models.MRefreshAck{}, helpers.NewInvalidParameterError("unknown dataset %q", dataset)
	}
	f.refreshed = append(f.refreshed, dataset)
	return models.MRefreshAck{JobID: "job-" + dataset, Dataset: dataset, Status: models.StatusQueued}, nil
}

func (f *fakeController) RefreshAll() []models.MRefreshAck {
	a, _ := f.Refresh("dax")
	b, _ := f.Refresh("sp500")
	return []models.MRefreshAck{a, b}
}

func (f *fakeController) States() []models.MRefreshState { return f.states }

func (f *fakeController) ErrorCounts() map[string]int { return map[string]int{} }

func point(symbol, sector, date string, close float64) models.MPricePoint {
	d, _ := time.Parse(time.DateOnly, date)
	return models.MPricePoint{
		Dataset: "sp500", Symbol: symbol, Name: symbol + " Inc", TradeDate: d,
		Open: close, High: close, Low: close, Close: close, Volume: 100,
		Sector: null.StringFrom(sector), Industry: null.StringFrom(sector + " Ind"),
	}
}

func testServer(t *testing.T) (*APIServer, *fakeController) {
	t.Helper()
	cfg := &models.MConfig{
		LogLevel:  "info",
		Analytics: models.MAnalyticsConfig{ShortWindow: 2, LongWindow: 3, TradingDays: 252, MinGroupSize: 1, DefaultTopN: 3},
		Datasets:  []models.MDatasetConfig{{Key: "dax", Calendar: "xetr"}, {Key: "sp500", Calendar: "xnys"}},
	}
	log := logger.NewSilentLogger()

	snap, err := snapshot.Build(context.Background(), "sp500", []models.MPricePoint{
		point("AAA", "Tech", "2024-01-02", 100), point("AAA", "Tech", "2024-01-03", 110),
		point("BBB", "Energy", "2024-01-02", 50), point("BBB", "Energy", "2024-01-03", 45),
	}, snapshot.BuildOptions{})
	require.NoError(t, err)
	store := snapshot.NewStore()
	store.Install(snap)

	rc := cache.NewResponseCache(models.MCacheConfig{TTLSeconds: 60, MaxEntries: 10}, log)
	ctrl := &fakeController{states: []models.MRefreshState{
		{Dataset: "dax", Phase: models.PhaseIdle},
		{Dataset: "sp500", Phase: models.PhaseIdle, SnapshotVersion: snap.Version, LatestDate: snap.LatestDate, Rows: snap.Rows},
	}}
	facade := analysis.NewAnalysisFacade(cfg, log, store, rc)
	return NewAPIServer(cfg, log, facade, ctrl, rc, utils.NewMarketScheduler(cfg.Datasets, log)), ctrl
}

func doRequest(t *testing.T, s *APIServer, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestSummaryEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec, body := doRequest(t, s, http.MethodGet, "/api/summary?dataset=sp500")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sp500", body["dataset"])
	assert.Len(t, body["rows"], 2)
}

func TestRankingsEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec, body := doRequest(t, s, http.MethodGet, "/api/rankings?dataset=sp500&period=max&n=1")
	require.Equal(t, http.StatusOK, rec.Code)
	top := body["top"].([]interface{})
	require.Len(t, top, 1)
	assert.Equal(t, "AAA", top[0].(map[string]interface{})["symbol"])
}

func TestErrorMapping(t *testing.T) {
	s, _ := testServer(t)

	cases := []struct {
		target string
		code   int
	}{
		{"/api/rankings?dataset=sp500&period=2w", http.StatusBadRequest},
		{"/api/rankings?dataset=sp500&n=abc", http.StatusBadRequest},
		{"/api/rankings?dataset=nasdaq", http.StatusBadRequest},
		{"/api/summary?dataset=dax", http.StatusNotFound},
		{"/api/series/ZZZ", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec, body := doRequest(t, s, http.MethodGet, tc.target)
		assert.Equal(t, tc.code, rec.Code, tc.target)
		assert.NotEmpty(t, body["error"], tc.target)
	}
}

func TestSectorEndpoints(t *testing.T) {
	s, _ := testServer(t)

	rec, body := doRequest(t, s, http.MethodGet, "/api/sectors/table?datasets=sp500&period=max")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["rows"], 2)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/sectors/list?datasets=sp500")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/sectors/series?dataset=sp500&names=Tech&period=max")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/industries/turnover?dataset=sp500&sector=Tech&period=max")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompareEndpoints(t *testing.T) {
	s, _ := testServer(t)

	rec, body := doRequest(t, s, http.MethodGet, "/api/compare?symbols=AAA,BBB&period=max")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sp500", body["dataset"])
	assert.Len(t, body["dates"], 2)
	lines := body["lines"].([]interface{})
	require.Len(t, lines, 2)
	bbb := lines[1].(map[string]interface{})
	assert.Equal(t, "BBB", bbb["symbol"])
	assert.InDelta(t, -10.0, bbb["values"].([]interface{})[1].(float64), 1e-9)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/compare/stats?symbols=BBB&symbols=AAA&period=max", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []models.MSymbolStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, "BBB", stats[0].Symbol)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/compare?period=max")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroupSeriesWithoutNamesReturnsAll(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sectors/series?dataset=sp500&period=max", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var series []models.MGroupSeries
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series, 2)
	assert.Equal(t, "Energy", series[0].Key)
	assert.Equal(t, "Tech", series[1].Key)
}

func TestAdminRefreshIsAccepted(t *testing.T) {
	s, ctrl := testServer(t)

	rec, body := doRequest(t, s, http.MethodPost, "/api/admin/refresh/sp500")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-sp500", body["job_id"])
	assert.Equal(t, []string{"sp500"}, ctrl.refreshed)

	rec, _ = doRequest(t, s, http.MethodPost, "/api/admin/refresh/nasdaq")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doRequest(t, s, http.MethodPost, "/api/admin/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, body["jobs"], 2)
}

func TestHealthReportsLoadingDataset(t *testing.T) {
	s, _ := testServer(t)

	rec, body := doRequest(t, s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "loading", body["status"])
	assert.Len(t, body["datasets"], 2)
	assert.Contains(t, body, "cache")
	assert.Contains(t, body, "memory")
}

func TestHealthIncludesRecentEvents(t *testing.T) {
	s, _ := testServer(t)
	s.Events = refresh.NewEventHistory(10)
	s.Events.OnRefreshEvent(models.MRefreshEvent{Dataset: "dax", Status: models.StatusFailed, Error: "boom"})

	rec, body := doRequest(t, s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	events := body["recent_events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "boom", events[0].(map[string]interface{})["error"])
}

func TestWebSocketStream(t *testing.T) {
	s, _ := testServer(t)
	go s.Hub.Run()
	defer s.Hub.Stop()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg models.MStreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.StreamInitial, msg.Type)
	assert.Len(t, msg.States, 2)

	require.NoError(t, conn.WriteJSON(models.MSubscribeCommand{Command: "subscribe", Datasets: []string{"sp500"}}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.StreamInitial, msg.Type)
	require.Len(t, msg.States, 1)
	assert.Equal(t, "sp500", msg.States[0].Dataset)

	// filtered out, then delivered
	s.Hub.OnRefreshEvent(models.MRefreshEvent{Dataset: "dax", Status: models.StatusCompleted})
	s.Hub.OnRefreshEvent(models.MRefreshEvent{Dataset: "sp500", Status: models.StatusCompleted, SnapshotVersion: 7})

	msg = models.MStreamMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.StreamUpdate, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "sp500", msg.Event.Dataset)
	assert.Equal(t, uint64(7), msg.Event.SnapshotVersion)
}

func TestHubDropsWhenQueueIsFull(t *testing.T) {
	h := NewHub(logger.NewSilentLogger(), nil)
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.OnRefreshEvent(models.MRefreshEvent{Dataset: "sp500"})
	}
	assert.Equal(t, uint64(5), h.Dropped())
}
