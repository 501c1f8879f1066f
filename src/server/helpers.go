package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"market-analytics/src/analysis"
	"market-analytics/src/helpers"
	"market-analytics/src/refresh"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

func periodQuery(c *gin.Context) analysis.PeriodQuery {
	return analysis.PeriodQuery{
		Period:   c.DefaultQuery("period", "1y"),
		Start:    c.Query("start"),
		End:      c.Query("end"),
		Interval: c.Query("interval"),
	}
}

// -----------------------------------------------------------------------------

// intQuery returns 0 when the parameter is absent so the facade applies its default
func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, helpers.NewInvalidParameterError("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

// -----------------------------------------------------------------------------

// listQuery accepts both ?k=a,b and ?k=a&k=b
func listQuery(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func (s *APIServer) writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case helpers.IsInvalidParameter(err):
		code = http.StatusBadRequest
	case helpers.IsNoData(err):
		code = http.StatusNotFound
	case errors.Is(err, refresh.ErrQueueFull), errors.Is(err, refresh.ErrStopped):
		code = http.StatusServiceUnavailable
	default:
		s.Logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
