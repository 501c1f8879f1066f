package helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"market-analytics/src/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("query: %w", NewNoDataError("dataset %s not loaded", "sp500"))
	assert.True(t, IsNoData(err))
	assert.False(t, IsInvalidParameter(err))
	assert.Contains(t, err.Error(), "dataset sp500 not loaded")

	bad := NewInvalidParameterError("unknown period %q", "2w")
	assert.True(t, IsInvalidParameter(bad))
}

func TestDatabaseErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDatabaseError("read history failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "read history failed: connection refused", err.Error())
}

func TestRetryWithBackoffEventuallySucceeds(t *testing.T) {
	calls := 0
	res, err := RetryWithBackoff(context.Background(), logger.NewSilentLogger(), "read", 3, time.Millisecond,
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithBackoff(ctx, nil, "read", 5, time.Hour, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestErrorHandlerCounts(t *testing.T) {
	h := NewErrorHandler(logger.NewSilentLogger())
	h.Handle(errors.New("a"), "refresh:sp500")
	h.Handle(errors.New("b"), "refresh:sp500")
	h.Handle(nil, "refresh:dax")

	assert.Equal(t, map[string]int{"refresh:sp500": 2}, h.Counts())
	h.Reset("refresh:sp500")
	assert.Empty(t, h.Counts())
}
