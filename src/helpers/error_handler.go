package helpers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"market-analytics/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type AnalyticsError struct {
	Message string
	Cause   error
}

func (e *AnalyticsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AnalyticsError) Unwrap() error {
	return e.Cause
}

// Distinct error kinds, matched with errors.As
type ConfigurationError struct{ AnalyticsError }
type DatabaseError struct{ AnalyticsError }
type RefreshError struct{ AnalyticsError }

// NoDataError: the dataset, symbol or range has nothing to answer with
type NoDataError struct{ AnalyticsError }

// InvalidParameterError: the caller asked for something malformed
type InvalidParameterError struct{ AnalyticsError }

// -----------------------------------------------------------------------------

func NewNoDataError(format string, args ...interface{}) error {
	return &NoDataError{AnalyticsError{Message: fmt.Sprintf(format, args...)}}
}

func NewInvalidParameterError(format string, args ...interface{}) error {
	return &InvalidParameterError{AnalyticsError{Message: fmt.Sprintf(format, args...)}}
}

func NewDatabaseError(message string, cause error) error {
	return &DatabaseError{AnalyticsError{Message: message, Cause: cause}}
}

func NewRefreshError(message string, cause error) error {
	return &RefreshError{AnalyticsError{Message: message, Cause: cause}}
}

func NewConfigurationError(message string, cause error) error {
	return &ConfigurationError{AnalyticsError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------

func IsNoData(err error) bool {
	var target *NoDataError
	return errors.As(err, &target)
}

func IsInvalidParameter(err error) bool {
	var target *InvalidParameterError
	return errors.As(err, &target)
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries times, doubling baseDelay between
// attempts. It gives up early when ctx is done.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt == maxRetries-1 || ctx.Err() != nil {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("attempt %d/%d failed for %s: %v, retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}
		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler logs failures per context and keeps a running count, which
// health reporting exposes.
type ErrorHandler struct {
	Logger *logger.Logger

	mu     sync.Mutex
	counts map[string]int
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{
		Logger: log,
		counts: make(map[string]int),
	}
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) Handle(err error, context string) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.counts[context]++
	e.mu.Unlock()
	e.Logger.Error("error in %s: %v", context, err)
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) Reset(context string) {
	e.mu.Lock()
	delete(e.counts, context)
	e.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Counts returns a copy of the per context error counters
func (e *ErrorHandler) Counts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.counts))
	for k, v := range e.counts {
		out[k] = v
	}
	return out
}
