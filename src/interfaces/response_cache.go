package interfaces

import "time"

// -----------------------------------------------------------------------------
// IResponseCache memoizes query results tagged by the datasets they read.
// -----------------------------------------------------------------------------

type IResponseCache interface {

	// -----------------------------------------------------------------------------

	// GetOrCompute returns a cached value or computes and stores it.
	GetOrCompute(key string, datasets []string, ttl time.Duration, fn func() (interface{}, error)) (interface{}, error)

	// -----------------------------------------------------------------------------

	// InvalidateDataset drops everything computed from dataset.
	InvalidateDataset(dataset string) int
}
