package interfaces

import (
	"context"

	"market-analytics/src/models"
)

// -----------------------------------------------------------------------------
// IDurableStore is the system of record the snapshots are hydrated from.
// Rows come back raw; normalization is the caller's job.
// -----------------------------------------------------------------------------

type IDurableStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the schema for the given dataset tables.
	Initialize(datasets []models.MDatasetConfig) error

	// -----------------------------------------------------------------------------

	// ReadHistory returns every stored row of a dataset.
	ReadHistory(ctx context.Context, dataset string) ([]models.MRawRow, error)

	// -----------------------------------------------------------------------------

	// ReadLatest returns the rows of the most recent trade date of a dataset.
	ReadLatest(ctx context.Context, dataset string) ([]models.MRawRow, error)

	// -----------------------------------------------------------------------------

	// AppendRows inserts raw rows; used by seeding and tests.
	AppendRows(ctx context.Context, dataset string, rows []models.MRawRow) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
