package interfaces

import "market-analytics/src/models"

// -----------------------------------------------------------------------------
// IRefreshSubscriber receives refresh lifecycle events. Delivery is
// synchronous, sometimes under the orchestrator's lock: implementations must
// not block or call back into the orchestrator.
// -----------------------------------------------------------------------------

type IRefreshSubscriber interface {
	OnRefreshEvent(event models.MRefreshEvent)
}

// -----------------------------------------------------------------------------
// IRefreshTrigger starts an asynchronous refresh of a dataset.
// -----------------------------------------------------------------------------

type IRefreshTrigger interface {
	// -----------------------------------------------------------------------------
	// Refresh acknowledges immediately; work happens on the worker pool.
	Refresh(dataset string) (models.MRefreshAck, error)

	// -----------------------------------------------------------------------------
	// States reports per dataset refresh state.
	States() []models.MRefreshState
}

// -----------------------------------------------------------------------------
// IDataExchanger is an outer surface (HTTP, gRPC) with a lifecycle.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}

// -----------------------------------------------------------------------------
// IRefreshController is the administrative view of the refresh pipeline.
// -----------------------------------------------------------------------------

type IRefreshController interface {
	IRefreshTrigger

	// -----------------------------------------------------------------------------
	// RefreshAll triggers every configured dataset.
	RefreshAll() []models.MRefreshAck

	// -----------------------------------------------------------------------------
	// ErrorCounts reports consecutive failures per dataset.
	ErrorCounts() map[string]int
}
