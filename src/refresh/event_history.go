package refresh

import (
	"market-analytics/src/models"
	"market-analytics/src/utils"
)

// EventHistory keeps the most recent refresh events for health reporting
type EventHistory struct {
	events *utils.RingBuffer[models.MRefreshEvent]
}

func NewEventHistory(capacity int) *EventHistory {
	return &EventHistory{events: utils.NewRingBuffer[models.MRefreshEvent](capacity)}
}

func (h *EventHistory) OnRefreshEvent(event models.MRefreshEvent) {
	h.events.Append(event)
}

// Recent returns up to n events, newest first
func (h *EventHistory) Recent(n int) []models.MRefreshEvent {
	events := h.events.Latest(n)
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events
}
