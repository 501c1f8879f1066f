package refresh

import (
	"sync"

	"market-analytics/src/interfaces"
	"market-analytics/src/models"
)

// SubscriberFunc adapts a function to interfaces.IRefreshSubscriber
type SubscriberFunc func(models.MRefreshEvent)

func (f SubscriberFunc) OnRefreshEvent(event models.MRefreshEvent) {
	f(event)
}

// EventBus fans refresh events out to subscribers, synchronously and in
// subscription order
type EventBus struct {
	mu          sync.RWMutex
	subscribers []interfaces.IRefreshSubscriber
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// -----------------------------------------------------------------------------

func (b *EventBus) Subscribe(s interfaces.IRefreshSubscriber) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (b *EventBus) Publish(event models.MRefreshEvent) {
	b.mu.RLock()
	subs := append([]interfaces.IRefreshSubscriber{}, b.subscribers...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.OnRefreshEvent(event)
	}
}
