package models

import "time"

// MCacheEntry is one stored response. Generations holds the invalidation
// generation of every tagged dataset at the time the value was computed.
type MCacheEntry struct {
	Key         string
	Value       interface{}
	InsertedAt  time.Time
	TTL         time.Duration
	Datasets    []string
	Generations []uint64
}

// Expired reports whether the entry outlived its TTL at now
func (e *MCacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) >= e.TTL
}
