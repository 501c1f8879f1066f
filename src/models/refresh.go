package models

import "time"

// Refresh phases
const (
	PhaseIdle           = "idle"
	PhasePartialHydrate = "partial-hydrating"
	PhaseFullHydrate    = "full-hydrating"
)

// Refresh event statuses
const (
	StatusQueued    = "queued"
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// MRefreshState is the orchestrator's view of one dataset
type MRefreshState struct {
	Dataset         string    `json:"dataset"`
	Phase           string    `json:"phase"`
	JobID           string    `json:"job_id,omitempty"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	RerunPending    bool      `json:"rerun_pending"`
	LastError       string    `json:"last_error,omitempty"`
	LastCompletedAt time.Time `json:"last_completed_at,omitempty"`
	SnapshotVersion uint64    `json:"snapshot_version"`
	LatestDate      time.Time `json:"latest_date,omitempty"`
	Rows            int       `json:"rows"`
}

// MRefreshEvent is published on every phase transition
type MRefreshEvent struct {
	JobID           string        `json:"job_id"`
	Dataset         string        `json:"dataset"`
	Phase           string        `json:"phase"`
	Status          string        `json:"status"`
	SnapshotVersion uint64        `json:"snapshot_version,omitempty"`
	Rows            int           `json:"rows,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	Error           string        `json:"error,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// MRefreshAck is returned to a trigger before any work happens
type MRefreshAck struct {
	JobID     string `json:"job_id"`
	Dataset   string `json:"dataset"`
	Coalesced bool   `json:"coalesced"`
	Status    string `json:"status"`
}

// -----------------------------------------------------------------------------

// MFreshness tells whether a dataset's latest trade date is behind its exchange
type MFreshness struct {
	Dataset         string    `json:"dataset"`
	Calendar        string    `json:"calendar"`
	ExpectedSession time.Time `json:"expected_session"`
	LatestDate      time.Time `json:"latest_date,omitempty"`
	SessionsBehind  int       `json:"sessions_behind"`
	Stale           bool      `json:"stale"`
}

// MMemoryUsage is the process memory view reported by health
type MMemoryUsage struct {
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapHuman  string `json:"heap_human"`
	Sys        uint64 `json:"sys"`
	SysHuman   string `json:"sys_human"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`
}
