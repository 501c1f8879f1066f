// Package refresh rebuilds dataset snapshots from the durable store in the
// background, one refresh per dataset at a time.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/ingestion"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"
	"market-analytics/src/snapshot"

	"github.com/google/uuid"
)

var ErrQueueFull = errors.New("refresh queue is full")
var ErrStopped = errors.New("refresh orchestrator is stopped")

type job struct {
	id      string
	dataset string
}

// Orchestrator owns the refresh lifecycle. Refresh only enqueues; workers
// hydrate in two phases and install snapshots. A dataset is never refreshed
// by two workers at once: triggers arriving meanwhile collapse into a single
// follow-up run.
type Orchestrator struct {
	logger    *logger.Logger
	store     interfaces.IDurableStore
	snapshots *snapshot.Store
	bus       *EventBus
	errors    *helpers.ErrorHandler

	datasets    map[string]models.MDatasetConfig
	workers     int
	readTimeout time.Duration
	maxRetries  int
	backoff     time.Duration
	buildOpts   snapshot.BuildOptions
	now         func() time.Time

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	states  map[string]*models.MRefreshState
	active  map[string]bool
	started bool
	stopped bool
}

// -----------------------------------------------------------------------------

func NewOrchestrator(cfg *models.MConfig, log *logger.Logger, store interfaces.IDurableStore, snapshots *snapshot.Store, bus *EventBus) *Orchestrator {
	o := &Orchestrator{
		logger:      log,
		store:       store,
		snapshots:   snapshots,
		bus:         bus,
		errors:      helpers.NewErrorHandler(log),
		datasets:    make(map[string]models.MDatasetConfig, len(cfg.Datasets)),
		workers:     cfg.Refresh.Workers,
		readTimeout: time.Duration(cfg.Storage.ReadTimeoutSeconds) * time.Second,
		maxRetries:  cfg.Storage.MaxRetries,
		backoff:     time.Duration(cfg.Storage.RetryBackoffMillis) * time.Millisecond,
		buildOpts:   snapshot.BuildOptions{PrecomputeGroups: !cfg.Analytics.DisablePrecompute},
		now:         time.Now,
		jobs:        make(chan job, max(cfg.Refresh.QueueSize, 1)),
		states:      make(map[string]*models.MRefreshState),
		active:      make(map[string]bool),
	}
	if o.workers < 1 {
		o.workers = 1
	}
	for _, ds := range cfg.Datasets {
		o.datasets[ds.Key] = ds
		o.states[ds.Key] = &models.MRefreshState{Dataset: ds.Key, Phase: models.PhaseIdle}
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

// -----------------------------------------------------------------------------

// Start launches the worker pool
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	o.logger.Info("started %d refresh workers", o.workers)
}

// -----------------------------------------------------------------------------

// Stop cancels in-flight reads and waits for workers to exit
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.logger.Info("refresh workers stopped")
}

// -----------------------------------------------------------------------------

// Refresh acknowledges a trigger without waiting for any work. A trigger for
// a dataset already queued or running marks one re-run and reports it as
// coalesced.
func (o *Orchestrator) Refresh(dataset string) (models.MRefreshAck, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return models.MRefreshAck{}, ErrStopped
	}
	state, ok := o.states[dataset]
	if !ok {
		o.mu.Unlock()
		return models.MRefreshAck{}, helpers.NewInvalidParameterError("unknown dataset %q", dataset)
	}
	if o.active[dataset] {
		state.RerunPending = true
		ack := models.MRefreshAck{JobID: state.JobID, Dataset: dataset, Coalesced: true, Status: models.StatusQueued}
		o.mu.Unlock()
		o.logger.Debug("refresh of %s already in progress, re-run scheduled", dataset)
		return ack, nil
	}

	j := job{id: uuid.NewString(), dataset: dataset}
	select {
	case o.jobs <- j:
	default:
		o.mu.Unlock()
		return models.MRefreshAck{}, ErrQueueFull
	}
	o.active[dataset] = true
	state.JobID = j.id
	// published under the lock so "queued" precedes the worker's events
	o.publish(o.event(j, "", models.StatusQueued))
	o.mu.Unlock()

	return models.MRefreshAck{JobID: j.id, Dataset: dataset, Status: models.StatusQueued}, nil
}

// -----------------------------------------------------------------------------

// RefreshAll triggers every configured dataset
func (o *Orchestrator) RefreshAll() []models.MRefreshAck {
	keys := make([]string, 0, len(o.datasets))
	for k := range o.datasets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	acks := make([]models.MRefreshAck, 0, len(keys))
	for _, k := range keys {
		ack, err := o.Refresh(k)
		if err != nil {
			o.logger.Warning("refresh of %s not queued: %v", k, err)
			ack = models.MRefreshAck{Dataset: k, Status: models.StatusFailed}
		}
		acks = append(acks, ack)
	}
	return acks
}

// -----------------------------------------------------------------------------

// States reports every dataset's refresh state, sorted by dataset
func (o *Orchestrator) States() []models.MRefreshState {
	o.mu.Lock()
	out := make([]models.MRefreshState, 0, len(o.states))
	for _, s := range o.states {
		out = append(out, *s)
	}
	o.mu.Unlock()

	for i := range out {
		if snap := o.snapshots.Get(out[i].Dataset); snap != nil {
			out[i].SnapshotVersion = snap.Version
			out[i].LatestDate = snap.LatestDate
			out[i].Rows = snap.Rows
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}

// ErrorCounts exposes failures per dataset since the last success
func (o *Orchestrator) ErrorCounts() map[string]int {
	return o.errors.Counts()
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case j := <-o.jobs:
			o.runJob(j)
		}
	}
}

// -----------------------------------------------------------------------------

// runJob runs a refresh and then any re-run requested while it was running
func (o *Orchestrator) runJob(j job) {
	for {
		err := o.hydrate(j)

		o.mu.Lock()
		state := o.states[j.dataset]
		state.Phase = models.PhaseIdle
		if err != nil {
			state.LastError = err.Error()
		} else {
			state.LastError = ""
			state.LastCompletedAt = o.now()
		}
		if !state.RerunPending || o.ctx.Err() != nil {
			state.RerunPending = false
			o.active[j.dataset] = false
			o.mu.Unlock()
			return
		}
		state.RerunPending = false
		j = job{id: uuid.NewString(), dataset: j.dataset}
		state.JobID = j.id
		o.mu.Unlock()
		o.logger.Info("re-running refresh of %s as job %s", j.dataset, j.id)
	}
}

// -----------------------------------------------------------------------------

// hydrate runs both phases. A failed phase leaves the installed snapshot
// untouched. A failed phase 1 skips phase 2 unless it only found no usable
// latest rows, in which case the history may still be good.
func (o *Orchestrator) hydrate(j job) error {
	where := "refresh:" + j.dataset

	if err := o.runPhase(j, models.PhasePartialHydrate, o.partialHydrate); err != nil {
		if !errors.Is(err, snapshot.ErrNoValidRows) {
			o.errors.Handle(err, where)
			return err
		}
		o.logger.Warning("no usable latest rows for %s, reading full history", j.dataset)
	}
	if err := o.runPhase(j, models.PhaseFullHydrate, o.fullHydrate); err != nil {
		o.errors.Handle(err, where)
		return err
	}
	o.errors.Reset(where)
	return nil
}

func (o *Orchestrator) runPhase(j job, phase string, fn func(context.Context, string) (*snapshot.Snapshot, error)) error {
	o.mu.Lock()
	state := o.states[j.dataset]
	state.Phase = phase
	state.StartedAt = o.now()
	o.mu.Unlock()
	o.publish(o.event(j, phase, models.StatusStarted))

	started := time.Now()
	ctx, cancel := o.readContext()
	snap, err := fn(ctx, j.dataset)
	cancel()
	if err != nil {
		err = helpers.NewRefreshError(fmt.Sprintf("%s of %s failed", phase, j.dataset), err)
		o.logger.Error("%v", err)
		ev := o.event(j, phase, models.StatusFailed)
		ev.Duration = time.Since(started)
		ev.Error = err.Error()
		o.publish(ev)
		return err
	}

	version := o.snapshots.Install(snap)
	o.logger.Info("%s of %s installed snapshot v%d (%d rows, latest %s) in %v",
		phase, j.dataset, version, snap.Rows, snap.LatestDate.Format(time.DateOnly), time.Since(started))
	ev := o.event(j, phase, models.StatusCompleted)
	ev.Duration = time.Since(started)
	ev.Rows = snap.Rows
	ev.SnapshotVersion = version
	o.publish(ev)
	return nil
}

func (o *Orchestrator) readContext() (context.Context, context.CancelFunc) {
	if o.readTimeout <= 0 {
		return context.WithCancel(o.ctx)
	}
	return context.WithTimeout(o.ctx, o.readTimeout)
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) partialHydrate(ctx context.Context, dataset string) (*snapshot.Snapshot, error) {
	rows, err := helpers.RetryWithBackoff(ctx, o.logger, "read latest "+dataset, o.maxRetries, o.backoff,
		func(ctx context.Context) ([]models.MRawRow, error) {
			return o.store.ReadLatest(ctx, dataset)
		})
	if err != nil {
		return nil, err
	}
	points, stats := ingestion.Normalize(dataset, rows)
	o.logNormalize(dataset, "latest", stats)
	return snapshot.BuildPartial(o.snapshots.Get(dataset), dataset, points, o.buildOpts)
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) fullHydrate(ctx context.Context, dataset string) (*snapshot.Snapshot, error) {
	rows, err := helpers.RetryWithBackoff(ctx, o.logger, "read history "+dataset, o.maxRetries, o.backoff,
		func(ctx context.Context) ([]models.MRawRow, error) {
			return o.store.ReadHistory(ctx, dataset)
		})
	if err != nil {
		return nil, err
	}
	points, stats := ingestion.Normalize(dataset, rows)
	o.logNormalize(dataset, "history", stats)
	return snapshot.Build(ctx, dataset, points, o.buildOpts)
}

func (o *Orchestrator) logNormalize(dataset, what string, s models.MNormalizeStats) {
	o.logger.Debug("%s %s: %d rows in, %d out, %d duplicates, %d bad prices, %d bad keys",
		dataset, what, s.InputRows, s.OutputRows, s.Duplicates, s.DroppedPrice, s.DroppedKey)
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) event(j job, phase, status string) models.MRefreshEvent {
	return models.MRefreshEvent{
		JobID:     j.id,
		Dataset:   j.dataset,
		Phase:     phase,
		Status:    status,
		Timestamp: o.now(),
	}
}

func (o *Orchestrator) publish(ev models.MRefreshEvent) {
	if o.bus != nil {
		o.bus.Publish(ev)
	}
}
