package snapshot

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Store maps dataset keys to their current snapshot. Reads are lock-free;
// Install is the only way a snapshot becomes visible.
type Store struct {
	slots   sync.Map // dataset -> *atomic.Pointer[Snapshot]
	version atomic.Uint64
}

func NewStore() *Store {
	return &Store{}
}

// -----------------------------------------------------------------------------

func (s *Store) slot(dataset string) *atomic.Pointer[Snapshot] {
	if p, ok := s.slots.Load(dataset); ok {
		return p.(*atomic.Pointer[Snapshot])
	}
	p, _ := s.slots.LoadOrStore(dataset, new(atomic.Pointer[Snapshot]))
	return p.(*atomic.Pointer[Snapshot])
}

// -----------------------------------------------------------------------------

// Get returns the installed snapshot of a dataset, nil when none is
func (s *Store) Get(dataset string) *Snapshot {
	p, ok := s.slots.Load(dataset)
	if !ok {
		return nil
	}
	return p.(*atomic.Pointer[Snapshot]).Load()
}

// -----------------------------------------------------------------------------

// Install stamps snap with the next version and publishes it in one atomic
// swap. Readers already holding the previous snapshot keep a consistent view.
// snap must not be shared before this call.
func (s *Store) Install(snap *Snapshot) uint64 {
	snap.Version = s.version.Add(1)
	s.slot(snap.Dataset).Store(snap)
	return snap.Version
}

// -----------------------------------------------------------------------------

// Datasets lists datasets that have a snapshot, sorted
func (s *Store) Datasets() []string {
	var out []string
	s.slots.Range(func(k, v any) bool {
		if v.(*atomic.Pointer[Snapshot]).Load() != nil {
			out = append(out, k.(string))
		}
		return true
	})
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

// FindSymbol returns the first dataset, in key order, whose snapshot holds symbol
func (s *Store) FindSymbol(symbol string) (*Snapshot, bool) {
	for _, ds := range s.Datasets() {
		snap := s.Get(ds)
		if snap == nil {
			continue
		}
		if _, ok := snap.Series(symbol); ok {
			return snap, true
		}
	}
	return nil, false
}
