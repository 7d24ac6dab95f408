package telemetry

import (
	"math"
	"sync"
	"time"
)

// roundingFactor scales values for two-decimal rounding.
const roundingFactor = 100

// Store is the shared state hub for all telemetry readings.
//
// Producers (the MQTT power feed, the pollers) write the latest sample
// per kind; consumers (the scheduler, the API, websocket sessions) read
// them back. The store also tracks how many live observers are watching,
// which the scheduler uses to gate expensive polling, and owns the
// lazily-built shared resources (sink, feed) via GetOrCreate.
//
// Thread Safety: all methods are safe for concurrent use. Each kind has
// its own lock, so writers of different kinds never contend.
type Store struct {
	entries map[Kind]*entry

	observerMu sync.Mutex
	observers  int

	resourceMu sync.Mutex
	resources  map[string]any
	building   map[string]*sync.Mutex
}

// entry holds the latest sample for one kind under its own lock.
type entry struct {
	mu     sync.RWMutex
	sample Sample
	set    bool
}

// NewStore creates an empty telemetry store.
func NewStore() *Store {
	entries := make(map[Kind]*entry, len(Kinds()))
	for _, k := range Kinds() {
		entries[k] = &entry{}
	}
	return &Store{
		entries:   entries,
		resources: make(map[string]any),
		building:  make(map[string]*sync.Mutex),
	}
}

// SetLatest records a new reading for the given kind.
//
// The value is rounded to two decimal places before storage. Unknown
// kinds are ignored.
//
// Parameters:
//   - kind: Which reading category this sample belongs to
//   - value: The raw reading
//   - observedAt: When the reading was taken
func (s *Store) SetLatest(kind Kind, value float64, observedAt time.Time) {
	e, ok := s.entries[kind]
	if !ok {
		return
	}

	rounded := math.Round(value*roundingFactor) / roundingFactor

	e.mu.Lock()
	e.sample = Sample{Value: rounded, ObservedAt: observedAt}
	e.set = true
	e.mu.Unlock()
}

// Latest returns the most recent sample for the given kind.
//
// Returns:
//   - Sample: The latest reading (zero value if none recorded)
//   - bool: false if no reading has ever been recorded for this kind
func (s *Store) Latest(kind Kind) (Sample, bool) {
	e, ok := s.entries[kind]
	if !ok {
		return Sample{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sample, e.set
}

// Snapshot returns a copy of the latest sample for every kind that has
// received at least one reading. The returned map is owned by the caller.
func (s *Store) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.entries))
	for kind, e := range s.entries {
		e.mu.RLock()
		if e.set {
			snap[kind] = e.sample
		}
		e.mu.RUnlock()
	}
	return snap
}

// AddObserver registers one live observer (e.g. a websocket session)
// and returns the new observer count.
func (s *Store) AddObserver() int {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	s.observers++
	return s.observers
}

// RemoveObserver deregisters one observer and returns the new count.
// The count never goes below zero, even on unbalanced calls.
func (s *Store) RemoveObserver() int {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	if s.observers > 0 {
		s.observers--
	}
	return s.observers
}

// Observers returns the current observer count.
func (s *Store) Observers() int {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	return s.observers
}

// GetOrCreate returns the shared resource registered under key,
// building it with factory on first use.
//
// Construction is single-flight per key: concurrent callers for the
// same key wait for one factory invocation rather than racing. If the
// factory fails, nil is returned and the failure is NOT cached, so the
// next caller retries construction.
//
// Parameters:
//   - key: Resource identifier (e.g. "sink", "power_feed")
//   - factory: Builds the resource; called at most once per attempt
//
// Returns:
//   - any: The cached or freshly built resource, nil if factory failed
func (s *Store) GetOrCreate(key string, factory func() (any, error)) any {
	s.resourceMu.Lock()
	if r, ok := s.resources[key]; ok {
		s.resourceMu.Unlock()
		return r
	}
	keyMu, ok := s.building[key]
	if !ok {
		keyMu = &sync.Mutex{}
		s.building[key] = keyMu
	}
	s.resourceMu.Unlock()

	keyMu.Lock()
	defer keyMu.Unlock()

	// Re-check: another goroutine may have built it while we waited
	s.resourceMu.Lock()
	if r, ok := s.resources[key]; ok {
		s.resourceMu.Unlock()
		return r
	}
	s.resourceMu.Unlock()

	r, err := factory()
	if err != nil || r == nil {
		return nil
	}

	s.resourceMu.Lock()
	s.resources[key] = r
	s.resourceMu.Unlock()
	return r
}

// Resource returns the resource registered under key without building,
// or nil if it has not been created.
func (s *Store) Resource(key string) any {
	s.resourceMu.Lock()
	defer s.resourceMu.Unlock()
	return s.resources[key]
}
