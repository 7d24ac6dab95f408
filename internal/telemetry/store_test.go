package telemetry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_SetLatestRoundsToTwoDecimals(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"no fraction", 1500, 1500},
		{"two decimals kept", 1.25, 1.25},
		{"rounds down", 0.123, 0.12},
		{"rounds up", 0.126, 0.13},
		{"half rounds away from zero", 0.125, 0.13},
		{"negative export", -432.567, -432.57},
		{"long fraction", 2.999999, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.SetLatest(KindGridPower, tt.value, time.Now())

			got, ok := s.Latest(KindGridPower)
			if !ok {
				t.Fatal("expected sample to be set")
			}
			if got.Value != tt.want {
				t.Errorf("Value = %v, want %v", got.Value, tt.want)
			}
		})
	}
}

func TestStore_LatestUnsetKind(t *testing.T) {
	s := NewStore()

	if _, ok := s.Latest(KindSpotPrice); ok {
		t.Error("expected no sample for unset kind")
	}
}

func TestStore_LatestUnknownKind(t *testing.T) {
	s := NewStore()
	s.SetLatest(Kind("bogus"), 1.0, time.Now())

	if _, ok := s.Latest(Kind("bogus")); ok {
		t.Error("unknown kind should never report a sample")
	}
}

func TestStore_KindsIndependent(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.SetLatest(KindGridPower, 1200, now)
	s.SetLatest(KindSpotPrice, 0.85, now.Add(time.Second))

	grid, ok := s.Latest(KindGridPower)
	if !ok || grid.Value != 1200 {
		t.Errorf("grid = %v (ok=%v), want 1200", grid.Value, ok)
	}
	price, ok := s.Latest(KindSpotPrice)
	if !ok || price.Value != 0.85 {
		t.Errorf("price = %v (ok=%v), want 0.85", price.Value, ok)
	}
	if _, ok := s.Latest(KindSolarProduction); ok {
		t.Error("solar should be unset")
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.SetLatest(KindGridPower, 500, now)
	s.SetLatest(KindSolarProduction, 2300, now)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}
	if snap[KindGridPower].Value != 500 {
		t.Errorf("grid = %v, want 500", snap[KindGridPower].Value)
	}
	if _, ok := snap[KindSpotPrice]; ok {
		t.Error("unset kind should be absent from snapshot")
	}

	// Snapshot is a copy: later writes must not leak into it
	s.SetLatest(KindGridPower, 999, now)
	if snap[KindGridPower].Value != 500 {
		t.Error("snapshot mutated by later write")
	}
}

func TestStore_ObserverCount(t *testing.T) {
	s := NewStore()

	if got := s.AddObserver(); got != 1 {
		t.Errorf("AddObserver = %d, want 1", got)
	}
	if got := s.AddObserver(); got != 2 {
		t.Errorf("AddObserver = %d, want 2", got)
	}
	if got := s.RemoveObserver(); got != 1 {
		t.Errorf("RemoveObserver = %d, want 1", got)
	}
	if got := s.Observers(); got != 1 {
		t.Errorf("Observers = %d, want 1", got)
	}
}

func TestStore_RemoveObserverClampsAtZero(t *testing.T) {
	s := NewStore()

	if got := s.RemoveObserver(); got != 0 {
		t.Errorf("RemoveObserver on empty store = %d, want 0", got)
	}
	s.AddObserver()
	s.RemoveObserver()
	if got := s.RemoveObserver(); got != 0 {
		t.Errorf("unbalanced RemoveObserver = %d, want 0", got)
	}
}

func TestStore_ObserverCountConcurrent(t *testing.T) {
	s := NewStore()

	const (
		sessions  = 20
		churns    = 50
		extraAdds = 50
	)

	var wg sync.WaitGroup
	var negative atomic.Bool

	// Paired open/close churn: every remove follows its own add, so
	// the true count never dips below zero and the clamp stays idle.
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < churns; j++ {
				if s.AddObserver() < 1 {
					negative.Store(true)
				}
				if s.RemoveObserver() < 0 {
					negative.Store(true)
				}
			}
		}()
	}

	// Unpaired opens that remain at the end.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < extraAdds; j++ {
			s.AddObserver()
		}
	}()

	wg.Wait()

	if negative.Load() {
		t.Error("observer count observed below zero")
	}
	if got := s.Observers(); got != extraAdds {
		t.Errorf("Observers = %d, want %d (adds minus removes)", got, extraAdds)
	}
}

func TestStore_GetOrCreateCachesResource(t *testing.T) {
	s := NewStore()
	calls := 0

	first := s.GetOrCreate("sink", func() (any, error) {
		calls++
		return "resource", nil
	})
	second := s.GetOrCreate("sink", func() (any, error) {
		calls++
		return "other", nil
	})

	if first != "resource" || second != "resource" {
		t.Errorf("got %v, %v; want cached resource both times", first, second)
	}
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
}

func TestStore_GetOrCreateDoesNotCacheFailure(t *testing.T) {
	s := NewStore()

	got := s.GetOrCreate("sink", func() (any, error) {
		return nil, errors.New("connect refused")
	})
	if got != nil {
		t.Fatalf("expected nil on factory failure, got %v", got)
	}

	// Next attempt must retry the factory
	got = s.GetOrCreate("sink", func() (any, error) {
		return "resource", nil
	})
	if got != "resource" {
		t.Errorf("retry after failure = %v, want resource", got)
	}
}

func TestStore_GetOrCreateSingleFlight(t *testing.T) {
	s := NewStore()

	var calls int
	var callsMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.GetOrCreate("feed", func() (any, error) {
				callsMu.Lock()
				calls++
				callsMu.Unlock()
				time.Sleep(10 * time.Millisecond)
				return "feed", nil
			})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("factory called %d times under contention, want 1", calls)
	}
}

func TestStore_ConcurrentReadWrite(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(v float64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetLatest(KindGridPower, v, time.Now())
			}
		}(float64(i))
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Latest(KindGridPower)
				s.Snapshot()
			}
		}()
	}
	wg.Wait()
}

func TestKind_Valid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindGridPower, true},
		{KindSpotPrice, true},
		{KindSolarProduction, true},
		{Kind(""), false},
		{Kind("voltage"), false},
	}

	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("Kind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestSample_Age(t *testing.T) {
	now := time.Now()
	s := Sample{Value: 1, ObservedAt: now.Add(-30 * time.Second)}

	if got := s.Age(now); got != 30*time.Second {
		t.Errorf("Age = %v, want 30s", got)
	}
}
