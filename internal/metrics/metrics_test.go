package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestSetCountsConcurrently(t *testing.T) {
	s := New(4, true, false)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Inc(2)
			}
		}()
	}
	wg.Wait()
	if got := s.Value(2); got != 5000 {
		t.Fatalf("expected 5000, got %d", got)
	}
}

func TestSetDisabledAndOutOfRange(t *testing.T) {
	s := New(2, false, true)
	s.Inc(0)
	if s.Value(0) != 0 {
		t.Fatal("disabled set must not count")
	}
	if s.LatencyEnabled() {
		t.Fatal("latency requires the set to be enabled")
	}

	var nilSet *Set
	nilSet.Inc(0)
	nilSet.Observe(0, time.Millisecond)

	on := New(2, true, false)
	on.Inc(-1)
	on.Inc(7)
	if on.Value(7) != 0 {
		t.Fatal("out of range id must read zero")
	}
}

func TestSetHistogram(t *testing.T) {
	s := New(3, true, true)
	s.Observe(1, 3*time.Millisecond)
	s.Observe(1, 40*time.Millisecond)
	s.Observe(1, 2*time.Second)

	b := s.Buckets(1)
	if len(b) != BucketCount || b[0] != 1 || b[3] != 1 || b[7] != 1 {
		t.Fatalf("unexpected buckets %v", b)
	}
}
