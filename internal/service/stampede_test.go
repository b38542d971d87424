package service

import (
	"sync"
	"testing"
)

// TestMissTracker_Begin verifies concurrent counts per key and that ending a miss twice is harmless.
func TestMissTracker_Begin(t *testing.T) {
	m := newMissTracker()
	key := "london2024:06:01:14"

	n1, done1 := m.begin(key)
	n2, done2 := m.begin(key)
	if n1 != 1 || n2 != 2 {
		t.Errorf("begin counts = %d, %d; want 1, 2", n1, n2)
	}
	if n, done := m.begin("paris2024:06:01:14"); n != 1 {
		t.Errorf("other key count = %d, want 1", n)
	} else {
		done()
	}

	done1()
	done1()
	if got := m.inFlight(key); got != 1 {
		t.Errorf("inFlight after one done = %d, want 1", got)
	}
	done2()
	if got := m.inFlight(key); got != 0 {
		t.Errorf("inFlight after all done = %d, want 0", got)
	}
}

func TestMissTracker_Concurrent(t *testing.T) {
	m := newMissTracker()
	key := "london2024:06:01:14"
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, done := m.begin(key)
			done()
		}()
	}
	wg.Wait()
	if got := m.inFlight(key); got != 0 {
		t.Errorf("inFlight = %d, want 0", got)
	}
}
