package service

import "sync"

// missTracker counts concurrent forecast misses per cache key. Without coalescing, two or more
// concurrent misses for one key each call upstream (last write wins); the count makes that visible.
type missTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissTracker() *missTracker {
	return &missTracker{active: make(map[string]int)}
}

// begin registers a miss for key and returns the number of misses now in progress for it,
// together with the func that ends this miss.
func (m *missTracker) begin(key string) (int, func()) {
	m.mu.Lock()
	m.active[key]++
	n := m.active[key]
	m.mu.Unlock()

	var once sync.Once
	return n, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.active[key] <= 1 {
				delete(m.active, key)
				return
			}
			m.active[key]--
		})
	}
}

func (m *missTracker) inFlight(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[key]
}
