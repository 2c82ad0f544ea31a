package dashboard

import (
	"sync"

	"github.com/lox/jwstcurves/internal/metrics"
)

// memo holds computed views keyed by their full input tuple. The oldest
// entry is evicted once capacity is reached.
type memo[T any] struct {
	mu       sync.Mutex
	view     string
	capacity int
	entries  map[string]T
	order    []string
}

func newMemo[T any](view string, capacity int) *memo[T] {
	return &memo[T]{view: view, capacity: capacity, entries: make(map[string]T)}
}

func (m *memo[T]) get(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if ok {
		metrics.MemoTotal.WithLabelValues(m.view, "hit").Inc()
	} else {
		metrics.MemoTotal.WithLabelValues(m.view, "miss").Inc()
	}
	return v, ok
}

func (m *memo[T]) put(key string, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		m.entries[key] = v
		return
	}
	for len(m.order) >= m.capacity && len(m.order) > 0 {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
	m.entries[key] = v
	m.order = append(m.order, key)
}

func (m *memo[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
