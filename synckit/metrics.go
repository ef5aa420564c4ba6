package synckit

import (
	"sync"
	"time"
)

// MetricsCollector provides hooks for collecting domain operation metrics
type MetricsCollector interface {
	// RecordOperation records a successful operation and how long it took
	RecordOperation(operation string, duration time.Duration)

	// RecordOperationError records a failed operation by error code
	RecordOperationError(operation string, code string)

	// RecordCascade records a cascade decision and how many signs it affected
	RecordCascade(operation string, affected int, confirmed bool)

	// RecordConflict records a conflict policy decision
	RecordConflict(code string, decision string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordOperation(operation string, duration time.Duration)     {}
func (n *NoOpMetricsCollector) RecordOperationError(operation string, code string)           {}
func (n *NoOpMetricsCollector) RecordCascade(operation string, affected int, confirmed bool) {}
func (n *NoOpMetricsCollector) RecordConflict(code string, decision string)                  {}

// MetricsSnapshot is a point-in-time copy of an InMemoryMetricsCollector.
type MetricsSnapshot struct {
	Operations        map[string]int
	Errors            map[string]int
	CascadesConfirmed int
	CascadesDeclined  int
	CascadedSigns     int
	Conflicts         map[string]int
	TotalDuration     time.Duration
}

// InMemoryMetricsCollector counts operations in memory.
type InMemoryMetricsCollector struct {
	mu sync.Mutex
	s  MetricsSnapshot
}

func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{s: MetricsSnapshot{
		Operations: make(map[string]int),
		Errors:     make(map[string]int),
		Conflicts:  make(map[string]int),
	}}
}

func (m *InMemoryMetricsCollector) RecordOperation(operation string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Operations[operation]++
	m.s.TotalDuration += duration
}

func (m *InMemoryMetricsCollector) RecordOperationError(operation string, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Errors[operation+":"+code]++
}

func (m *InMemoryMetricsCollector) RecordCascade(operation string, affected int, confirmed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if confirmed {
		m.s.CascadesConfirmed++
		m.s.CascadedSigns += affected
		return
	}
	m.s.CascadesDeclined++
}

func (m *InMemoryMetricsCollector) RecordConflict(code string, decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Conflicts[decision]++
}

// Snapshot returns a copy of the counters.
func (m *InMemoryMetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.s
	out.Operations = copyCounts(m.s.Operations)
	out.Errors = copyCounts(m.s.Errors)
	out.Conflicts = copyCounts(m.s.Conflicts)
	return out
}

func copyCounts(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
