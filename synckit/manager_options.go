package synckit

import (
	"fmt"
	"log/slog"
	"time"
)

// ManagerOption is a functional option for configuring a Manager via NewManager.
type ManagerOption func(*Manager) error

// WithUsageProvider sets where cascade checks look up affected signs.
func WithUsageProvider(u UsageProvider) ManagerOption {
	return func(m *Manager) error {
		if u == nil {
			return fmt.Errorf("usage provider is nil")
		}
		m.usage = u
		return nil
	}
}

// WithConflictResolution selects the conflict policy by name.
func WithConflictResolution(name string) ManagerOption {
	return func(m *Manager) error {
		r, err := ResolverByName(name)
		if err != nil {
			return err
		}
		m.resolver = r
		return nil
	}
}

// WithConflictResolver sets a custom conflict resolution strategy.
func WithConflictResolver(r ConflictResolver) ManagerOption {
	return func(m *Manager) error {
		if r == nil {
			return fmt.Errorf("conflict resolver is nil")
		}
		m.resolver = r
		return nil
	}
}

// WithLogger sets a custom logger for the Manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) ManagerOption {
	return func(m *Manager) error {
		if mc != nil {
			m.metrics = mc
		}
		return nil
	}
}

// WithClock overrides the LastModified timestamp source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

// WithLWW is convenience for the Last-Write-Wins strategy.
func WithLWW() ManagerOption {
	return WithConflictResolver(&LastWriteWinsResolver{})
}
