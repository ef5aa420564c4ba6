package bus

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds SendRequest when no timeout is configured.
const DefaultRequestTimeout = 5 * time.Second

// DispatchMode selects how handlers run relative to the publisher.
type DispatchMode string

const (
	// DispatchSync runs every handler before the publish call returns.
	DispatchSync DispatchMode = "sync"
	// DispatchAsync runs handlers on a background goroutine, in subscription order.
	DispatchAsync DispatchMode = "async"
)

// ParseDispatchMode accepts "sync" or "async", case-insensitively. Empty means sync.
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch DispatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DispatchSync:
		return DispatchSync, nil
	case DispatchAsync:
		return DispatchAsync, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRequestTimeout bounds every SendRequest. Zero or negative keeps the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.requestTimeout = d
		}
	}
}

// WithDispatchMode selects sync or async handler dispatch.
func WithDispatchMode(mode DispatchMode) Option {
	return func(b *Bus) {
		if mode != "" {
			b.mode = mode
		}
	}
}

// WithClock overrides the timestamp source for events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(gen func() string) Option {
	return func(b *Bus) {
		if gen != nil {
			b.newID = gen
		}
	}
}
