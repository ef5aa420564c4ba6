// Package observable provides a keyed in-memory store whose local writes are
// pushed to a sync function after a debounce window.
package observable

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c0deZ3R0/signsync/logging"
)

// DefaultDebounce is the window used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// SyncFunc receives a copy of the store contents once writes settle.
type SyncFunc[K comparable, V any] func(ctx context.Context, snapshot map[K]V) error

type options struct {
	debounce time.Duration
	logger   *slog.Logger
	onError  func(error)
}

// Option configures a Store.
type Option func(*options)

// WithDebounce sets the quiet period after the last write before a sync fires.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorHandler receives errors returned by debounced syncs.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// Store is safe for concurrent use.
type Store[K comparable, V any] struct {
	mu      sync.Mutex
	data    map[K]V
	timer   *time.Timer
	gen     uint64
	pending bool
	closed  bool

	syncMu sync.Mutex
	syncFn SyncFunc[K, V]
	syncs  atomic.Int64

	opts options
}

// NewStore creates an empty store. A nil syncFn makes the store purely local.
func NewStore[K comparable, V any](syncFn SyncFunc[K, V], opts ...Option) *Store[K, V] {
	o := options{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.OrDefault(nil, "observable")
	}
	return &Store[K, V]{
		data:   make(map[K]V),
		syncFn: syncFn,
		opts:   o,
	}
}

// Set stores v under k and schedules a sync.
func (s *Store[K, V]) Set(k K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[k] = v
	s.scheduleLocked()
}

// Delete removes k and schedules a sync when k was present.
func (s *Store[K, V]) Delete(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[k]; !ok {
		return false
	}
	delete(s.data, k)
	s.scheduleLocked()
	return true
}

func (s *Store[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[k]
	return v, ok
}

func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Keys returns the keys in unspecified order.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]K, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a shallow copy of the contents.
func (s *Store[K, V]) Snapshot() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store[K, V]) copyLocked() map[K]V {
	out := make(map[K]V, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Tx is the write handle passed to ApplyIncoming and Suppress. It is only
// valid inside the callback.
type Tx[K comparable, V any] struct {
	s       *Store[K, V]
	changed bool
}

func (tx *Tx[K, V]) Set(k K, v V) {
	tx.s.data[k] = v
	tx.changed = true
}

func (tx *Tx[K, V]) Delete(k K) bool {
	if _, ok := tx.s.data[k]; !ok {
		return false
	}
	delete(tx.s.data, k)
	tx.changed = true
	return true
}

func (tx *Tx[K, V]) Get(k K) (V, bool) {
	v, ok := tx.s.data[k]
	return v, ok
}

// Clear removes every entry.
func (tx *Tx[K, V]) Clear() {
	if len(tx.s.data) == 0 {
		return
	}
	tx.s.data = make(map[K]V)
	tx.changed = true
}

func (tx *Tx[K, V]) Len() int { return len(tx.s.data) }

// ApplyIncoming runs fn with the store locked and without scheduling a sync.
// It is used for writes that arrived from the sync target, so they are not
// echoed back. fn must not call methods on the Store itself.
func (s *Store[K, V]) ApplyIncoming(fn func(tx *Tx[K, V])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx[K, V]{s: s})
}

// Suppress runs fn as one bulk write. If fn changed anything, pending
// debounced syncs are cancelled and a single sync runs before Suppress
// returns.
func (s *Store[K, V]) Suppress(ctx context.Context, fn func(tx *Tx[K, V])) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	tx := &Tx[K, V]{s: s}
	fn(tx)
	if !tx.changed || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked()
	snapshot := s.copyLocked()
	s.mu.Unlock()
	return s.syncLocked(ctx, snapshot)
}

// Flush runs a pending sync immediately. It is a no-op when nothing is pending.
func (s *Store[K, V]) Flush(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked()
	snapshot := s.copyLocked()
	s.mu.Unlock()
	return s.syncLocked(ctx, snapshot)
}

// Pending reports whether a debounced sync is scheduled.
func (s *Store[K, V]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// SyncCount returns the number of sync calls made so far.
func (s *Store[K, V]) SyncCount() int64 { return s.syncs.Load() }

// Close cancels any pending sync. Writes after Close stay local.
func (s *Store[K, V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancelLocked()
}

// Reopen undoes Close. Writes made while closed are not synced until the
// next write.
func (s *Store[K, V]) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

func (s *Store[K, V]) scheduleLocked() {
	if s.closed || s.syncFn == nil {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending = true
	s.timer = time.AfterFunc(s.opts.debounce, func() { s.fire(gen) })
}

func (s *Store[K, V]) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
}

// fire waits for any running sync before taking its snapshot, so a sync that
// lost the race to Flush or a newer write sees a stale gen and gives up.
func (s *Store[K, V]) fire(gen uint64) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.timer = nil
	snapshot := s.copyLocked()
	s.mu.Unlock()

	if err := s.syncLocked(context.Background(), snapshot); err != nil && s.opts.onError != nil {
		s.opts.onError(err)
	}
}

// syncLocked calls syncFn. The caller holds syncMu.
func (s *Store[K, V]) syncLocked(ctx context.Context, snapshot map[K]V) error {
	if s.syncFn == nil {
		return nil
	}
	s.syncs.Add(1)
	if err := s.syncFn(ctx, snapshot); err != nil {
		s.opts.logger.Error("store sync failed", "entries", len(snapshot), "error", err)
		return err
	}
	s.opts.logger.Debug("store synced", "entries", len(snapshot))
	return nil
}
