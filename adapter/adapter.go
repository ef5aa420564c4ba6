// Package adapter keeps one app's local copy of the shared sign types in step
// with the bus and exposes the domain API to that app.
package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/logging"
	"github.com/c0deZ3R0/signsync/models"
	"github.com/c0deZ3R0/signsync/observable"
	"github.com/c0deZ3R0/signsync/synckit"
)

// Query types answered by HandleDataRequest in addition to the usage queries.
const (
	QueryGetSignTypes = "getSignTypes"
	QueryGetSignType  = "getSignType"
)

// Adapter is safe for concurrent use. Event handlers only ever assign or
// delete by code, so replaying an event leaves the cache unchanged.
type Adapter struct {
	bus     *bus.Bus
	mgr     *synckit.Manager
	appName string
	cache   *observable.Store[string, models.SignType]

	mode       Mode
	selfFilter bool
	hooks      Hooks
	logger     *slog.Logger
	autoSync   bool
	debounce   time.Duration
	usage      synckit.UsageProvider

	mu           sync.Mutex
	started      bool
	cancelShared bus.CancelFunc
}

// New creates the adapter for appName. mgr must be bound to the same bus.
func New(b *bus.Bus, mgr *synckit.Manager, appName string, opts ...Option) (*Adapter, error) {
	if b == nil || mgr == nil {
		return nil, errors.NewValidationError(errors.OpConfig, fmt.Errorf("bus and manager are required"))
	}
	if mgr.Bus() != b {
		return nil, errors.NewValidationError(errors.OpConfig, fmt.Errorf("manager for %s is bound to a different bus", mgr.AppName()))
	}
	if appName == "" {
		return nil, errors.NewValidationError(errors.OpConfig, fmt.Errorf("app name is required"))
	}

	a := &Adapter{
		bus:     b,
		mgr:     mgr,
		appName: appName,
		mode:    ModeIncremental,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.OrDefault(nil, "adapter")
	}
	a.logger = a.logger.With("app", appName)

	var syncFn observable.SyncFunc[string, models.SignType]
	if a.autoSync {
		syncFn = a.pushSnapshot
	}
	a.cache = observable.NewStore(syncFn,
		observable.WithDebounce(a.debounce),
		observable.WithLogger(a.logger),
		observable.WithErrorHandler(func(err error) {
			a.bus.ReportError(context.Background(), a.appName, err)
		}))
	return a, nil
}

// Start subscribes the adapter's handlers and loads the current registry. It
// may be called again after Stop.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	if err := a.mgr.InitializeApp(ctx, a.appName, a.handlers()); err != nil {
		return err
	}
	a.cancelShared = a.bus.Subscribe(bus.TopicSharedDataChanged, a.appName, a.onSharedDataChanged)
	a.cache.Reopen()
	a.started = true
	a.Resync(ctx)
	a.logger.Info("adapter started", "mode", a.mode, "self_filter", a.selfFilter, "auto_sync", a.autoSync)
	return nil
}

// Stop unsubscribes the handlers, flushes a pending auto-sync and closes the cache.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.mgr.Unsubscribe(a.appName)
	if a.cancelShared != nil {
		a.cancelShared()
	}
	a.started = false
	err := a.cache.Flush(ctx)
	a.cache.Close()
	return err
}

// Mode returns the configured sync mode.
func (a *Adapter) Mode() Mode { return a.mode }

// Cache exposes the local store. Direct writes are pushed to the registry
// only when auto-sync is enabled.
func (a *Adapter) Cache() *observable.Store[string, models.SignType] { return a.cache }

// Flush pushes a pending auto-sync now.
func (a *Adapter) Flush(ctx context.Context) error { return a.cache.Flush(ctx) }

// Resync rebuilds the cache from the shared registry.
func (a *Adapter) Resync(ctx context.Context) {
	registry := a.bus.SignTypes()
	a.cache.ApplyIncoming(func(tx *observable.Tx[string, models.SignType]) {
		tx.Clear()
		for code, st := range registry {
			tx.Set(code, *st)
		}
	})
	a.logger.Debug("cache resynced", "sign_types", len(registry))
	a.changed(sortedKeys(registry)...)
}

func (a *Adapter) pushSnapshot(ctx context.Context, snapshot map[string]models.SignType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := make(map[string]*models.SignType, len(snapshot))
	for code, st := range snapshot {
		next[code] = st.Clone()
	}
	if err := a.bus.UpdateSignTypes(ctx, next, a.appName); err != nil {
		return err
	}
	a.bus.MarkDirty(ctx, a.appName, "auto-sync")
	return nil
}

func sortedKeys(m map[string]*models.SignType) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Adapter) changed(codes ...string) {
	if a.hooks.OnChange != nil && len(codes) > 0 {
		a.hooks.OnChange(codes)
	}
}

func (a *Adapter) put(st *models.SignType) {
	if st == nil {
		return
	}
	a.cache.ApplyIncoming(func(tx *observable.Tx[string, models.SignType]) {
		tx.Set(st.Code, *st.Clone())
	})
}

func (a *Adapter) drop(code string) {
	a.cache.ApplyIncoming(func(tx *observable.Tx[string, models.SignType]) {
		tx.Delete(code)
	})
}

// CreateSignType creates st through the manager and caches the result.
func (a *Adapter) CreateSignType(ctx context.Context, st models.SignType) (*models.SignType, error) {
	created, err := a.mgr.CreateSignType(ctx, st, a.appName)
	if err != nil {
		return nil, err
	}
	a.put(created)
	return created, nil
}

func (a *Adapter) UpdateSignType(ctx context.Context, code string, u synckit.SignTypeUpdate) (*models.SignType, error) {
	updated, err := a.mgr.UpdateSignType(ctx, code, u, a.appName)
	if err != nil {
		return nil, err
	}
	a.put(updated)
	return updated, nil
}

// DeleteSignType returns false without error when confirm declines.
func (a *Adapter) DeleteSignType(ctx context.Context, code string, confirm synckit.ConfirmFunc) (bool, error) {
	ok, err := a.mgr.DeleteSignType(ctx, code, a.appName, confirm)
	if err != nil || !ok {
		return ok, err
	}
	a.drop(code)
	return true, nil
}

// AddTextFieldLayer adds a text field to the sign type.
func (a *Adapter) AddTextFieldLayer(ctx context.Context, code, fieldName string, opts synckit.FieldOptions) (*models.SignType, error) {
	updated, err := a.mgr.AddTextField(ctx, code, fieldName, opts, a.appName)
	if err != nil {
		return nil, err
	}
	a.put(updated)
	return updated, nil
}

func (a *Adapter) RemoveTextField(ctx context.Context, code, fieldName string, confirm synckit.ConfirmFunc) (bool, error) {
	ok, err := a.mgr.RemoveTextField(ctx, code, fieldName, a.appName, confirm)
	if err != nil || !ok {
		return ok, err
	}
	if st, found := a.bus.SignType(code); found {
		a.put(st)
	}
	return true, nil
}

// Import replaces the cache with types in one bulk write, as when a project
// is loaded. With auto-sync the registry is replaced once before Import
// returns; otherwise only this app's cache changes. OnChange fires only when
// the push succeeded.
func (a *Adapter) Import(ctx context.Context, types []models.SignType) error {
	const op = errors.OpConfig
	seen := make(map[string]bool, len(types))
	clean := make([]*models.SignType, 0, len(types))
	for i := range types {
		st := types[i].Clone()
		st.ApplyDefaults()
		if err := st.Validate(); err != nil {
			return errors.NewValidationError(op, err)
		}
		if seen[st.Code] {
			return errors.NewDuplicateError(op, fmt.Errorf("Sign type %s already exists", st.Code))
		}
		seen[st.Code] = true
		clean = append(clean, st)
	}

	err := a.cache.Suppress(ctx, func(tx *observable.Tx[string, models.SignType]) {
		tx.Clear()
		for _, st := range clean {
			tx.Set(st.Code, *st)
		}
	})
	if err != nil {
		return err
	}
	codes := make([]string, len(clean))
	for i, st := range clean {
		codes[i] = st.Code
	}
	sort.Strings(codes)
	a.changed(codes...)
	return nil
}

// GetSignType returns a copy of the cached sign type.
func (a *Adapter) GetSignType(code string) (*models.SignType, bool) {
	st, ok := a.cache.Get(code)
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// GetSignTypes returns copies of all cached sign types sorted by code.
func (a *Adapter) GetSignTypes() []*models.SignType {
	snap := a.cache.Snapshot()
	out := make([]*models.SignType, 0, len(snap))
	for _, st := range snap {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Replay feeds recorded events through the same handlers used for live
// delivery. All events are applied; their errors are joined.
func (a *Adapter) Replay(ctx context.Context, events []bus.Event) error {
	h := a.handlers()
	var errs []error
	for _, ev := range events {
		var err error
		if ev.Topic == bus.TopicSharedDataChanged {
			err = a.onSharedDataChanged(ctx, ev)
		} else {
			err = h.Dispatch(ctx, ev)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("replay %s %s: %w", ev.Topic, ev.ID, err))
		}
	}
	a.logger.Debug("events replayed", "count", len(events), "failed", len(errs))
	return stderrors.Join(errs...)
}

// HandleDataRequest answers sign type lookups from the cache and, when a
// usage provider is configured, usage queries for cascade checks. Apps that
// own an adapter can delegate to it.
func (a *Adapter) HandleDataRequest(ctx context.Context, fromApp string, q bus.Query) bus.Response {
	switch q.Type {
	case QueryGetSignTypes:
		return bus.Response{Data: a.GetSignTypes()}
	case QueryGetSignType:
		code := q.Param("code")
		st, ok := a.GetSignType(code)
		if !ok {
			return bus.Failure(errors.ErrCodeNotFound, "Sign type %s not found", code)
		}
		return bus.Response{Data: st}
	case synckit.QuerySignsForType:
		if a.usage == nil {
			return bus.UnknownQuery(q)
		}
		signs, err := a.usage.SignsForType(ctx, q.Param("code"))
		if err != nil {
			return bus.Failure(errors.ErrCodeRequestFailure, "%v", err)
		}
		return bus.Response{Data: signs}
	case synckit.QuerySignsWithFieldData:
		if a.usage == nil {
			return bus.UnknownQuery(q)
		}
		signs, err := a.usage.SignsWithFieldData(ctx, q.Param("code"), q.Param("field"))
		if err != nil {
			return bus.Failure(errors.ErrCodeRequestFailure, "%v", err)
		}
		return bus.Response{Data: signs}
	}
	return bus.UnknownQuery(q)
}
