// Package bus is the in-process message bus that connects the apps of a
// project: app registry and lifecycle, topic pub/sub, request/reply between
// apps, and the shared sign type registry.
package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/logging"
	"github.com/c0deZ3R0/signsync/models"
)

// Bus is safe for concurrent use. One Bus exists per project.
type Bus struct {
	mu       sync.RWMutex
	apps     map[string]*appEntry
	topics   map[Topic][]*subscription
	wildcard []*subscription
	nextSub  uint64

	registryMu sync.Mutex
	registry   atomic.Pointer[map[string]*models.SignType]

	inflight atomic.Int64
	queue    dispatchQueue

	requestTimeout time.Duration
	mode           DispatchMode
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string
}

// New creates a Bus with an empty app registry and sign type registry.
func New(opts ...Option) *Bus {
	b := &Bus{
		apps:           make(map[string]*appEntry),
		topics:         make(map[Topic][]*subscription),
		requestTimeout: DefaultRequestTimeout,
		mode:           DispatchSync,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.OrDefault(nil, "bus")
	}
	empty := map[string]*models.SignType{}
	b.registry.Store(&empty)
	return b
}

// RequestTimeout returns the configured SendRequest bound.
func (b *Bus) RequestTimeout() time.Duration { return b.requestTimeout }

// DispatchMode returns the configured handler dispatch mode.
func (b *Bus) DispatchMode() DispatchMode { return b.mode }

// Register adds an app under name. The candidate must implement every
// method of App; HandleDataRequest is optional. Registration publishes
// app:registered.
func (b *Bus) Register(ctx context.Context, name string, candidate any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		err := errors.NewValidationError(errors.OpRegister, fmt.Errorf("app name is required"))
		b.logger.Warn("app registration rejected", "error", err)
		return err
	}

	caps := CheckCapabilities(candidate)
	if missing := caps.Missing(); len(missing) > 0 {
		err := errors.NewCapabilityError(errors.OpRegister,
			fmt.Errorf("app %s is missing required capabilities: %s", name, strings.Join(missing, ", "))).
			WithMetadata("app", name).
			WithMetadata("missing", missing)
		b.logger.Warn("app registration rejected", "app", name, "missing", missing)
		return err
	}

	b.mu.Lock()
	if _, exists := b.apps[name]; exists {
		b.mu.Unlock()
		err := errors.NewDuplicateError(errors.OpRegister, fmt.Errorf("app %s is already registered", name)).
			WithMetadata("app", name)
		b.logger.Warn("app registration rejected", "app", name, "error", err)
		return err
	}
	b.apps[name] = &appEntry{
		name:         name,
		app:          candidate.(App),
		status:       StatusRegistered,
		registeredAt: b.now(),
	}
	b.mu.Unlock()

	b.logger.Info("app registered", "app", name, "answers_queries", caps.HandleDataRequest)
	b.Emit(ctx, name, AppRegistered{AppName: name})
	return nil
}

// Status returns the lifecycle status of name, or StatusUnregistered.
func (b *Bus) Status(name string) AppStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if e, ok := b.apps[name]; ok {
		return e.status
	}
	return StatusUnregistered
}

// App returns a view of a registered app.
func (b *Bus) App(name string) (AppInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.apps[name]
	if !ok {
		return AppInfo{}, false
	}
	_, answers := e.app.(DataRequestHandler)
	return AppInfo{
		Name:         e.name,
		Status:       e.status,
		LastError:    e.lastErr,
		RegisteredAt: e.registeredAt,
		AnswersQuery: answers,
	}, true
}

// RegisteredApps returns the registered app names in sorted order.
func (b *Bus) RegisteredApps() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.apps))
	for name := range b.apps {
		names = append(names, name)
	}
	b.mu.RUnlock()
	sort.Strings(names)
	return names
}

// transition moves name from one of the allowed states to via, runs step
// without holding the lock, then settles on success or StatusError.
func (b *Bus) transition(ctx context.Context, name string, allowed []AppStatus, via, success AppStatus, step func(App, context.Context) error) error {
	b.mu.Lock()
	e, ok := b.apps[name]
	if !ok {
		b.mu.Unlock()
		return errors.NewNotFoundError(errors.OpLifecycle, fmt.Errorf("app %s is not registered", name))
	}
	permitted := false
	for _, s := range allowed {
		if e.status == s {
			permitted = true
			break
		}
	}
	if !permitted {
		from := e.status
		b.mu.Unlock()
		return errors.NewValidationError(errors.OpLifecycle,
			fmt.Errorf("app %s cannot move from %s to %s", name, from, success)).
			WithMetadata("app", name)
	}
	e.status = via
	app := e.app
	b.mu.Unlock()

	err := b.safeCall(func() error { return step(app, ctx) })

	b.mu.Lock()
	if err != nil {
		e.status = StatusError
		e.lastErr = err
	} else {
		e.status = success
		e.lastErr = nil
	}
	b.mu.Unlock()

	if err != nil {
		wrapped := errors.NewWithComponent(errors.OpLifecycle, "bus", fmt.Errorf("app %s: %w", name, err))
		b.logger.Error("app lifecycle step failed", "app", name, "target", success, "error", err)
		b.ReportError(ctx, name, wrapped)
		return wrapped
	}
	b.logger.Debug("app lifecycle step", "app", name, "status", success)
	return nil
}

func (b *Bus) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// InitializeApp runs the app's Initialize step. On success the app is INACTIVE.
func (b *Bus) InitializeApp(ctx context.Context, name string) error {
	return b.transition(ctx, name,
		[]AppStatus{StatusRegistered, StatusError},
		StatusInitializing, StatusInactive,
		func(a App, ctx context.Context) error { return a.Initialize(ctx) })
}

// ActivateApp moves an initialized app to ACTIVE.
func (b *Bus) ActivateApp(ctx context.Context, name string) error {
	return b.transition(ctx, name,
		[]AppStatus{StatusInactive},
		StatusInactive, StatusActive,
		func(a App, ctx context.Context) error { return a.Activate(ctx) })
}

// DeactivateApp moves an ACTIVE app back to INACTIVE.
func (b *Bus) DeactivateApp(ctx context.Context, name string) error {
	return b.transition(ctx, name,
		[]AppStatus{StatusActive},
		StatusActive, StatusInactive,
		func(a App, ctx context.Context) error { return a.Deactivate(ctx) })
}

// ExportAll collects a snapshot from every registered app. Apps that fail
// are left out of the result and their errors joined.
func (b *Bus) ExportAll(ctx context.Context) (map[string]Snapshot, error) {
	out := make(map[string]Snapshot)
	var errs []error
	for _, name := range b.RegisteredApps() {
		b.mu.RLock()
		e, ok := b.apps[name]
		b.mu.RUnlock()
		if !ok {
			continue
		}
		var snap Snapshot
		err := b.safeCall(func() error {
			var err error
			snap, err = e.app.ExportData(ctx)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("export %s: %w", name, err))
			continue
		}
		out[name] = snap
	}
	return out, stderrors.Join(errs...)
}

// ImportAll hands each snapshot to the app of the same name. Snapshots for
// unknown apps are reported as errors.
func (b *Bus) ImportAll(ctx context.Context, snapshots map[string]Snapshot) error {
	names := make([]string, 0, len(snapshots))
	for name := range snapshots {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		b.mu.RLock()
		e, ok := b.apps[name]
		b.mu.RUnlock()
		if !ok {
			errs = append(errs, errors.NewNotFoundError(errors.OpLifecycle, fmt.Errorf("app %s is not registered", name)))
			continue
		}
		snap := snapshots[name]
		if err := b.safeCall(func() error { return e.app.ImportData(ctx, snap) }); err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", name, err))
		}
	}
	return stderrors.Join(errs...)
}
