// Package synckit implements the domain operations on shared sign types:
// validated create, update and delete, text field management with cascade
// confirmation, and typed event emission over the bus.
package synckit

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/logging"
	"github.com/c0deZ3R0/signsync/models"
)

// ErrManagerClosed is wrapped by every call made after Close.
var ErrManagerClosed = stderrors.New("sync manager is closed")

// ConfirmFunc asks the user whether a cascade may proceed. It may block on
// user interaction; no lock is held while it runs.
type ConfirmFunc func(ctx context.Context, warning string) (bool, error)

// FieldOptions configures a new text field.
type FieldOptions struct {
	MaxLength int
}

// SignTypeUpdate lists the fields to change. Nil pointers and a nil
// TextFields slice leave the current value in place.
type SignTypeUpdate struct {
	Name                 *string
	Color                *string
	TextColor            *string
	TextFields           []models.TextField
	DesignReference      *string
	ClearDesignReference bool
}

func (u SignTypeUpdate) apply(st *models.SignType) []string {
	var changed []string
	if u.Name != nil && *u.Name != st.Name {
		st.Name = *u.Name
		changed = append(changed, "name")
	}
	if u.Color != nil && *u.Color != st.Color {
		st.Color = *u.Color
		changed = append(changed, "color")
	}
	if u.TextColor != nil && *u.TextColor != st.TextColor {
		st.TextColor = *u.TextColor
		changed = append(changed, "textColor")
	}
	if u.TextFields != nil && !sameFields(u.TextFields, st.TextFields) {
		st.TextFields = append([]models.TextField{}, u.TextFields...)
		changed = append(changed, "textFields")
	}
	switch {
	case u.ClearDesignReference && st.DesignReference != nil:
		st.DesignReference = nil
		changed = append(changed, "designReference")
	case u.DesignReference != nil && (st.DesignReference == nil || *st.DesignReference != *u.DesignReference):
		ref := *u.DesignReference
		st.DesignReference = &ref
		changed = append(changed, "designReference")
	}
	return changed
}

func sameFields(a, b []models.TextField) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Manager runs domain operations for one app. Every registry write goes
// through bus.MutateSignTypes, so writes from all managers on a bus are
// serialized and each lands as one atomic replace.
type Manager struct {
	bus      *bus.Bus
	appName  string
	usage    UsageProvider
	resolver ConflictResolver
	metrics  MetricsCollector
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	subs   map[string][]bus.CancelFunc
	closed bool
}

// NewManager creates the manager for appName on b.
func NewManager(b *bus.Bus, appName string, opts ...ManagerOption) (*Manager, error) {
	if b == nil {
		return nil, errors.NewValidationError(errors.OpConfig, fmt.Errorf("bus is required"))
	}
	if strings.TrimSpace(appName) == "" {
		return nil, errors.NewValidationError(errors.OpConfig, fmt.Errorf("app name is required"))
	}

	m := &Manager{
		bus:      b,
		appName:  appName,
		usage:    noUsage{},
		resolver: &LastWriteWinsResolver{},
		metrics:  &NoOpMetricsCollector{},
		now:      time.Now,
		subs:     make(map[string][]bus.CancelFunc),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.NewWithComponent(errors.OpConfig, "synckit", err)
		}
	}
	if m.logger == nil {
		m.logger = logging.OrDefault(nil, "synckit")
	}
	m.logger = m.logger.With("app", appName)
	m.resolver = NewObservableResolver(m.resolver, m.metrics, m.logger)
	return m, nil
}

// AppName returns the app this manager acts for.
func (m *Manager) AppName() string { return m.appName }

// Bus returns the underlying bus.
func (m *Manager) Bus() *bus.Bus { return m.bus }

// InitializeApp subscribes h for appName on every domain topic. Calling it
// again for the same app replaces the previous handler table.
func (m *Manager) InitializeApp(ctx context.Context, appName string, h Handlers) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		err := errors.NewWithComponent(errors.OpLifecycle, "synckit", ErrManagerClosed)
		m.logger.Error("Cannot initialize app: manager is closed", "error", err)
		return err
	}
	for _, cancel := range m.subs[appName] {
		cancel()
	}

	cancels := make([]bus.CancelFunc, 0, len(bus.DomainTopics))
	for _, topic := range bus.DomainTopics {
		cancels = append(cancels, m.bus.Subscribe(topic, appName, h.Dispatch))
	}
	m.subs[appName] = cancels
	m.logger.Debug("app handlers subscribed", "target_app", appName, "topics", len(cancels))
	return nil
}

// Unsubscribe removes the handler table installed for appName.
func (m *Manager) Unsubscribe(appName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.subs[appName] {
		cancel()
	}
	delete(m.subs, appName)
}

// Close removes every subscription made by this manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for app, cancels := range m.subs {
		for _, cancel := range cancels {
			cancel()
		}
		delete(m.subs, app)
	}
	m.logger.Debug("sync manager closed")
	return nil
}

// checkOpen rejects mutations once Close has run.
func (m *Manager) checkOpen(op errors.Operation) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		return nil
	}
	return m.fail(op, errors.NewWithComponent(op, "synckit", ErrManagerClosed))
}

func (m *Manager) succeed(op errors.Operation, start time.Time, attrs ...any) {
	d := m.now().Sub(start)
	m.metrics.RecordOperation(string(op), d)
	m.logger.Info("sign type operation completed", append([]any{"operation", op, "duration", d}, attrs...)...)
}

func (m *Manager) fail(op errors.Operation, err error, attrs ...any) error {
	code := errors.CodeOf(err)
	if code == "" {
		code = "UNKNOWN"
	}
	m.metrics.RecordOperationError(string(op), string(code))
	m.logger.Warn("sign type operation failed", append([]any{"operation", op, "error", err}, attrs...)...)
	return err
}

func notFound(op errors.Operation, code string) error {
	return errors.NewNotFoundError(op, fmt.Errorf("Sign type %s not found", code)).WithMetadata("code", code)
}

// afterWrite publishes the event for a completed registry replace and marks
// the project dirty. Handler failures have already been reported on
// system:error by the bus and are not rolled back.
func (m *Manager) afterWrite(ctx context.Context, sourceApp string, p bus.Payload, reason string) {
	d := m.bus.Emit(ctx, sourceApp, p)
	if m.bus.DispatchMode() == bus.DispatchSync {
		if err := d.Err(); err != nil {
			m.logger.Warn("event handlers failed after registry replace", "topic", p.Topic(), "error", err)
		}
	}
	m.bus.MarkDirty(ctx, sourceApp, reason)
}

// CreateSignType validates st and inserts it. The registry is unchanged on failure.
func (m *Manager) CreateSignType(ctx context.Context, st models.SignType, sourceApp string) (*models.SignType, error) {
	const op = errors.OpCreateSignType
	start := m.now()
	if err := m.checkOpen(op); err != nil {
		return nil, err
	}

	candidate := st.Clone()
	candidate.ApplyDefaults()
	candidate.LastModified = m.now()
	if err := candidate.Validate(); err != nil {
		return nil, m.fail(op, errors.NewValidationError(op, err), "code", st.Code)
	}

	err := m.bus.MutateSignTypes(ctx, sourceApp, func(draft map[string]*models.SignType) error {
		if _, exists := draft[candidate.Code]; exists {
			return errors.NewDuplicateError(op, fmt.Errorf("Sign type %s already exists", candidate.Code)).
				WithMetadata("code", candidate.Code)
		}
		draft[candidate.Code] = candidate.Clone()
		return nil
	})
	if err != nil {
		return nil, m.fail(op, err, "code", candidate.Code)
	}

	m.afterWrite(ctx, sourceApp, bus.SignTypeCreated{SignType: candidate.Clone()}, "sign type created")
	m.succeed(op, start, "code", candidate.Code, "source", sourceApp)
	return candidate, nil
}

// UpdateSignType merges u into the record for code through the conflict policy
// and stamps LastModified.
func (m *Manager) UpdateSignType(ctx context.Context, code string, u SignTypeUpdate, sourceApp string) (*models.SignType, error) {
	const op = errors.OpUpdateSignType
	start := m.now()
	if err := m.checkOpen(op); err != nil {
		return nil, err
	}

	var (
		updated  *models.SignType
		previous *models.SignType
		changed  []string
	)
	err := m.bus.MutateSignTypes(ctx, sourceApp, func(draft map[string]*models.SignType) error {
		current, ok := draft[code]
		if !ok {
			return notFound(op, code)
		}
		proposed := current.Clone()
		changed = u.apply(proposed)
		proposed.LastModified = m.now()
		if err := proposed.Validate(); err != nil {
			return errors.NewValidationError(op, err)
		}

		res, err := m.resolver.Resolve(ctx, Conflict{
			Code:          code,
			SourceApp:     sourceApp,
			ChangedFields: changed,
			Current:       current,
			Proposed:      proposed,
		})
		if err != nil {
			return errors.NewWithComponent(op, "synckit", err)
		}
		if res.SignType == nil || res.SignType.Code != code {
			return errors.NewValidationError(op, fmt.Errorf("conflict policy returned no record for %s", code))
		}
		previous = current.Clone()
		updated = res.SignType.Clone()
		draft[code] = res.SignType.Clone()
		return nil
	})
	if err != nil {
		return nil, m.fail(op, err, "code", code)
	}

	m.afterWrite(ctx, sourceApp, bus.SignTypeUpdated{
		SignType: updated.Clone(),
		Previous: previous,
		Changes:  changed,
	}, "sign type updated")
	m.succeed(op, start, "code", code, "changes", changed)
	return updated, nil
}

// DeleteSignType removes code. When signs still use the type and confirm is
// set, confirm decides; a false answer returns (false, nil) and leaves the
// registry untouched.
func (m *Manager) DeleteSignType(ctx context.Context, code, sourceApp string, confirm ConfirmFunc) (bool, error) {
	const op = errors.OpDeleteSignType
	start := m.now()
	if err := m.checkOpen(op); err != nil {
		return false, err
	}

	if _, ok := m.bus.SignType(code); !ok {
		return false, m.fail(op, notFound(op, code))
	}

	affected, err := m.usage.SignsForType(ctx, code)
	if err != nil {
		return false, m.fail(op, errors.NewRequestError(op, fmt.Errorf("usage lookup for %s: %w", code, err)), "code", code)
	}
	if len(affected) > 0 && confirm != nil {
		warning := fmt.Sprintf("Deleting sign type %s will remove %d sign(s) that use it. Continue?", code, len(affected))
		ok, err := confirm(ctx, warning)
		if err != nil {
			return false, m.fail(op, errors.NewWithComponent(op, "synckit", fmt.Errorf("confirm: %w", err)), "code", code)
		}
		m.metrics.RecordCascade(string(op), len(affected), ok)
		if !ok {
			m.logger.Info("sign type delete declined", "code", code, "affected", len(affected))
			return false, nil
		}
	}

	var deleted *models.SignType
	err = m.bus.MutateSignTypes(ctx, sourceApp, func(draft map[string]*models.SignType) error {
		st, ok := draft[code]
		if !ok {
			return notFound(op, code)
		}
		deleted = st.Clone()
		delete(draft, code)
		return nil
	})
	if err != nil {
		return false, m.fail(op, err, "code", code)
	}

	cascaded := make([]models.SignInstance, len(affected))
	for i, s := range affected {
		cascaded[i] = s.Clone()
	}
	m.afterWrite(ctx, sourceApp, bus.SignTypeDeleted{
		Code:          code,
		SignType:      deleted,
		CascadedSigns: cascaded,
	}, "sign type deleted")
	m.succeed(op, start, "code", code, "cascaded", len(cascaded))
	return true, nil
}

// AddTextField appends fieldName to the sign type.
func (m *Manager) AddTextField(ctx context.Context, code, fieldName string, opts FieldOptions, sourceApp string) (*models.SignType, error) {
	const op = errors.OpAddTextField
	start := m.now()
	if err := m.checkOpen(op); err != nil {
		return nil, err
	}

	field := models.TextField{FieldName: fieldName, MaxLength: opts.MaxLength}
	if err := field.Validate(); err != nil {
		return nil, m.fail(op, errors.NewValidationError(op, err), "code", code)
	}

	var updated *models.SignType
	err := m.bus.MutateSignTypes(ctx, sourceApp, func(draft map[string]*models.SignType) error {
		current, ok := draft[code]
		if !ok {
			return notFound(op, code)
		}
		if current.HasField(fieldName) {
			return errors.NewDuplicateError(op, fmt.Errorf("Field %s already exists on sign type %s", fieldName, code)).
				WithMetadata("code", code).
				WithMetadata("field", fieldName)
		}
		next := current.Clone()
		if err := next.AddField(field); err != nil {
			return errors.NewValidationError(op, err)
		}
		next.LastModified = m.now()
		draft[code] = next
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, m.fail(op, err, "code", code, "field", fieldName)
	}

	m.afterWrite(ctx, sourceApp, bus.SignTypeFieldAdded{
		Code:     code,
		Field:    field,
		SignType: updated.Clone(),
	}, "text field added")
	m.succeed(op, start, "code", code, "field", fieldName)
	return updated, nil
}

// RemoveTextField drops fieldName. Signs holding data for the field go
// through the same confirmation as DeleteSignType.
func (m *Manager) RemoveTextField(ctx context.Context, code, fieldName, sourceApp string, confirm ConfirmFunc) (bool, error) {
	const op = errors.OpRemoveTextField
	start := m.now()
	if err := m.checkOpen(op); err != nil {
		return false, err
	}

	st, ok := m.bus.SignType(code)
	if !ok {
		return false, m.fail(op, notFound(op, code))
	}
	if !st.HasField(fieldName) {
		return false, m.fail(op, errors.NewNotFoundError(op,
			fmt.Errorf("Field %s not found on sign type %s", fieldName, code)), "code", code)
	}

	affected, err := m.usage.SignsWithFieldData(ctx, code, fieldName)
	if err != nil {
		return false, m.fail(op, errors.NewRequestError(op, fmt.Errorf("usage lookup for %s.%s: %w", code, fieldName, err)), "code", code)
	}
	if len(affected) > 0 && confirm != nil {
		warning := fmt.Sprintf("Removing field %s from sign type %s will discard data on %d sign(s). Continue?",
			fieldName, code, len(affected))
		ok, err := confirm(ctx, warning)
		if err != nil {
			return false, m.fail(op, errors.NewWithComponent(op, "synckit", fmt.Errorf("confirm: %w", err)), "code", code)
		}
		m.metrics.RecordCascade(string(op), len(affected), ok)
		if !ok {
			m.logger.Info("text field removal declined", "code", code, "field", fieldName, "affected", len(affected))
			return false, nil
		}
	}

	var updated *models.SignType
	err = m.bus.MutateSignTypes(ctx, sourceApp, func(draft map[string]*models.SignType) error {
		current, ok := draft[code]
		if !ok {
			return notFound(op, code)
		}
		next := current.Clone()
		if !next.RemoveField(fieldName) {
			return errors.NewNotFoundError(op, fmt.Errorf("Field %s not found on sign type %s", fieldName, code))
		}
		next.LastModified = m.now()
		draft[code] = next
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return false, m.fail(op, err, "code", code, "field", fieldName)
	}

	signs := make([]models.SignInstance, len(affected))
	for i, s := range affected {
		signs[i] = s.Clone()
	}
	m.afterWrite(ctx, sourceApp, bus.SignTypeFieldRemoved{
		Code:          code,
		FieldName:     fieldName,
		SignType:      updated,
		AffectedSigns: signs,
	}, "text field removed")
	m.succeed(op, start, "code", code, "field", fieldName, "affected", len(signs))
	return true, nil
}
