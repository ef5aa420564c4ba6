package synckit

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/logging"
	"github.com/c0deZ3R0/signsync/models"
)

func sampleType(code string) *models.SignType {
	st := models.NewSignType(code, "Room ID")
	st.TextFields = []models.TextField{{FieldName: "roomNumber", MaxLength: 6}}
	return st
}

func signs(code string, n int) []models.SignInstance {
	out := make([]models.SignInstance, n)
	for i := range out {
		out[i] = models.SignInstance{
			ID:           fmt.Sprintf("sign-%d", i),
			SignTypeCode: code,
			FieldData:    map[string]string{"roomNumber": fmt.Sprintf("10%d", i)},
		}
	}
	return out
}

type fixture struct {
	bus     *bus.Bus
	mgr     *Manager
	metrics *InMemoryMetricsCollector
	now     time.Time

	mu     sync.Mutex
	events []bus.Event
}

func newFixture(t *testing.T, opts ...ManagerOption) *fixture {
	t.Helper()
	f := &fixture{
		bus:     bus.New(bus.WithLogger(logging.Discard())),
		metrics: NewInMemoryMetricsCollector(),
		now:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.bus.SubscribeAll("recorder", func(_ context.Context, ev bus.Event) error {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
		return nil
	})
	base := []ManagerOption{
		WithLogger(logging.Discard()),
		WithMetricsCollector(f.metrics),
		WithClock(func() time.Time { return f.now }),
	}
	mgr, err := NewManager(f.bus, "designer", append(base, opts...)...)
	require.NoError(t, err)
	f.mgr = mgr
	return f
}

func (f *fixture) topics() []bus.Topic {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bus.Topic, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Topic
	}
	return out
}

func (f *fixture) last(topic bus.Topic) (bus.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Topic == topic {
			return f.events[i], true
		}
	}
	return bus.Event{}, false
}

func (f *fixture) reset() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

func confirmWith(answer bool, seen *string) ConfirmFunc {
	return func(_ context.Context, warning string) (bool, error) {
		if seen != nil {
			*seen = warning
		}
		return answer, nil
	}
}

func TestCreateSignType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)
	assert.Equal(t, f.now, created.LastModified)

	st, ok := f.bus.SignType("I.1")
	require.True(t, ok)
	assert.Equal(t, "Room ID", st.Name)

	assert.Equal(t, []bus.Topic{
		bus.TopicSharedDataChanged,
		bus.TopicSignTypeCreated,
		bus.TopicProjectDirty,
	}, f.topics())

	ev, _ := f.last(bus.TopicSignTypeCreated)
	assert.Equal(t, "designer", ev.SourceApp)
	assert.Equal(t, "I.1", ev.Payload.(bus.SignTypeCreated).SignType.Code)

	assert.Equal(t, 1, f.metrics.Snapshot().Operations[string(errors.OpCreateSignType)])
}

func TestCreateSignType_Duplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)
	f.reset()

	dup := sampleType("I.1")
	dup.Name = "Other"
	_, err = f.mgr.CreateSignType(ctx, *dup, "plans")
	require.Error(t, err)
	assert.True(t, errors.IsDuplicate(err))
	assert.Contains(t, err.Error(), "Sign type I.1 already exists")

	st, _ := f.bus.SignType("I.1")
	assert.Equal(t, "Room ID", st.Name, "registry unchanged")
	assert.Empty(t, f.topics(), "failures are not broadcast")
	assert.Equal(t, 1, f.metrics.Snapshot().Errors[string(errors.OpCreateSignType)+":DUPLICATE"])
}

func TestCreateSignType_Invalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.CreateSignType(ctx, *models.NewSignType("bad code", "X"), "designer")
	assert.True(t, errors.IsValidation(err))

	_, err = f.mgr.CreateSignType(ctx, models.SignType{Code: "A1"}, "designer")
	assert.ErrorContains(t, err, "name is required")

	assert.Empty(t, f.bus.SignTypes())
	assert.Empty(t, f.topics())
}

func TestCreateSignType_AppliesDefaults(t *testing.T) {
	f := newFixture(t)

	created, err := f.mgr.CreateSignType(context.Background(), models.SignType{Code: "W.1", Name: "Wayfinding"}, "designer")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultColor, created.Color)
	assert.Equal(t, models.DefaultTextColor, created.TextColor)
	assert.NotNil(t, created.TextFields)
}

func TestUpdateSignType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.UpdateSignType(ctx, "I.1", SignTypeUpdate{}, "designer")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "Sign type I.1 not found")

	_, err = f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	name, color := "Room Identification", "#000"
	updated, err := f.mgr.UpdateSignType(ctx, "I.1", SignTypeUpdate{Name: &name, Color: &color}, "plans")
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, f.now, updated.LastModified)

	ev, ok := f.last(bus.TopicSignTypeUpdated)
	require.True(t, ok)
	p := ev.Payload.(bus.SignTypeUpdated)
	assert.Equal(t, []string{"name", "color"}, p.Changes)
	assert.Equal(t, "Room ID", p.Previous.Name)
	assert.Equal(t, "plans", ev.SourceApp)

	bad := "red"
	_, err = f.mgr.UpdateSignType(ctx, "I.1", SignTypeUpdate{Color: &bad}, "plans")
	assert.True(t, errors.IsValidation(err))
	st, _ := f.bus.SignType("I.1")
	assert.Equal(t, "#000", st.Color)

	assert.Equal(t, 1, f.metrics.Snapshot().Conflicts["keep_proposed"])
}

func TestUpdateSignType_DesignReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)

	ref := "templates/I.1.svg"
	updated, err := f.mgr.UpdateSignType(ctx, "I.1", SignTypeUpdate{DesignReference: &ref}, "designer")
	require.NoError(t, err)
	require.NotNil(t, updated.DesignReference)
	assert.Equal(t, ref, *updated.DesignReference)

	updated, err = f.mgr.UpdateSignType(ctx, "I.1", SignTypeUpdate{ClearDesignReference: true}, "designer")
	require.NoError(t, err)
	assert.Nil(t, updated.DesignReference)
}

func TestDeleteSignType_CascadeConfirm(t *testing.T) {
	ctx := context.Background()
	const n = 3
	usage := UsageFuncs{ForType: func(_ context.Context, code string) ([]models.SignInstance, error) {
		return signs(code, n), nil
	}}
	f := newFixture(t, WithUsageProvider(usage))
	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)
	f.reset()

	var warning string
	ok, err := f.mgr.DeleteSignType(ctx, "I.1", "designer", confirmWith(false, &warning))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, warning, "3 sign(s)")
	_, exists := f.bus.SignType("I.1")
	assert.True(t, exists, "declined cascade leaves the registry untouched")
	assert.Empty(t, f.topics())

	ok, err = f.mgr.DeleteSignType(ctx, "I.1", "designer", confirmWith(true, nil))
	require.NoError(t, err)
	assert.True(t, ok)
	_, exists = f.bus.SignType("I.1")
	assert.False(t, exists)

	ev, found := f.last(bus.TopicSignTypeDeleted)
	require.True(t, found)
	p := ev.Payload.(bus.SignTypeDeleted)
	assert.Equal(t, "I.1", p.Code)
	assert.Len(t, p.CascadedSigns, n)
	assert.Equal(t, "Room ID", p.SignType.Name)

	snap := f.metrics.Snapshot()
	assert.Equal(t, 1, snap.CascadesDeclined)
	assert.Equal(t, 1, snap.CascadesConfirmed)
	assert.Equal(t, n, snap.CascadedSigns)
}

func TestDeleteSignType_WithoutUsageOrConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithUsageProvider(UsageFuncs{ForType: func(_ context.Context, code string) ([]models.SignInstance, error) {
		return signs(code, 2), nil
	}}))
	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)

	ok, err := f.mgr.DeleteSignType(ctx, "I.1", "designer", nil)
	require.NoError(t, err)
	assert.True(t, ok, "no confirm callback means no prompt")

	_, err = f.mgr.DeleteSignType(ctx, "I.1", "designer", nil)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteSignType_Failures(t *testing.T) {
	ctx := context.Background()
	lookupErr := stderrors.New("plans offline")
	f := newFixture(t, WithUsageProvider(UsageFuncs{ForType: func(context.Context, string) ([]models.SignInstance, error) {
		return nil, lookupErr
	}}))
	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)

	_, err = f.mgr.DeleteSignType(ctx, "I.1", "designer", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, lookupErr)
	assert.True(t, errors.IsRetryable(err))

	f2 := newFixture(t, WithUsageProvider(UsageFuncs{ForType: func(_ context.Context, code string) ([]models.SignInstance, error) {
		return signs(code, 1), nil
	}}))
	_, err = f2.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)
	_, err = f2.mgr.DeleteSignType(ctx, "I.1", "designer", func(context.Context, string) (bool, error) {
		return false, stderrors.New("dialog closed")
	})
	assert.ErrorContains(t, err, "dialog closed")
	_, exists := f2.bus.SignType("I.1")
	assert.True(t, exists)
}

func TestAddTextField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)

	updated, err := f.mgr.AddTextField(ctx, "I.1", "occupant", FieldOptions{MaxLength: 40}, "designer")
	require.NoError(t, err)
	assert.Equal(t, []string{"roomNumber", "occupant"}, updated.FieldNames())

	ev, ok := f.last(bus.TopicSignTypeFieldAdded)
	require.True(t, ok)
	assert.Equal(t, models.TextField{FieldName: "occupant", MaxLength: 40}, ev.Payload.(bus.SignTypeFieldAdded).Field)

	_, err = f.mgr.AddTextField(ctx, "I.1", "occupant", FieldOptions{}, "designer")
	require.Error(t, err)
	assert.True(t, errors.IsDuplicate(err))

	_, err = f.mgr.AddTextField(ctx, "I.1", "9bad", FieldOptions{}, "designer")
	assert.True(t, errors.IsValidation(err))

	_, err = f.mgr.AddTextField(ctx, "I.9", "floor", FieldOptions{}, "designer")
	assert.True(t, errors.IsNotFound(err))
	assert.ErrorContains(t, err, "Sign type I.9 not found")

	st, _ := f.bus.SignType("I.1")
	assert.Len(t, st.TextFields, 2)
}

func TestRemoveTextField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithUsageProvider(UsageFuncs{
		WithFieldData: func(_ context.Context, code, field string) ([]models.SignInstance, error) {
			return signs(code, 2), nil
		},
	}))
	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)

	_, err = f.mgr.RemoveTextField(ctx, "I.1", "missing", "designer", nil)
	assert.True(t, errors.IsNotFound(err))

	ok, err := f.mgr.RemoveTextField(ctx, "I.1", "roomNumber", "designer", confirmWith(false, nil))
	require.NoError(t, err)
	assert.False(t, ok)
	st, _ := f.bus.SignType("I.1")
	assert.True(t, st.HasField("roomNumber"))

	ok, err = f.mgr.RemoveTextField(ctx, "I.1", "roomNumber", "designer", confirmWith(true, nil))
	require.NoError(t, err)
	assert.True(t, ok)
	st, _ = f.bus.SignType("I.1")
	assert.False(t, st.HasField("roomNumber"))

	ev, found := f.last(bus.TopicSignTypeFieldRemoved)
	require.True(t, found)
	p := ev.Payload.(bus.SignTypeFieldRemoved)
	assert.Equal(t, "roomNumber", p.FieldName)
	assert.Len(t, p.AffectedSigns, 2)
}

func TestInitializeAppRoutesTypedPayloads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var created, deleted []string
	require.NoError(t, f.mgr.InitializeApp(ctx, "plans", Handlers{
		SignTypeCreated: func(_ context.Context, ev bus.Event, p bus.SignTypeCreated) error {
			created = append(created, p.SignType.Code)
			return nil
		},
		SignTypeDeleted: func(_ context.Context, ev bus.Event, p bus.SignTypeDeleted) error {
			deleted = append(deleted, p.Code)
			return nil
		},
	}))

	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)
	_, err = f.mgr.AddTextField(ctx, "I.1", "floor", FieldOptions{}, "designer")
	require.NoError(t, err, "nil handler entries ignore their events")
	_, err = f.mgr.DeleteSignType(ctx, "I.1", "designer", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"I.1"}, created)
	assert.Equal(t, []string{"I.1"}, deleted)

	// Re-initializing replaces the table rather than stacking a second one.
	require.NoError(t, f.mgr.InitializeApp(ctx, "plans", Handlers{
		SignTypeCreated: func(_ context.Context, ev bus.Event, p bus.SignTypeCreated) error {
			created = append(created, "again:"+p.SignType.Code)
			return nil
		},
	}))
	_, err = f.mgr.CreateSignType(ctx, *sampleType("I.2"), "designer")
	require.NoError(t, err)
	assert.Equal(t, []string{"I.1", "again:I.2"}, created)

	f.mgr.Unsubscribe("plans")
	_, err = f.mgr.CreateSignType(ctx, *sampleType("I.3"), "designer")
	require.NoError(t, err)
	assert.Len(t, created, 2)

	require.NoError(t, f.mgr.Close())
	assert.Error(t, f.mgr.InitializeApp(ctx, "plans", Handlers{}))
}

func TestEmitters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tpl := &models.DesignTemplate{SignTypeCode: "I.1"}
	require.NoError(t, f.mgr.EmitTemplateEvent(ctx, TemplateCreated, tpl, "designer"))
	require.NoError(t, f.mgr.EmitTemplateEvent(ctx, TemplateUpdated, tpl, "designer"))
	require.NoError(t, f.mgr.EmitTemplateEvent(ctx, TemplateDeleted, tpl, "designer"))
	assert.Error(t, f.mgr.EmitTemplateEvent(ctx, "archived", tpl, "designer"))
	assert.Error(t, f.mgr.EmitTemplateEvent(ctx, TemplateCreated, nil, "designer"))

	require.NoError(t, f.mgr.EmitSignMessageChanged(ctx, "sign-1", "I.1", "Room 101", "plans"))
	require.NoError(t, f.mgr.EmitSignNotesChanged(ctx, "sign-1", "I.1", "check mount", "plans"))
	assert.True(t, errors.IsValidation(f.mgr.EmitSignNotesChanged(ctx, "", "I.1", "x", "plans")))

	ev, ok := f.last(bus.TopicSignMessageChanged)
	require.True(t, ok)
	assert.Equal(t, "Room 101", ev.Payload.(bus.SignMessageChanged).Message)

	ev, ok = f.last(bus.TopicTemplateDeleted)
	require.True(t, ok)
	assert.Equal(t, "I.1", ev.Payload.(bus.TemplateDeleted).SignTypeCode)
}

func TestConcurrentCreatesAllLand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.mgr.CreateSignType(ctx, *sampleType(fmt.Sprintf("T.%d", i%10)), "designer")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var dups int
	for err := range errs {
		if err != nil {
			require.True(t, errors.IsDuplicate(err), err)
			dups++
		}
	}
	assert.Equal(t, 10, dups)
	assert.Len(t, f.bus.SignTypes(), 10)
}

func TestClosedManagerRejectsMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.CreateSignType(ctx, *sampleType("I.1"), "designer")
	require.NoError(t, err)
	require.NoError(t, f.mgr.Close())
	require.NoError(t, f.mgr.Close())
	f.reset()

	name := "Renamed"
	tpl := &models.DesignTemplate{SignTypeCode: "I.1"}
	calls := map[string]func() error{
		"create": func() error {
			_, err := f.mgr.CreateSignType(ctx, *sampleType("I.2"), "designer")
			return err
		},
		"update": func() error {
			_, err := f.mgr.UpdateSignType(ctx, "I.1", SignTypeUpdate{Name: &name}, "designer")
			return err
		},
		"delete": func() error {
			_, err := f.mgr.DeleteSignType(ctx, "I.1", "designer", nil)
			return err
		},
		"add_field": func() error {
			_, err := f.mgr.AddTextField(ctx, "I.1", "occupant", FieldOptions{}, "designer")
			return err
		},
		"remove_field": func() error {
			_, err := f.mgr.RemoveTextField(ctx, "I.1", "roomNumber", "designer", nil)
			return err
		},
		"template": func() error { return f.mgr.EmitTemplateEvent(ctx, TemplateCreated, tpl, "designer") },
		"message":  func() error { return f.mgr.EmitSignMessageChanged(ctx, "sign-1", "I.1", "x", "designer") },
		"notes":    func() error { return f.mgr.EmitSignNotesChanged(ctx, "sign-1", "I.1", "x", "designer") },
		"initialize": func() error {
			return f.mgr.InitializeApp(ctx, "plans", Handlers{})
		},
	}
	for label, call := range calls {
		t.Run(label, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, ErrManagerClosed), err)
		})
	}

	registry := f.bus.SignTypes()
	require.Len(t, registry, 1)
	assert.Equal(t, "Room ID", registry["I.1"].Name)
	assert.Empty(t, f.topics())
}
