package synckit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/logging"
)

func TestNewManager_BasicUsage(t *testing.T) {
	b := bus.New(bus.WithLogger(logging.Discard()))

	mgr, err := NewManager(b, "designer",
		WithLWW(),
		WithLogger(logging.Discard()),
		WithMetricsCollector(NewInMemoryMetricsCollector()),
		WithClock(time.Now),
	)

	require.NoError(t, err)
	assert.Equal(t, "designer", mgr.AppName())
	assert.Same(t, b, mgr.Bus())
}

func TestNewManager_RequiresBusAndName(t *testing.T) {
	_, err := NewManager(nil, "designer")
	assert.ErrorContains(t, err, "bus is required")

	_, err = NewManager(bus.New(bus.WithLogger(logging.Discard())), " ")
	assert.ErrorContains(t, err, "app name is required")
}

func TestNewManager_RejectsUnknownConflictResolution(t *testing.T) {
	b := bus.New(bus.WithLogger(logging.Discard()))

	_, err := NewManager(b, "designer", WithConflictResolution("merge_everything"))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "unknown conflict resolution")

	for _, name := range []string{"", "last_write_wins", "LWW", "last-write-wins"} {
		_, err := NewManager(b, "designer", WithConflictResolution(name))
		assert.NoError(t, err, name)
	}
}

func TestNewManager_RejectsNilDependencies(t *testing.T) {
	b := bus.New(bus.WithLogger(logging.Discard()))

	_, err := NewManager(b, "designer", WithUsageProvider(nil))
	assert.Error(t, err)
	_, err = NewManager(b, "designer", WithConflictResolver(nil))
	assert.Error(t, err)
}

func TestLastWriteWinsResolver(t *testing.T) {
	r := &LastWriteWinsResolver{}
	ctx := context.Background()

	current := sampleType("I.1")
	proposed := current.Clone()
	proposed.Name = "Renamed"

	res, err := r.Resolve(ctx, Conflict{Code: "I.1", Current: current, Proposed: proposed})
	require.NoError(t, err)
	assert.Equal(t, "keep_proposed", res.Decision)
	assert.Equal(t, "Renamed", res.SignType.Name)

	res, err = r.Resolve(ctx, Conflict{Code: "I.1", Current: current})
	require.NoError(t, err)
	assert.Equal(t, "keep_current", res.Decision)
	assert.Same(t, current, res.SignType)
}
