package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/models"
	"github.com/c0deZ3R0/signsync/synckit"
)

// Mode selects how the cache follows the shared registry.
type Mode string

const (
	// ModeIncremental applies each typed event to the cache.
	ModeIncremental Mode = "incremental"
	// ModeFullResync rebuilds the cache from the registry on every
	// sharedData:changed. Peers of an auto-syncing adapter need this mode,
	// since auto-sync replaces the registry without typed events.
	ModeFullResync Mode = "full_resync"
)

// ParseMode accepts "incremental" or "full_resync". Empty means incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFullResync, "full", "full-resync":
		return ModeFullResync, nil
	default:
		return "", fmt.Errorf("unknown adapter mode %q", s)
	}
}

// Hooks let the owning app react to events beyond the sign type cache.
// Nil hooks are skipped.
type Hooks struct {
	// OnCascade cleans up the app's signs after their sign type was deleted.
	OnCascade func(ctx context.Context, code string, signs []models.SignInstance) error
	// OnFieldRemoved clears field data after a text field was removed.
	OnFieldRemoved func(ctx context.Context, code, field string, signs []models.SignInstance) error
	// OnTemplate receives template changes. tpl is nil for deletions.
	OnTemplate    func(ctx context.Context, action synckit.TemplateAction, code string, tpl *models.DesignTemplate) error
	OnSignMessage func(ctx context.Context, p bus.SignMessageChanged) error
	OnSignNotes   func(ctx context.Context, p bus.SignNotesChanged) error
	// OnChange runs after event-driven cache writes with the codes touched.
	OnChange func(codes []string)
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithMode(m Mode) Option {
	return func(a *Adapter) {
		if m != "" {
			a.mode = m
		}
	}
}

// WithSelfFilter makes the adapter ignore events it emitted itself. The
// adapter API writes its own cache directly, so nothing is lost.
func WithSelfFilter(enabled bool) Option {
	return func(a *Adapter) { a.selfFilter = enabled }
}

func WithHooks(h Hooks) Option {
	return func(a *Adapter) { a.hooks = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAutoSync pushes direct cache writes to the shared registry once they
// settle for debounce.
func WithAutoSync(debounce time.Duration) Option {
	return func(a *Adapter) {
		a.autoSync = true
		a.debounce = debounce
	}
}

// WithUsage lets the adapter answer usage queries for the owning app.
func WithUsage(u synckit.UsageProvider) Option {
	return func(a *Adapter) { a.usage = u }
}
