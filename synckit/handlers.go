package synckit

import (
	"context"

	"github.com/c0deZ3R0/signsync/bus"
)

// HandlerFunc handles one event variant.
type HandlerFunc[P bus.Payload] func(ctx context.Context, ev bus.Event, p P) error

// Handlers is the per-app handler table. Nil entries ignore their event.
type Handlers struct {
	SignTypeCreated      HandlerFunc[bus.SignTypeCreated]
	SignTypeUpdated      HandlerFunc[bus.SignTypeUpdated]
	SignTypeDeleted      HandlerFunc[bus.SignTypeDeleted]
	SignTypeFieldAdded   HandlerFunc[bus.SignTypeFieldAdded]
	SignTypeFieldRemoved HandlerFunc[bus.SignTypeFieldRemoved]
	SignMessageChanged   HandlerFunc[bus.SignMessageChanged]
	SignNotesChanged     HandlerFunc[bus.SignNotesChanged]
	TemplateCreated      HandlerFunc[bus.TemplateCreated]
	TemplateUpdated      HandlerFunc[bus.TemplateUpdated]
	TemplateDeleted      HandlerFunc[bus.TemplateDeleted]
}

func call[P bus.Payload](fn HandlerFunc[P], ctx context.Context, ev bus.Event, p P) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, ev, p)
}

// Dispatch routes ev to the matching entry.
func (h Handlers) Dispatch(ctx context.Context, ev bus.Event) error {
	switch p := ev.Payload.(type) {
	case bus.SignTypeCreated:
		return call(h.SignTypeCreated, ctx, ev, p)
	case bus.SignTypeUpdated:
		return call(h.SignTypeUpdated, ctx, ev, p)
	case bus.SignTypeDeleted:
		return call(h.SignTypeDeleted, ctx, ev, p)
	case bus.SignTypeFieldAdded:
		return call(h.SignTypeFieldAdded, ctx, ev, p)
	case bus.SignTypeFieldRemoved:
		return call(h.SignTypeFieldRemoved, ctx, ev, p)
	case bus.SignMessageChanged:
		return call(h.SignMessageChanged, ctx, ev, p)
	case bus.SignNotesChanged:
		return call(h.SignNotesChanged, ctx, ev, p)
	case bus.TemplateCreated:
		return call(h.TemplateCreated, ctx, ev, p)
	case bus.TemplateUpdated:
		return call(h.TemplateUpdated, ctx, ev, p)
	case bus.TemplateDeleted:
		return call(h.TemplateDeleted, ctx, ev, p)
	}
	return nil
}
