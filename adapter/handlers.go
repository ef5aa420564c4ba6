package adapter

import (
	"context"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/models"
	"github.com/c0deZ3R0/signsync/synckit"
)

func (a *Adapter) handlers() synckit.Handlers {
	return synckit.Handlers{
		SignTypeCreated: func(ctx context.Context, ev bus.Event, p bus.SignTypeCreated) error {
			return a.onUpsert(ev, p.SignType)
		},
		SignTypeUpdated: func(ctx context.Context, ev bus.Event, p bus.SignTypeUpdated) error {
			return a.onUpsert(ev, p.SignType)
		},
		SignTypeFieldAdded: func(ctx context.Context, ev bus.Event, p bus.SignTypeFieldAdded) error {
			return a.onUpsert(ev, p.SignType)
		},
		SignTypeFieldRemoved: a.onFieldRemoved,
		SignTypeDeleted:      a.onDeleted,
		TemplateCreated: func(ctx context.Context, ev bus.Event, p bus.TemplateCreated) error {
			return a.onTemplate(ctx, ev, synckit.TemplateCreated, p.Template)
		},
		TemplateUpdated: func(ctx context.Context, ev bus.Event, p bus.TemplateUpdated) error {
			return a.onTemplate(ctx, ev, synckit.TemplateUpdated, p.Template)
		},
		TemplateDeleted: func(ctx context.Context, ev bus.Event, p bus.TemplateDeleted) error {
			if a.skip(ev) || a.hooks.OnTemplate == nil {
				return nil
			}
			return a.hooks.OnTemplate(ctx, synckit.TemplateDeleted, p.SignTypeCode, nil)
		},
		SignMessageChanged: func(ctx context.Context, ev bus.Event, p bus.SignMessageChanged) error {
			if a.skip(ev) || a.hooks.OnSignMessage == nil {
				return nil
			}
			return a.hooks.OnSignMessage(ctx, p)
		},
		SignNotesChanged: func(ctx context.Context, ev bus.Event, p bus.SignNotesChanged) error {
			if a.skip(ev) || a.hooks.OnSignNotes == nil {
				return nil
			}
			return a.hooks.OnSignNotes(ctx, p)
		},
	}
}

func (a *Adapter) skip(ev bus.Event) bool {
	return a.selfFilter && ev.FromSelf(a.appName)
}

func (a *Adapter) onUpsert(ev bus.Event, st *models.SignType) error {
	if a.skip(ev) || st == nil {
		return nil
	}
	a.put(st)
	a.changed(st.Code)
	return nil
}

func (a *Adapter) onDeleted(ctx context.Context, ev bus.Event, p bus.SignTypeDeleted) error {
	if a.skip(ev) {
		return nil
	}
	a.drop(p.Code)
	a.changed(p.Code)
	if len(p.CascadedSigns) > 0 && a.hooks.OnCascade != nil {
		return a.hooks.OnCascade(ctx, p.Code, p.CascadedSigns)
	}
	return nil
}

func (a *Adapter) onFieldRemoved(ctx context.Context, ev bus.Event, p bus.SignTypeFieldRemoved) error {
	if a.skip(ev) {
		return nil
	}
	if p.SignType != nil {
		a.put(p.SignType)
	}
	a.changed(p.Code)
	if len(p.AffectedSigns) > 0 && a.hooks.OnFieldRemoved != nil {
		return a.hooks.OnFieldRemoved(ctx, p.Code, p.FieldName, p.AffectedSigns)
	}
	return nil
}

func (a *Adapter) onTemplate(ctx context.Context, ev bus.Event, action synckit.TemplateAction, tpl *models.DesignTemplate) error {
	if a.skip(ev) || a.hooks.OnTemplate == nil || tpl == nil {
		return nil
	}
	return a.hooks.OnTemplate(ctx, action, tpl.SignTypeCode, tpl.Clone())
}

func (a *Adapter) onSharedDataChanged(ctx context.Context, ev bus.Event) error {
	if a.mode != ModeFullResync {
		return nil
	}
	a.Resync(ctx)
	return nil
}
