package synckit

import (
	"context"
	"fmt"
	"strings"

	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/models"
)

// TemplateAction selects the template event to emit.
type TemplateAction string

const (
	TemplateCreated TemplateAction = "created"
	TemplateUpdated TemplateAction = "updated"
	TemplateDeleted TemplateAction = "deleted"
)

// EmitTemplateEvent transports a template change. Templates are owned by the
// app that persists them; the registry is not touched.
func (m *Manager) EmitTemplateEvent(ctx context.Context, action TemplateAction, tpl *models.DesignTemplate, sourceApp string) error {
	const op = errors.OpEmit
	if err := m.checkOpen(op); err != nil {
		return err
	}
	if tpl == nil {
		return m.fail(op, errors.NewValidationError(op, fmt.Errorf("template is required")))
	}

	var p bus.Payload
	switch action {
	case TemplateCreated, TemplateUpdated:
		if err := tpl.Validate(); err != nil {
			return m.fail(op, errors.NewValidationError(op, err))
		}
		if action == TemplateCreated {
			p = bus.TemplateCreated{Template: tpl.Clone()}
		} else {
			p = bus.TemplateUpdated{Template: tpl.Clone()}
		}
	case TemplateDeleted:
		if err := models.ValidateCode(tpl.SignTypeCode); err != nil {
			return m.fail(op, errors.NewValidationError(op, err))
		}
		p = bus.TemplateDeleted{SignTypeCode: tpl.SignTypeCode}
	default:
		return m.fail(op, errors.NewValidationError(op, fmt.Errorf("unknown template action %q", action)))
	}

	m.afterWrite(ctx, sourceApp, p, "template "+string(action))
	return nil
}

// EmitSignMessageChanged transports an edit of a sign's message text.
func (m *Manager) EmitSignMessageChanged(ctx context.Context, signID, signTypeCode, message, sourceApp string) error {
	const op = errors.OpEmit
	if err := m.checkOpen(op); err != nil {
		return err
	}
	if strings.TrimSpace(signID) == "" {
		return m.fail(op, errors.NewValidationError(op, fmt.Errorf("sign id is required")))
	}
	m.afterWrite(ctx, sourceApp, bus.SignMessageChanged{
		SignID:       signID,
		SignTypeCode: signTypeCode,
		Message:      message,
	}, "sign message changed")
	return nil
}

// EmitSignNotesChanged transports an edit of a sign's notes.
func (m *Manager) EmitSignNotesChanged(ctx context.Context, signID, signTypeCode, notes, sourceApp string) error {
	const op = errors.OpEmit
	if err := m.checkOpen(op); err != nil {
		return err
	}
	if strings.TrimSpace(signID) == "" {
		return m.fail(op, errors.NewValidationError(op, fmt.Errorf("sign id is required")))
	}
	m.afterWrite(ctx, sourceApp, bus.SignNotesChanged{
		SignID:       signID,
		SignTypeCode: signTypeCode,
		Notes:        notes,
	}, "sign notes changed")
	return nil
}
