package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TemplateTextField places a sign type field on a canvas view.
type TemplateTextField struct {
	FieldName string  `json:"fieldName"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	FontSize  float64 `json:"fontSize,omitempty"`
	Align     string  `json:"align,omitempty"`
}

// CanvasView is one face of a design template. Canvas is the renderer's
// opaque graphics document and is transported as-is.
type CanvasView struct {
	Canvas     json.RawMessage     `json:"canvas,omitempty"`
	TextFields []TemplateTextField `json:"textFields"`
}

// DesignTemplate describes the face and side artwork of a sign type. The
// sign type code is a soft reference: deleting the sign type leaves its
// templates in place.
type DesignTemplate struct {
	SignTypeCode string     `json:"signTypeCode"`
	FaceView     CanvasView `json:"faceView"`
	SideView     CanvasView `json:"sideView"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Validate checks the code reference and field placements.
func (t *DesignTemplate) Validate() error {
	if err := ValidateCode(t.SignTypeCode); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	for _, view := range []CanvasView{t.FaceView, t.SideView} {
		for _, f := range view.TextFields {
			if err := ValidateFieldName(f.FieldName); err != nil {
				return fmt.Errorf("template %s: %w", t.SignTypeCode, err)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *DesignTemplate) Clone() *DesignTemplate {
	if t == nil {
		return nil
	}
	c := *t
	c.FaceView = t.FaceView.clone()
	c.SideView = t.SideView.clone()
	return &c
}

func (v CanvasView) clone() CanvasView {
	c := CanvasView{TextFields: make([]TemplateTextField, len(v.TextFields))}
	copy(c.TextFields, v.TextFields)
	if v.Canvas != nil {
		c.Canvas = append(json.RawMessage(nil), v.Canvas...)
	}
	return c
}

// Equal compares all fields; canvases are compared after JSON compaction.
func (t *DesignTemplate) Equal(o *DesignTemplate) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.SignTypeCode == o.SignTypeCode &&
		t.CreatedAt.Equal(o.CreatedAt) &&
		t.UpdatedAt.Equal(o.UpdatedAt) &&
		t.FaceView.equal(o.FaceView) &&
		t.SideView.equal(o.SideView)
}

func (v CanvasView) equal(o CanvasView) bool {
	if len(v.TextFields) != len(o.TextFields) {
		return false
	}
	for i := range v.TextFields {
		if v.TextFields[i] != o.TextFields[i] {
			return false
		}
	}
	return bytes.Equal(compact(v.Canvas), compact(o.Canvas))
}

func compact(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// ToObject renders the template as a plain JSON-compatible object.
func (t *DesignTemplate) ToObject() (map[string]any, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return obj, nil
}

// DesignTemplateFromObject rebuilds a template from a plain object.
func DesignTemplateFromObject(obj map[string]any) (*DesignTemplate, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode template object: %w", err)
	}
	var t DesignTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode template object: %w", err)
	}
	return &t, nil
}
