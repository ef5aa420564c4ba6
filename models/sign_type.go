// Package models holds the shared domain entities synchronized between apps:
// sign types, their text fields, design templates and the per-app sign
// instances that reference them.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultColor     = "#4A90E2"
	DefaultTextColor = "#FFFFFF"

	maxNameLength = 100
)

var (
	codePattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,31}$`)
	fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)
	colorPattern     = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)
)

// TextField is a named, optionally length-bounded slot on a sign type.
// MaxLength zero means unlimited.
type TextField struct {
	FieldName string `json:"fieldName"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// Unlimited reports whether the field has no length bound.
func (f TextField) Unlimited() bool { return f.MaxLength == 0 }

// Validate checks the field name format and length bound.
func (f TextField) Validate() error {
	if err := ValidateFieldName(f.FieldName); err != nil {
		return err
	}
	if f.MaxLength < 0 {
		return fmt.Errorf("max length for field %s must be positive", f.FieldName)
	}
	return nil
}

// Accepts reports whether value fits within the field's length bound.
func (f TextField) Accepts(value string) bool {
	return f.Unlimited() || utf8.RuneCountInString(value) <= f.MaxLength
}

// SignType is a named category of signs sharing colors and text fields.
type SignType struct {
	Code            string      `json:"code"`
	Name            string      `json:"name"`
	Color           string      `json:"color"`
	TextColor       string      `json:"textColor"`
	TextFields      []TextField `json:"textFields"`
	DesignReference *string     `json:"designReference"`
	LastModified    time.Time   `json:"lastModified"`
}

// NewSignType returns a sign type with default colors and no fields.
func NewSignType(code, name string) *SignType {
	return &SignType{
		Code:       code,
		Name:       name,
		Color:      DefaultColor,
		TextColor:  DefaultTextColor,
		TextFields: []TextField{},
	}
}

// ApplyDefaults fills blank colors and a nil field list.
func (s *SignType) ApplyDefaults() {
	if s.Color == "" {
		s.Color = DefaultColor
	}
	if s.TextColor == "" {
		s.TextColor = DefaultTextColor
	}
	if s.TextFields == nil {
		s.TextFields = []TextField{}
	}
}

// ValidateCode checks the sign type code format.
func ValidateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("sign type code is required")
	}
	if !codePattern.MatchString(code) {
		return fmt.Errorf("invalid sign type code %q", code)
	}
	return nil
}

// ValidateFieldName checks the text field name format.
func ValidateFieldName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("field name is required")
	}
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

// ValidateColor checks a #RGB or #RRGGBB color.
func ValidateColor(color string) error {
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("invalid color %q", color)
	}
	return nil
}

// Validate checks every invariant of a sign type, including field name
// uniqueness.
func (s *SignType) Validate() error {
	if err := ValidateCode(s.Code); err != nil {
		return err
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("sign type name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("sign type name exceeds %d characters", maxNameLength)
	}
	if err := ValidateColor(s.Color); err != nil {
		return err
	}
	if err := ValidateColor(s.TextColor); err != nil {
		return fmt.Errorf("text color: %w", err)
	}
	seen := make(map[string]struct{}, len(s.TextFields))
	for _, f := range s.TextFields {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.FieldName]; dup {
			return fmt.Errorf("field %s already exists on sign type %s", f.FieldName, s.Code)
		}
		seen[f.FieldName] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy.
func (s *SignType) Clone() *SignType {
	if s == nil {
		return nil
	}
	c := *s
	c.TextFields = make([]TextField, len(s.TextFields))
	copy(c.TextFields, s.TextFields)
	if s.DesignReference != nil {
		ref := *s.DesignReference
		c.DesignReference = &ref
	}
	return &c
}

// Field returns the named field.
func (s *SignType) Field(name string) (TextField, bool) {
	for _, f := range s.TextFields {
		if f.FieldName == name {
			return f, true
		}
	}
	return TextField{}, false
}

// HasField reports whether the named field exists.
func (s *SignType) HasField(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// AddField appends a field, rejecting invalid or duplicate names.
func (s *SignType) AddField(f TextField) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if s.HasField(f.FieldName) {
		return fmt.Errorf("field %s already exists on sign type %s", f.FieldName, s.Code)
	}
	s.TextFields = append(s.TextFields, f)
	return nil
}

// RemoveField drops the named field and reports whether it was present.
func (s *SignType) RemoveField(name string) bool {
	for i, f := range s.TextFields {
		if f.FieldName == name {
			s.TextFields = append(s.TextFields[:i:i], s.TextFields[i+1:]...)
			return true
		}
	}
	return false
}

// FieldNames returns the field names in order.
func (s *SignType) FieldNames() []string {
	names := make([]string, len(s.TextFields))
	for i, f := range s.TextFields {
		names[i] = f.FieldName
	}
	return names
}

// Equal compares all fields. LastModified is compared with time.Equal.
func (s *SignType) Equal(o *SignType) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Code != o.Code || s.Name != o.Name || s.Color != o.Color || s.TextColor != o.TextColor {
		return false
	}
	if !s.LastModified.Equal(o.LastModified) {
		return false
	}
	if (s.DesignReference == nil) != (o.DesignReference == nil) {
		return false
	}
	if s.DesignReference != nil && *s.DesignReference != *o.DesignReference {
		return false
	}
	if len(s.TextFields) != len(o.TextFields) {
		return false
	}
	for i := range s.TextFields {
		if s.TextFields[i] != o.TextFields[i] {
			return false
		}
	}
	return true
}

// ToObject renders the sign type as a plain JSON-compatible object.
func (s *SignType) ToObject() map[string]any {
	fields := make([]any, len(s.TextFields))
	for i, f := range s.TextFields {
		obj := map[string]any{"fieldName": f.FieldName}
		if f.MaxLength > 0 {
			obj["maxLength"] = f.MaxLength
		} else {
			obj["maxLength"] = nil
		}
		fields[i] = obj
	}
	var ref any
	if s.DesignReference != nil {
		ref = *s.DesignReference
	}
	return map[string]any{
		"code":            s.Code,
		"name":            s.Name,
		"color":           s.Color,
		"textColor":       s.TextColor,
		"textFields":      fields,
		"designReference": ref,
		"lastModified":    s.LastModified.UTC().Format(time.RFC3339Nano),
	}
}

// SignTypeFromObject rebuilds a sign type from a plain object, such as one
// produced by ToObject or decoded from JSON. Blank colors get defaults.
func SignTypeFromObject(obj map[string]any) (*SignType, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode sign type object: %w", err)
	}
	var s SignType
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode sign type object: %w", err)
	}
	s.ApplyDefaults()
	return &s, nil
}

// UnmarshalJSON accepts a null maxLength as unlimited.
func (f *TextField) UnmarshalJSON(data []byte) error {
	var raw struct {
		FieldName string   `json:"fieldName"`
		MaxLength *float64 `json:"maxLength"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.FieldName = raw.FieldName
	f.MaxLength = 0
	if raw.MaxLength != nil {
		f.MaxLength = int(*raw.MaxLength)
	}
	return nil
}
