package models

// SignInstance is one physical sign placed by an app. Apps own their
// instances; the sync core only sees them through usage queries and in the
// cascadedSigns list of a delete event.
type SignInstance struct {
	ID           string            `json:"id"`
	SignTypeCode string            `json:"signTypeCode"`
	Location     string            `json:"location,omitempty"`
	Message      string            `json:"message,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	FieldData    map[string]string `json:"fieldData,omitempty"`
}

// HasFieldData reports whether the instance holds a non-empty value for field.
func (s SignInstance) HasFieldData(field string) bool {
	return s.FieldData[field] != ""
}

// Clone returns a copy with its own field map.
func (s SignInstance) Clone() SignInstance {
	c := s
	if s.FieldData != nil {
		c.FieldData = make(map[string]string, len(s.FieldData))
		for k, v := range s.FieldData {
			c.FieldData[k] = v
		}
	}
	return c
}
