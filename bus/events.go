package bus

import (
	"time"

	"github.com/c0deZ3R0/signsync/models"
)

// Topic names an event stream on the bus.
type Topic string

// Domain topics.
const (
	TopicSignTypeCreated      Topic = "SIGN_TYPE_CREATED"
	TopicSignTypeUpdated      Topic = "SIGN_TYPE_UPDATED"
	TopicSignTypeDeleted      Topic = "SIGN_TYPE_DELETED"
	TopicSignTypeFieldAdded   Topic = "SIGN_TYPE_FIELD_ADDED"
	TopicSignTypeFieldRemoved Topic = "SIGN_TYPE_FIELD_REMOVED"
	TopicSignMessageChanged   Topic = "SIGN_MESSAGE_CHANGED"
	TopicSignNotesChanged     Topic = "SIGN_NOTES_CHANGED"
	TopicTemplateCreated      Topic = "TEMPLATE_CREATED"
	TopicTemplateUpdated      Topic = "TEMPLATE_UPDATED"
	TopicTemplateDeleted      Topic = "TEMPLATE_DELETED"
)

// Bus-level topics.
const (
	TopicAppRegistered     Topic = "app:registered"
	TopicSharedDataChanged Topic = "sharedData:changed"
	TopicProjectDirty      Topic = "project:dirty"
	TopicSystemError       Topic = "system:error"
)

// DomainTopics lists the topics a sync manager subscribes for each app.
var DomainTopics = []Topic{
	TopicSignTypeCreated,
	TopicSignTypeUpdated,
	TopicSignTypeDeleted,
	TopicSignTypeFieldAdded,
	TopicSignTypeFieldRemoved,
	TopicSignMessageChanged,
	TopicSignNotesChanged,
	TopicTemplateCreated,
	TopicTemplateUpdated,
	TopicTemplateDeleted,
}

// Payload is the closed set of event bodies. The payload decides its topic,
// so a typed emit can never be filed under the wrong stream.
type Payload interface {
	Topic() Topic
	payload()
}

// Event is one delivery on the bus.
type Event struct {
	ID        string
	Topic     Topic
	SourceApp string
	Timestamp time.Time
	Payload   Payload
}

// FromSelf reports whether the event was emitted by app.
func (e Event) FromSelf(app string) bool { return e.SourceApp != "" && e.SourceApp == app }

type SignTypeCreated struct {
	SignType *models.SignType `json:"signType"`
}

type SignTypeUpdated struct {
	SignType *models.SignType `json:"signType"`
	Previous *models.SignType `json:"previous,omitempty"`
	Changes  []string         `json:"changes"`
}

type SignTypeDeleted struct {
	Code          string                `json:"code"`
	SignType      *models.SignType      `json:"signType,omitempty"`
	CascadedSigns []models.SignInstance `json:"cascadedSigns"`
}

type SignTypeFieldAdded struct {
	Code     string           `json:"code"`
	Field    models.TextField `json:"field"`
	SignType *models.SignType `json:"signType"`
}

type SignTypeFieldRemoved struct {
	Code          string                `json:"code"`
	FieldName     string                `json:"fieldName"`
	SignType      *models.SignType      `json:"signType"`
	AffectedSigns []models.SignInstance `json:"affectedSigns"`
}

type SignMessageChanged struct {
	SignID       string `json:"signId"`
	SignTypeCode string `json:"signTypeCode,omitempty"`
	Message      string `json:"message"`
}

type SignNotesChanged struct {
	SignID       string `json:"signId"`
	SignTypeCode string `json:"signTypeCode,omitempty"`
	Notes        string `json:"notes"`
}

type TemplateCreated struct {
	Template *models.DesignTemplate `json:"template"`
}

type TemplateUpdated struct {
	Template *models.DesignTemplate `json:"template"`
}

type TemplateDeleted struct {
	SignTypeCode string `json:"signTypeCode"`
}

type AppRegistered struct {
	AppName string `json:"appName"`
}

// SharedDataChanged follows every replace of the shared registry. Codes is
// the sorted key set after the replace.
type SharedDataChanged struct {
	Key   string   `json:"key"`
	Codes []string `json:"codes"`
}

type ProjectDirty struct {
	Reason string `json:"reason,omitempty"`
}

// SystemError carries a failure caught by the process-wide safety net.
type SystemError struct {
	Source      string `json:"source"`
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	FailedTopic Topic  `json:"topic,omitempty"`
}

// Message is the payload of an untyped Broadcast.
type Message struct {
	Name Topic `json:"name"`
	Data any   `json:"data,omitempty"`
}

func (SignTypeCreated) Topic() Topic      { return TopicSignTypeCreated }
func (SignTypeUpdated) Topic() Topic      { return TopicSignTypeUpdated }
func (SignTypeDeleted) Topic() Topic      { return TopicSignTypeDeleted }
func (SignTypeFieldAdded) Topic() Topic   { return TopicSignTypeFieldAdded }
func (SignTypeFieldRemoved) Topic() Topic { return TopicSignTypeFieldRemoved }
func (SignMessageChanged) Topic() Topic   { return TopicSignMessageChanged }
func (SignNotesChanged) Topic() Topic     { return TopicSignNotesChanged }
func (TemplateCreated) Topic() Topic      { return TopicTemplateCreated }
func (TemplateUpdated) Topic() Topic      { return TopicTemplateUpdated }
func (TemplateDeleted) Topic() Topic      { return TopicTemplateDeleted }
func (AppRegistered) Topic() Topic        { return TopicAppRegistered }
func (SharedDataChanged) Topic() Topic    { return TopicSharedDataChanged }
func (ProjectDirty) Topic() Topic         { return TopicProjectDirty }
func (SystemError) Topic() Topic          { return TopicSystemError }
func (m Message) Topic() Topic            { return m.Name }

func (SignTypeCreated) payload()      {}
func (SignTypeUpdated) payload()      {}
func (SignTypeDeleted) payload()      {}
func (SignTypeFieldAdded) payload()   {}
func (SignTypeFieldRemoved) payload() {}
func (SignMessageChanged) payload()   {}
func (SignNotesChanged) payload()     {}
func (TemplateCreated) payload()      {}
func (TemplateUpdated) payload()      {}
func (TemplateDeleted) payload()      {}
func (AppRegistered) payload()        {}
func (SharedDataChanged) payload()    {}
func (ProjectDirty) payload()         {}
func (SystemError) payload()          {}
func (Message) payload()              {}
