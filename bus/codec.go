package bus

import (
	"encoding/json"
	"fmt"
)

type payloadDecoder func(data []byte) (Payload, error)

func decodeAs[T Payload](data []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

var decoders = map[Topic]payloadDecoder{
	TopicSignTypeCreated:      decodeAs[SignTypeCreated],
	TopicSignTypeUpdated:      decodeAs[SignTypeUpdated],
	TopicSignTypeDeleted:      decodeAs[SignTypeDeleted],
	TopicSignTypeFieldAdded:   decodeAs[SignTypeFieldAdded],
	TopicSignTypeFieldRemoved: decodeAs[SignTypeFieldRemoved],
	TopicSignMessageChanged:   decodeAs[SignMessageChanged],
	TopicSignNotesChanged:     decodeAs[SignNotesChanged],
	TopicTemplateCreated:      decodeAs[TemplateCreated],
	TopicTemplateUpdated:      decodeAs[TemplateUpdated],
	TopicTemplateDeleted:      decodeAs[TemplateDeleted],
	TopicAppRegistered:        decodeAs[AppRegistered],
	TopicSharedDataChanged:    decodeAs[SharedDataChanged],
	TopicProjectDirty:         decodeAs[ProjectDirty],
	TopicSystemError:          decodeAs[SystemError],
}

// EncodePayload renders a payload as JSON.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Topic(), err)
	}
	return data, nil
}

// DecodePayload parses JSON produced by EncodePayload back into the typed
// payload for topic. Topics without a registered type decode to Message.
func DecodePayload(topic Topic, data []byte) (Payload, error) {
	decode, ok := decoders[topic]
	if !ok {
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", topic, err)
		}
		m.Name = topic
		return m, nil
	}
	p, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", topic, err)
	}
	return p, nil
}
