package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/signsync/models"
)

func TestPayloadCodec(t *testing.T) {
	st := models.NewSignType("I.1", "Room ID")
	st.TextFields = []models.TextField{{FieldName: "room", MaxLength: 8}}

	payloads := []Payload{
		SignTypeCreated{SignType: st},
		SignTypeDeleted{Code: "I.1", CascadedSigns: []models.SignInstance{{ID: "s1", SignTypeCode: "I.1"}}},
		SignTypeFieldRemoved{Code: "I.1", FieldName: "room", SignType: st, AffectedSigns: []models.SignInstance{}},
		SignNotesChanged{SignID: "s1", Notes: "check mounting"},
		SystemError{Source: "designer", Message: "boom", FailedTopic: TopicProjectDirty},
	}

	for _, p := range payloads {
		t.Run(string(p.Topic()), func(t *testing.T) {
			raw, err := EncodePayload(p)
			require.NoError(t, err)
			decoded, err := DecodePayload(p.Topic(), raw)
			require.NoError(t, err)
			assert.IsType(t, p, decoded)
			assert.Equal(t, p.Topic(), decoded.Topic())
		})
	}
}

func TestDecodeUnknownTopicAsMessage(t *testing.T) {
	raw, err := EncodePayload(Message{Name: "custom:topic", Data: map[string]any{"n": 1.0}})
	require.NoError(t, err)

	decoded, err := DecodePayload("custom:topic", raw)
	require.NoError(t, err)
	msg, ok := decoded.(Message)
	require.True(t, ok)
	assert.Equal(t, Topic("custom:topic"), msg.Name)
	assert.Equal(t, map[string]any{"n": 1.0}, msg.Data)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodePayload(TopicSignTypeCreated, []byte("{"))
	assert.Error(t, err)
	_, err = EncodePayload(nil)
	assert.Error(t, err)
}
