package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichat-sync/internal/models"
)

func TestCanonicalMapsLegacyNames(t *testing.T) {
	cases := map[string]string{
		"receiveMessage":        models.EventMessageNew,
		"messageUpdated":        models.EventMessageUpdated,
		"messageDeleted":        models.EventDeleteEveryone,
		"reactionAdded":         models.EventReactionAdded,
		"messages:read":         models.EventReadReceipts,
		models.EventMessageNew:  models.EventMessageNew,
		models.EventTyping:      models.EventTyping,
		"something:unrecognised": "something:unrecognised",
	}
	for in, want := range cases {
		assert.Equal(t, want, Canonical(in), in)
	}
}

func TestDecodeMessageNewStampsConversationOnMessage(t *testing.T) {
	frame := []byte(`{"event":"receiveMessage","payload":{"chatId":"c7","message":{"id":"m1","sender_id":"alice","content":"hi","created_at":"2025-03-01T12:00:00Z"}}}`)

	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, models.EventMessageNew, ev.Name)
	assert.Equal(t, models.ChatRef("c7"), ev.Conversation)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, models.ChatRef("c7"), ev.Message.Conversation,
		"envelope-level conversation must win over the message body")
}

func TestDecodeMessageNewFallsBackToMessageConversation(t *testing.T) {
	frame := []byte(`{"event":"message:new","payload":{"message":{"id":"m2","conversation":{"groupId":"g3"},"created_at":"2025-03-01T12:00:00Z"}}}`)

	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, models.GroupRef("g3"), ev.Conversation)
}

func TestDecodeMutationEvents(t *testing.T) {
	frame := []byte(`{"event":"reactionAdded","payload":{"groupId":"g1","messageId":"m9","userId":"bob","emoji":"👍"}}`)

	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, models.EventReactionAdded, ev.Name)
	assert.Equal(t, models.GroupRef("g1"), ev.Conversation)
	assert.Equal(t, "m9", ev.MessageID)
	assert.Equal(t, "bob", ev.UserID)
	assert.Equal(t, "👍", ev.Emoji)
}

func TestDecodeReadReceipts(t *testing.T) {
	frame := []byte(`{"event":"messages:read","payload":{"chatId":"c1","messageIds":["m1","m2"],"readBy":["bob","carol"]}}`)

	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, models.EventReadReceipts, ev.Name)
	assert.Equal(t, []string{"m1", "m2"}, ev.MessageIDs)
	assert.Equal(t, []string{"bob", "carol"}, ev.ReadBy)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"bogus","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode([]byte(`{"event":"message:new","payload":"not an object"}`))
	assert.Error(t, err)
}

func TestJoinAndLeaveCommands(t *testing.T) {
	frame, err := JoinCommand(models.ChatRef("c1"))
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, models.CommandJoinChat, env.Event)
	assert.JSONEq(t, `{"chatId":"c1"}`, string(env.Payload))

	frame, err = LeaveCommand(models.GroupRef("g2"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, models.CommandLeaveGroup, env.Event)
	assert.JSONEq(t, `{"groupId":"g2"}`, string(env.Payload))
}

func TestTypingCommandCarriesRefAndUser(t *testing.T) {
	frame, err := TypingCommand(true, models.GroupRef("g1"), "alice")
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, models.CommandStopTyping, env.Event)
	assert.JSONEq(t, `{"groupId":"g1","userId":"alice"}`, string(env.Payload))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := &models.Message{
		ID:        "m1",
		SenderID:  "alice",
		Content:   "hello",
		Type:      models.TypeText,
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Priority:  models.PriorityNormal,
	}
	frame, err := Encode(models.EventMessageNew, map[string]any{"chatId": "c1", "message": msg})
	require.NoError(t, err)

	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.True(t, ev.Message.CreatedAt.Equal(msg.CreatedAt))
}
