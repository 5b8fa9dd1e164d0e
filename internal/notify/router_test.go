package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichat-sync/internal/models"
)

type recordingToasts struct {
	shown  []models.NotificationEvent
	closed []string
}

func (r *recordingToasts) Show(ev models.NotificationEvent) { r.shown = append(r.shown, ev) }
func (r *recordingToasts) Close(id string)                  { r.closed = append(r.closed, id) }

func inbound(ref models.ConversationRef, id, sender string) models.InboundEvent {
	return models.InboundEvent{
		Name:         models.EventMessageNew,
		Conversation: ref,
		MessageID:    id,
		Message: &models.Message{
			ID:        id,
			SenderID:  sender,
			Content:   "ping",
			Type:      models.TypeText,
			CreatedAt: time.Now(),
			Priority:  models.PriorityNormal,
		},
	}
}

func TestRouteDecisionTable(t *testing.T) {
	active := models.ChatRef("c1")
	other := models.ChatRef("c2")

	tests := []struct {
		name string
		ev   models.InboundEvent
		ui   UIContext
		want Decision
	}{
		{
			name: "active conversation, foregrounded",
			ev:   inbound(active, "m1", "bob"),
			ui:   UIContext{ActiveConversation: active, Foregrounded: true},
			want: DecisionStateOnly,
		},
		{
			name: "other conversation, foregrounded",
			ev:   inbound(other, "m2", "bob"),
			ui:   UIContext{ActiveConversation: active, Foregrounded: true},
			want: DecisionStateAndToast,
		},
		{
			name: "backgrounded",
			ev:   inbound(other, "m3", "bob"),
			ui:   UIContext{ActiveConversation: active, Foregrounded: false},
			want: DecisionBackground,
		},
		{
			name: "backgrounded even for active conversation",
			ev:   inbound(active, "m4", "bob"),
			ui:   UIContext{ActiveConversation: active, Foregrounded: false},
			want: DecisionBackground,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.ev, tt.ui))
		})
	}
}

func TestFocusSuppressionProducesNoToast(t *testing.T) {
	toasts := &recordingToasts{}
	router := NewRouter(NewLedger(), toasts)
	active := models.ChatRef("c1")

	decision, shown := router.Deliver(
		inbound(active, "m1", "bob"),
		UIContext{ActiveConversation: active, Foregrounded: true},
		nil,
	)

	assert.Equal(t, DecisionStateOnly, decision)
	assert.False(t, shown)
	assert.Empty(t, toasts.shown)
}

func TestToastCarriesMessageID(t *testing.T) {
	toasts := &recordingToasts{}
	router := NewRouter(NewLedger(), toasts)

	_, shown := router.Deliver(
		inbound(models.ChatRef("c2"), "m7", "bob"),
		UIContext{ActiveConversation: models.ChatRef("c1"), Foregrounded: true},
		nil,
	)

	require.True(t, shown)
	require.Len(t, toasts.shown, 1)
	assert.Equal(t, "m7", toasts.shown[0].ID, "toast id must equal the message id")
	assert.Equal(t, models.ChatRef("c2"), toasts.shown[0].Conversation)
}

func TestAtMostOneSurfacePerMessageID(t *testing.T) {
	toasts := &recordingToasts{}
	router := NewRouter(NewLedger(), toasts)
	ui := UIContext{ActiveConversation: models.ChatRef("c1"), Foregrounded: true}

	// Push path reported first: the transport-path toast is suppressed.
	router.OnPushShown("m1")
	decision, shown := router.Deliver(inbound(models.ChatRef("c2"), "m1", "bob"), ui, nil)
	assert.Equal(t, DecisionStateOnly, decision)
	assert.False(t, shown)
	assert.Empty(t, toasts.shown)

	// Transport path first: the push report then loses the claim.
	_, shown = router.Deliver(inbound(models.ChatRef("c2"), "m2", "bob"), ui, nil)
	require.True(t, shown)
	router.OnPushShown("m2")
	src, ok := router.ledger.Seen("m2")
	require.True(t, ok)
	assert.Equal(t, "toast", src)
}

func TestDuplicateTransportEventRaisesOneToast(t *testing.T) {
	toasts := &recordingToasts{}
	router := NewRouter(NewLedger(), toasts)
	ui := UIContext{ActiveConversation: models.ChatRef("c1"), Foregrounded: true}
	ev := inbound(models.ChatRef("c2"), "m1", "bob")

	router.Deliver(ev, ui, nil)
	router.Deliver(ev, ui, nil) // legacy alias path delivers the same event again

	assert.Len(t, toasts.shown, 1)
}
