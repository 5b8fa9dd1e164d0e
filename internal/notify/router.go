// Package notify decides, per inbound event, whether to update state only,
// raise an in-app toast, or leave delivery to the background push worker.
package notify

import (
	"ichat-sync/internal/models"
	"ichat-sync/internal/observability"
)

// Decision is the router's verdict for one inbound event.
type Decision string

const (
	// DecisionStateOnly: the user is already looking at the conversation.
	DecisionStateOnly Decision = "state_only"
	// DecisionStateAndToast: foregrounded but elsewhere, surface a toast.
	DecisionStateAndToast Decision = "state_and_toast"
	// DecisionBackground: not foregrounded; the push delivery worker owns
	// the OS notification on its own independent path.
	DecisionBackground Decision = "background"
)

// UIContext is the focus snapshot the router decides against.
type UIContext struct {
	ActiveConversation models.ConversationRef
	Foregrounded       bool
}

// ToastSurface renders in-app notifications while the app is foregrounded.
type ToastSurface interface {
	Show(event models.NotificationEvent)
	Close(id string)
}

// Router routes inbound message events to the right notification surface.
type Router struct {
	ledger *Ledger
	toasts ToastSurface
}

// NewRouter builds a router over the shared processed-id ledger.
func NewRouter(ledger *Ledger, toasts ToastSurface) *Router {
	return &Router{ledger: ledger, toasts: toasts}
}

// Route applies the decision table without side effects.
func Route(ev models.InboundEvent, ui UIContext) Decision {
	if !ui.Foregrounded {
		return DecisionBackground
	}
	if !ev.Conversation.IsZero() && ev.Conversation.Key() == ui.ActiveConversation.Key() {
		return DecisionStateOnly
	}
	return DecisionStateAndToast
}

// Deliver routes the event and, when the decision calls for a toast, raises
// it unless the same message id already surfaced through the push path. The
// toast id equals the message id so a second delivery path can never raise a
// duplicate. Returns the decision and whether a toast was shown.
func (r *Router) Deliver(ev models.InboundEvent, ui UIContext, onActivate func()) (Decision, bool) {
	decision := Route(ev, ui)
	observability.IncRouterDecision(string(decision))

	if decision != DecisionStateAndToast {
		return decision, false
	}
	if ev.Message == nil {
		return decision, false
	}

	if !r.ledger.MarkToast(ev.Message.ID) {
		// Already surfaced by the push worker; state was updated, the
		// notification stays with the other path.
		return DecisionStateOnly, false
	}

	title := titleFor(ev)
	r.toasts.Show(models.NotificationEvent{
		ID:           ev.Message.ID,
		Type:         string(ev.Message.Type),
		Title:        title,
		Body:         ev.Message.Content,
		Conversation: ev.Conversation,
		Priority:     ev.Message.Priority,
		OnActivate:   onActivate,
	})
	return decision, true
}

// OnPushShown records a worker-side notification so a late transport event
// for the same message does not raise a second surface.
func (r *Router) OnPushShown(messageID string) {
	if messageID == "" {
		return
	}
	r.ledger.MarkPush(messageID)
}

func titleFor(ev models.InboundEvent) string {
	if ev.Message != nil && ev.Message.SenderID != "" {
		return "New message from " + ev.Message.SenderID
	}
	return "New message"
}
