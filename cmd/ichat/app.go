package main

import (
	"context"
	"log"
	"strings"
	"sync"

	"ichat-sync/internal/ipc"
	"ichat-sync/internal/models"
	"ichat-sync/internal/notify"
	"ichat-sync/internal/presence"
	"ichat-sync/internal/reconcile"
	"ichat-sync/internal/restclient"
	"ichat-sync/internal/transport"
	"ichat-sync/internal/typing"
)

// hydrateLimit is the page size fetched when a conversation is opened.
const hydrateLimit = 100

// app is the headless foreground runtime: it keeps conversation state live
// and decides which notifications surface in-app.
type app struct {
	userID string
	api    *restclient.Client

	manager   *transport.Manager
	engine    *reconcile.Engine
	router    *notify.Router
	typingOut *typing.Sender
	typingIn  *typing.Set
	tracker   *presence.Tracker

	mu           sync.Mutex
	foregrounded bool
}

func newApp(userID string, api *restclient.Client, manager *transport.Manager) *app {
	a := &app{
		userID:       userID,
		api:          api,
		manager:      manager,
		foregrounded: true,
	}
	a.engine = reconcile.NewEngine(userID, reconcile.WithUnreadListener(a.onUnread))
	a.router = notify.NewRouter(notify.NewLedger(), consoleToasts{})
	a.typingOut = typing.NewSender(manager, typing.DefaultSilenceWindow)
	a.typingIn = typing.NewSet()
	a.tracker = presence.NewTracker(api)
	return a
}

func (a *app) bind() {
	for _, event := range []string{
		models.EventMessageNew,
		models.EventMessageUpdated,
		models.EventDeleteForMe,
		models.EventDeleteEveryone,
		models.EventReactionAdded,
		models.EventReadReceipts,
		models.EventPriorityChanged,
		models.EventTagChanged,
	} {
		a.manager.On(event, a.onMessageEvent)
	}
	a.manager.On(models.EventTyping, func(ev models.InboundEvent) {
		if ev.UserID != a.userID {
			a.typingIn.OnTyping(ev.UserID, ev.Conversation)
		}
	})
	a.manager.On(models.EventStopTyping, func(ev models.InboundEvent) {
		a.typingIn.OnStopTyping(ev.UserID, ev.Conversation)
	})
	a.manager.OnConnected(a.onConnected)
	a.manager.OnDisconnected(func(err error) {
		log.Printf("transport disconnected: %v", err)
	})
}

func (a *app) onMessageEvent(ev models.InboundEvent) {
	a.engine.Apply(ev)

	if ev.Name != models.EventMessageNew || ev.Message == nil {
		return
	}
	if ev.Message.SenderID == a.userID {
		return
	}
	ref := ev.Conversation
	a.router.Deliver(ev, a.uiContext(), func() {
		a.open(context.Background(), ref)
	})
}

// onConnected re-hydrates the active conversation: events during the gap are
// gone and only a fresh snapshot closes the hole.
func (a *app) onConnected() {
	active := a.engine.Active()
	if active.IsZero() {
		return
	}
	go a.hydrate(context.Background(), active)
}

func (a *app) uiContext() notify.UIContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return notify.UIContext{
		ActiveConversation: a.engine.Active(),
		Foregrounded:       a.foregrounded,
	}
}

// open makes a conversation the active one: join its room, hydrate, then
// mark everything visible as read.
func (a *app) open(ctx context.Context, ref models.ConversationRef) {
	a.engine.Activate(ref)
	if err := a.manager.JoinRoom(ref); err != nil {
		log.Printf("join %s: %v", ref.Key(), err)
	}
	a.hydrate(ctx, ref)
	a.markVisibleRead(ctx, ref)
	a.tracker.Activity(ctx)
}

func (a *app) hydrate(ctx context.Context, ref models.ConversationRef) {
	snapshot, err := a.api.Messages(ctx, ref, hydrateLimit)
	if err != nil {
		log.Printf("hydrate %s: %v", ref.Key(), err)
		return
	}
	msgs := make([]models.Message, 0, len(snapshot))
	for _, m := range snapshot {
		msgs = append(msgs, *m)
	}
	a.engine.Hydrate(ref, msgs)
}

func (a *app) markVisibleRead(ctx context.Context, ref models.ConversationRef) {
	var unread []string
	for _, m := range a.engine.View(ref) {
		if m.SenderID != a.userID && !m.ReadByUser(a.userID) {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) == 0 {
		return
	}
	if err := a.api.MarkRead(ctx, ref, unread); err != nil {
		log.Printf("mark read %s: %v", ref.Key(), err)
	}
}

func (a *app) onUnread(ref models.ConversationRef, count int) {
	log.Printf("unread %s=%d", ref.Key(), count)
}

// handleIPC serves messages from the push delivery worker and from newer
// foreground instances.
func (a *app) handleIPC(cancel context.CancelFunc) ipc.Handler {
	return func(msg ipc.Message) {
		switch msg.Type {
		case ipc.TypeNavigate:
			ref, ok := parseTarget(msg.URL)
			if !ok {
				log.Printf("ipc: cannot navigate to %q", msg.URL)
				return
			}
			a.open(context.Background(), ref)
		case ipc.TypeNotificationShown:
			a.router.OnPushShown(msg.MessageID)
		case ipc.TypeClaim:
			log.Printf("another foreground instance claimed the endpoint, exiting")
			cancel()
		}
	}
}

// parseTarget maps an in-app URL back to its conversation reference.
func parseTarget(url string) (models.ConversationRef, bool) {
	path := strings.SplitN(url, "?", 2)[0]
	switch {
	case strings.HasPrefix(path, "/chats/"):
		if id := strings.TrimPrefix(path, "/chats/"); id != "" {
			return models.ChatRef(id), true
		}
	case strings.HasPrefix(path, "/groups/"):
		if id := strings.TrimPrefix(path, "/groups/"); id != "" {
			return models.GroupRef(id), true
		}
	}
	return models.ConversationRef{}, false
}

// consoleToasts is the headless toast surface.
type consoleToasts struct{}

func (consoleToasts) Show(event models.NotificationEvent) {
	log.Printf("toast [%s] %s: %s", event.Priority, event.Title, event.Body)
}

func (consoleToasts) Close(id string) {}
