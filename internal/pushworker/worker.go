// Package pushworker turns relayed push payloads into OS notifications. It is
// the delivery path of last resort: it runs without a foreground client and
// must keep working on whatever bytes the relay hands it.
package pushworker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ichat-sync/internal/ipc"
	"ichat-sync/internal/models"
	"ichat-sync/internal/observability"
)

// FallbackTitle is used when a payload cannot be parsed as JSON.
const FallbackTitle = "iChat Notification"

// ErrPermissionDenied reports that the OS rejected notification display.
var ErrPermissionDenied = errors.New("notification permission denied")

// Notification is what gets handed to the OS notifier.
type Notification struct {
	Title string
	Body  string
	Icon  string
	// Tag collapses repeated notifications for the same conversation.
	Tag string
	// RequireInteraction keeps the notification on screen until the user
	// acts on it. Always set: a missed notification is the one failure
	// mode this worker exists to prevent.
	RequireInteraction bool
	Sound              bool
}

// Notifier renders a notification on the OS.
type Notifier interface {
	Show(n Notification) error
}

// ParsePayload decodes a relayed payload. Non-JSON bytes degrade to a
// fallback-titled notification carrying the raw text, never to a drop.
func ParsePayload(raw []byte) models.PushPayload {
	var p models.PushPayload
	if err := json.Unmarshal(raw, &p); err == nil && (p.Title != "" || p.Body != "") {
		return p
	}
	return models.PushPayload{
		Title: FallbackTitle,
		Body:  strings.TrimSpace(string(raw)),
	}
}

// DedupTag picks the notification collapse key: the payload's own tag, then
// the conversation, then a random tag so unrelated payloads never collapse.
func DedupTag(p models.PushPayload) string {
	if p.Tag != "" {
		return p.Tag
	}
	if ref := p.Ref(); !ref.IsZero() {
		if ref.IsGroup() {
			return "group-" + ref.GroupID
		}
		return "chat-" + ref.ChatID
	}
	return uuid.NewString()
}

// TargetURL computes the in-app location a click should open.
func TargetURL(p models.PushPayload) string {
	if p.Data.URL != "" {
		return p.Data.URL
	}
	if ref := p.Ref(); !ref.IsZero() {
		return ref.URL()
	}
	return "/"
}

// LaunchFunc starts a foreground client when none is running.
type LaunchFunc func(ctx context.Context, url string) error

// Config wires a Worker.
type Config struct {
	Notifier Notifier
	// ForegroundSocket is the IPC path of a running foreground client.
	ForegroundSocket string
	Launch           LaunchFunc
	// SoundEnabled is the user preference applied when the payload does
	// not carry its own.
	SoundEnabled bool
}

// Worker consumes relayed payloads and surfaces them.
type Worker struct {
	cfg Config

	permissionOnce sync.Once
}

// New builds a Worker.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg}
}

// Handle processes one relayed payload: parse, render, acknowledge. The
// returned error is only for transient notifier failures; malformed payloads
// and permission problems are absorbed here.
func (w *Worker) Handle(ctx context.Context, raw []byte) error {
	payload := ParsePayload(raw)

	sound := w.cfg.SoundEnabled
	if payload.SoundEnabled != nil {
		sound = *payload.SoundEnabled
	}

	err := w.cfg.Notifier.Show(Notification{
		Title:              payload.Title,
		Body:               payload.Body,
		Icon:               payload.Icon,
		Tag:                DedupTag(payload),
		RequireInteraction: true,
		Sound:              sound,
	})
	switch {
	case errors.Is(err, ErrPermissionDenied):
		// Surface once, no auto-retry. Nothing else in the queue will
		// fare better until the user changes the OS setting.
		w.permissionOnce.Do(func() {
			log.Printf("pushworker: notifications blocked by the OS, further payloads will be dropped silently")
		})
		observability.IncPushHandled("permission_denied")
		return nil
	case err != nil:
		observability.IncPushHandled("notifier_error")
		return err
	}

	observability.IncPushHandled("shown")
	w.ackShown(ctx, payload.MessageID)
	return nil
}

// ackShown tells a running foreground which message id was just surfaced so
// its toast path stays quiet for that id. Best effort: no foreground, no ack.
func (w *Worker) ackShown(ctx context.Context, messageID string) {
	if messageID == "" || w.cfg.ForegroundSocket == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err := ipc.Send(sendCtx, w.cfg.ForegroundSocket, ipc.Message{
		Type:      ipc.TypeNotificationShown,
		MessageID: messageID,
	})
	if err != nil && !errors.Is(err, ipc.ErrNoPeer) {
		log.Printf("pushworker: shown ack failed: %v", err)
	}
}

// HandleClick reacts to the user activating a notification: route a running
// foreground to the conversation, or launch one pointed at it.
func (w *Worker) HandleClick(ctx context.Context, payload models.PushPayload) error {
	url := TargetURL(payload)

	if w.cfg.ForegroundSocket != "" {
		sendCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := ipc.Send(sendCtx, w.cfg.ForegroundSocket, ipc.Message{
			Type: ipc.TypeNavigate,
			URL:  url,
		})
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ipc.ErrNoPeer) {
			return err
		}
	}

	if w.cfg.Launch == nil {
		return ipc.ErrNoPeer
	}
	return w.cfg.Launch(ctx, url)
}

// Source is the queue feeding the worker, satisfied by rabbitmq.Consumer.
type Source interface {
	Consume(ctx context.Context, handler func([]byte) error) error
}

// Run consumes from the source until the context ends.
func (w *Worker) Run(ctx context.Context, src Source) error {
	return src.Consume(ctx, func(raw []byte) error {
		return w.Handle(ctx, raw)
	})
}
