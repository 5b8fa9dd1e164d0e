package pushworker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichat-sync/internal/ipc"
	"ichat-sync/internal/models"
)

type fakeNotifier struct {
	mu    sync.Mutex
	shown []Notification
	err   error
}

func (n *fakeNotifier) Show(notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.shown = append(n.shown, notification)
	return nil
}

func (n *fakeNotifier) last(t *testing.T) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.shown)
	return n.shown[len(n.shown)-1]
}

func TestParsePayloadFallsBackToPlainText(t *testing.T) {
	p := ParsePayload([]byte("server is restarting in 5 minutes"))
	assert.Equal(t, FallbackTitle, p.Title)
	assert.Equal(t, "server is restarting in 5 minutes", p.Body)

	// Valid JSON with none of our fields degrades the same way.
	p = ParsePayload([]byte(`{"unexpected":"shape"}`))
	assert.Equal(t, FallbackTitle, p.Title)
}

func TestParsePayloadKeepsStructuredPayloads(t *testing.T) {
	raw := []byte(`{"title":"alice","body":"hi","data":{"chatId":"c1"},"messageId":"m1"}`)
	p := ParsePayload(raw)
	assert.Equal(t, "alice", p.Title)
	assert.Equal(t, models.ChatRef("c1"), p.Ref())
	assert.Equal(t, "m1", p.MessageID)
}

func TestDedupTagPreference(t *testing.T) {
	assert.Equal(t, "custom", DedupTag(models.PushPayload{Tag: "custom"}))
	assert.Equal(t, "chat-c1", DedupTag(models.PushPayload{Data: models.PushData{ChatID: "c1"}}))
	assert.Equal(t, "group-g1", DedupTag(models.PushPayload{Data: models.PushData{GroupID: "g1"}}))

	// Untaggable payloads get unique tags so they never collapse together.
	a := DedupTag(models.PushPayload{})
	b := DedupTag(models.PushPayload{})
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestHandleRendersWithRequireInteraction(t *testing.T) {
	notifier := &fakeNotifier{}
	w := New(Config{Notifier: notifier, SoundEnabled: true})

	raw := []byte(`{"title":"alice","body":"hi","data":{"chatId":"c1"},"messageId":"m1"}`)
	require.NoError(t, w.Handle(context.Background(), raw))

	n := notifier.last(t)
	assert.True(t, n.RequireInteraction)
	assert.True(t, n.Sound)
	assert.Equal(t, "chat-c1", n.Tag)
}

func TestHandlePayloadSoundPreferenceWins(t *testing.T) {
	notifier := &fakeNotifier{}
	w := New(Config{Notifier: notifier, SoundEnabled: true})

	raw := []byte(`{"title":"alice","body":"hi","soundEnabled":false}`)
	require.NoError(t, w.Handle(context.Background(), raw))
	assert.False(t, notifier.last(t).Sound)
}

func TestHandleNonJSONStillNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	w := New(Config{Notifier: notifier})

	require.NoError(t, w.Handle(context.Background(), []byte("not json at all")))
	n := notifier.last(t)
	assert.Equal(t, FallbackTitle, n.Title)
	assert.Equal(t, "not json at all", n.Body)
}

func TestHandlePermissionDeniedAbsorbed(t *testing.T) {
	notifier := &fakeNotifier{err: ErrPermissionDenied}
	w := New(Config{Notifier: notifier})

	// Absorbed so the queue does not redeliver forever.
	assert.NoError(t, w.Handle(context.Background(), []byte(`{"title":"a","body":"b"}`)))
	assert.NoError(t, w.Handle(context.Background(), []byte(`{"title":"a","body":"b"}`)))
}

func TestHandleTransientNotifierErrorPropagates(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("dbus hiccup")}
	w := New(Config{Notifier: notifier})
	assert.Error(t, w.Handle(context.Background(), []byte(`{"title":"a","body":"b"}`)))
}

func TestHandleAcksShownOverIPC(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "fg.sock")
	var mu sync.Mutex
	var acks []ipc.Message
	l, err := ipc.Listen(socket, func(msg ipc.Message) {
		mu.Lock()
		acks = append(acks, msg)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer l.Close()

	w := New(Config{Notifier: &fakeNotifier{}, ForegroundSocket: socket})
	raw := []byte(`{"title":"alice","body":"hi","messageId":"m7"}`)
	require.NoError(t, w.Handle(context.Background(), raw))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(acks)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, acks, 1)
	assert.Equal(t, ipc.TypeNotificationShown, acks[0].Type)
	assert.Equal(t, "m7", acks[0].MessageID)
}

func TestHandleClickNavigatesRunningForeground(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "fg.sock")
	var mu sync.Mutex
	var got []ipc.Message
	l, err := ipc.Listen(socket, func(msg ipc.Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer l.Close()

	w := New(Config{Notifier: &fakeNotifier{}, ForegroundSocket: socket})
	payload := models.PushPayload{Data: models.PushData{GroupID: "g1"}}
	require.NoError(t, w.HandleClick(context.Background(), payload))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, ipc.TypeNavigate, got[0].Type)
	assert.Equal(t, "/groups/g1", got[0].URL)
}

func TestHandleClickLaunchesWhenNoForeground(t *testing.T) {
	var launchedURL string
	w := New(Config{
		Notifier:         &fakeNotifier{},
		ForegroundSocket: filepath.Join(t.TempDir(), "absent.sock"),
		Launch: func(_ context.Context, url string) error {
			launchedURL = url
			return nil
		},
	})

	payload := models.PushPayload{Data: models.PushData{ChatID: "c9", URL: "/chats/c9?focus=1"}}
	require.NoError(t, w.HandleClick(context.Background(), payload))
	assert.Equal(t, "/chats/c9?focus=1", launchedURL, "an explicit payload url wins over the derived one")
}

func TestRunFeedsSourceThroughHandle(t *testing.T) {
	notifier := &fakeNotifier{}
	w := New(Config{Notifier: notifier})

	src := sourceFunc(func(ctx context.Context, handler func([]byte) error) error {
		if err := handler([]byte(`{"title":"a","body":"1"}`)); err != nil {
			return err
		}
		return handler([]byte(`{"title":"a","body":"2"}`))
	})
	require.NoError(t, w.Run(context.Background(), src))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Len(t, notifier.shown, 2)
}

type sourceFunc func(ctx context.Context, handler func([]byte) error) error

func (f sourceFunc) Consume(ctx context.Context, handler func([]byte) error) error {
	return f(ctx, handler)
}
