// Package ipc carries single-machine messages between the push worker and a
// foreground client over a unix socket, one JSON object per line.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// TypeNavigate asks the foreground to open an in-app URL.
	TypeNavigate = "NAVIGATE"
	// TypeNotificationShown tells the foreground a push notification was
	// surfaced for a message id, so it can seed its dedup ledger.
	TypeNotificationShown = "NOTIFICATION_SHOWN"
	// TypeClaim tells an older instance a newer one owns the endpoint now.
	TypeClaim = "CLAIM"
)

// ErrNoPeer reports that nothing is listening on the socket.
var ErrNoPeer = errors.New("no ipc peer")

// Message is one line on the socket.
type Message struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Handler receives inbound messages. It runs on the listener goroutine for
// each connection; keep it fast.
type Handler func(Message)

// DefaultSocketPath returns the per-user socket location for a role
// ("client" or "pushd").
func DefaultSocketPath(role string) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("ichat-%s.sock", role))
}

// Listener accepts messages on a unix socket.
type Listener struct {
	path    string
	ln      net.Listener
	handler Handler

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Listen claims the socket path and starts accepting. If a live peer already
// holds the path it is told to stand down with a CLAIM message first; a dead
// socket file is removed.
func Listen(path string, h Handler) (*Listener, error) {
	if err := claim(path); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc listen %s: %w", path, err)
	}

	l := &Listener{path: path, ln: ln, handler: h}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

// claim evicts whatever holds the socket path. A reachable peer gets a CLAIM
// and a moment to exit; either way the stale file is unlinked.
func claim(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Send(ctx, path, Message{Type: TypeClaim}); err == nil {
		time.Sleep(100 * time.Millisecond)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ipc claim %s: %w", path, err)
	}
	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if !closed {
				log.Printf("ipc: accept: %v", err)
			}
			return
		}
		l.wg.Add(1)
		go l.serve(conn)
	}
}

func (l *Listener) serve(conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Printf("ipc: dropping malformed message: %v", err)
			continue
		}
		l.handler(msg)
	}
}

// Addr returns the socket path the listener is bound to.
func (l *Listener) Addr() string { return l.path }

// Close stops accepting and removes the socket file.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.ln.Close()
	l.wg.Wait()
	os.Remove(l.path)
	return err
}

// Send delivers one message to the peer listening at path. ErrNoPeer means
// nothing is listening; the caller decides whether to launch one.
func Send(ctx context.Context, path string, msg Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoPeer, path)
	}
	defer conn.Close()

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(raw); err != nil {
		return fmt.Errorf("ipc send: %w", err)
	}
	return nil
}
