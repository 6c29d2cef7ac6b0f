package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

var errBrokenPipe = errors.New("write: broken pipe")

// memTransport is an in-memory Transport. Lines pushed on in are returned by
// ReadLine; everything written lands on out.
type memTransport struct {
	addr       string
	in         chan string
	out        chan string
	closed     chan struct{}
	closeOnce  sync.Once
	closeCount atomic.Int32
	failWrites atomic.Bool
	// holdWelcome, when set, stalls the welcome write until it is closed.
	holdWelcome chan struct{}
}

func newMemTransport(addr string) *memTransport {
	return &memTransport{
		addr:   addr,
		in:     make(chan string, 64),
		out:    make(chan string, 1024),
		closed: make(chan struct{}),
	}
}

func (m *memTransport) ReadLine() (string, error) {
	select {
	case <-m.closed:
		return "", io.EOF
	default:
	}
	select {
	case line := <-m.in:
		return line, nil
	case <-m.closed:
		return "", io.EOF
	}
}

func (m *memTransport) WriteString(s string) error {
	if m.holdWelcome != nil && s == MsgWelcome+"\n" {
		<-m.holdWelcome
	}
	if m.failWrites.Load() {
		return errBrokenPipe
	}
	select {
	case <-m.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case m.out <- s:
		return nil
	default:
		return errors.New("output buffer full")
	}
}

func (m *memTransport) Close() error {
	m.closeCount.Add(1)
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *memTransport) RemoteAddr() string {
	return m.addr
}

func (m *memTransport) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type staticAuth map[string]string

func (a staticAuth) Verify(username, password string) error {
	stored, ok := a[username]
	if !ok {
		return errors.New("unknown user")
	}
	if stored != password {
		return errors.New("wrong password")
	}
	return nil
}

var testUsers = staticAuth{
	"alice": "password123",
	"bob":   "pw",
	"carol": "secret",
	"dave":  "hunter2",
}

// testClient drives a memTransport from the client side.
type testClient struct {
	t    *testing.T
	name string
	tr   *memTransport
}

func newTestClient(t *testing.T, name string) *testClient {
	t.Helper()
	return &testClient{t: t, name: name, tr: newMemTransport(name + ":1")}
}

func (c *testClient) send(line string) {
	c.tr.in <- line
}

func (c *testClient) next() string {
	c.t.Helper()
	select {
	case msg := <-c.tr.out:
		return strings.TrimSuffix(msg, "\n")
	case <-time.After(waitTimeout):
		c.t.Fatalf("%s: timed out waiting for a message", c.name)
		return ""
	}
}

func (c *testClient) expect(want string) {
	c.t.Helper()
	require.Equal(c.t, want, c.next(), "client %s", c.name)
}

func (c *testClient) expectAll(wants ...string) {
	c.t.Helper()
	got := make([]string, 0, len(wants))
	for range wants {
		got = append(got, c.next())
	}
	require.ElementsMatch(c.t, wants, got, "client %s", c.name)
}

func (c *testClient) expectNothing(d time.Duration) {
	c.t.Helper()
	select {
	case msg := <-c.tr.out:
		c.t.Fatalf("%s: expected no message, got %q", c.name, msg)
	case <-time.After(d):
	}
}

func (c *testClient) disconnect() {
	_ = c.tr.Close()
}

// login runs the handshake against hub and consumes the welcome line. The
// active-users line is left for the caller to assert.
func login(t *testing.T, hub *Hub, name, password string) *testClient {
	t.Helper()
	c := newTestClient(t, name)
	hub.Handle(c.tr)

	c.expect(PromptUsername)
	c.send(name)
	c.expect(PromptPassword)
	c.send(password)
	c.expect(MsgWelcome)
	return c
}

func newTestHub(t *testing.T, limits Limits) *Hub {
	t.Helper()
	hub := NewHub(discardLogger(), testUsers, limits)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return hub
}

func memPeer(name string) (*Peer, *memTransport) {
	tr := newMemTransport(name)
	return NewPeer(tr), tr
}
