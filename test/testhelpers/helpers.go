// Package testhelpers provides clients and fixtures shared by the end-to-end
// tests: a running chat stack on loopback ports and line-protocol clients for
// its TCP and WebSocket endpoints.
package testhelpers

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/credentials"
	"github.com/Tyrowin/linechat/internal/server"
)

// Timeout bounds every read the helpers perform.
const Timeout = 2 * time.Second

// Credentials is the users file every Stack loads.
const Credentials = `alice:password123
bob:pw
carol:secret
this line is malformed
dave:pass:with:colons
`

// Stack is a running chat service: hub, TCP acceptor and HTTP routes.
type Stack struct {
	Hub  *chat.Hub
	TCP  *server.TCPServer
	HTTP *httptest.Server
	Log  *slog.Logger
}

// StartStack loads Credentials from a file and serves a hub on loopback
// ports. customize may adjust the config before anything starts.
func StartStack(t *testing.T, customize func(cfg *server.Config)) *Stack {
	t.Helper()

	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(path, []byte(Credentials), 0o600))

	cfg := *server.NewConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.CredentialsFile = path
	if customize != nil {
		customize(&cfg)
	}

	log := logs.GetLoggerFromLevel(slog.LevelError)
	store, err := credentials.LoadFile(cfg.CredentialsFile)
	require.NoError(t, err)

	s := &Stack{Log: log, Hub: chat.NewHub(log, store, cfg.Limits())}

	s.TCP = server.NewTCPServer(log, s.Hub, cfg)
	require.NoError(t, s.TCP.Listen())
	go func() { _ = s.TCP.Serve() }()

	s.HTTP = httptest.NewUnstartedServer(nil)
	cfg.AllowedOrigins = "http://" + s.HTTP.Listener.Addr().String()
	s.HTTP.Config.Handler = server.SetupRoutes(log, s.Hub, cfg)
	s.HTTP.Start()

	t.Cleanup(func() {
		_ = s.TCP.Close()
		s.HTTP.Close()
		ctx, cancel := context.WithTimeout(context.Background(), Timeout)
		defer cancel()
		_ = s.Hub.Shutdown(ctx)
	})
	return s
}

// Origin is the browser origin the stack accepts WebSocket upgrades from.
func (s *Stack) Origin() string {
	return s.HTTP.URL
}

// LineClient speaks the chat protocol over TCP.
type LineClient struct {
	t    *testing.T
	Conn net.Conn
	r    *bufio.Reader
}

// DialTCP connects to the stack's TCP endpoint.
func (s *Stack) DialTCP(t *testing.T) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.TCP.Addr().String(), Timeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &LineClient{t: t, Conn: conn, r: bufio.NewReader(conn)}
}

// ExpectPrompt reads a prompt, which carries no line terminator.
func (c *LineClient) ExpectPrompt(prompt string) {
	c.t.Helper()
	require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(Timeout)))
	buf := make([]byte, len(prompt))
	_, err := io.ReadFull(c.r, buf)
	require.NoError(c.t, err)
	require.Equal(c.t, prompt, string(buf))
}

// Next reads one line without its terminator.
func (c *LineClient) Next() string {
	c.t.Helper()
	require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(Timeout)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *LineClient) Expect(line string) {
	c.t.Helper()
	require.Equal(c.t, line, c.Next())
}

// ExpectNothing asserts that no line arrives within d.
func (c *LineClient) ExpectNothing(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(d)))
	_, err := c.r.ReadByte()
	var ne net.Error
	require.ErrorAs(c.t, err, &ne)
	require.True(c.t, ne.Timeout())
}

// ExpectClosed asserts that the server closed the connection.
func (c *LineClient) ExpectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(Timeout)))
	_, err := c.r.ReadByte()
	require.ErrorIs(c.t, err, io.EOF)
}

func (c *LineClient) Send(line string) {
	c.t.Helper()
	_, err := c.Conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

// Login completes the handshake and consumes the welcome line.
func (c *LineClient) Login(username, password string) {
	c.t.Helper()
	c.ExpectPrompt(chat.PromptUsername)
	c.Send(username)
	c.ExpectPrompt(chat.PromptPassword)
	c.Send(password)
	c.Expect(chat.MsgWelcome)
}

// FrameClient speaks the chat protocol over the WebSocket bridge.
type FrameClient struct {
	t    *testing.T
	Conn *websocket.Conn
}

// DialWS opens a WebSocket session from the stack's allowed origin.
func (s *Stack) DialWS(t *testing.T) *FrameClient {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", s.Origin())

	dialer := websocket.Dialer{HandshakeTimeout: Timeout}
	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(s.HTTP.URL, "http")+"/ws", header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &FrameClient{t: t, Conn: conn}
}

func (c *FrameClient) Expect(text string) {
	c.t.Helper()
	require.NoError(c.t, c.Conn.SetReadDeadline(time.Now().Add(Timeout)))
	_, payload, err := c.Conn.ReadMessage()
	require.NoError(c.t, err)
	require.Equal(c.t, text, string(payload))
}

func (c *FrameClient) Send(text string) {
	c.t.Helper()
	require.NoError(c.t, c.Conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func (c *FrameClient) Login(username, password string) {
	c.t.Helper()
	c.Expect(chat.PromptUsername)
	c.Send(username)
	c.Expect(chat.PromptPassword)
	c.Send(password)
	c.Expect(chat.MsgWelcome)
}
