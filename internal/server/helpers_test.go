package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/credentials"
)

const ioTimeout = 2 * time.Second

var testUsers = credentials.FromUsers(
	credentials.User{Username: "alice", Password: "password123"},
	credentials.User{Username: "bob", Password: "pw"},
	credentials.User{Username: "carol", Password: "secret"},
)

func testConfig() Config {
	cfg := *NewConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.WriteTimeout = ioTimeout
	return cfg
}

func newHub(t *testing.T, limits chat.Limits) *chat.Hub {
	t.Helper()
	hub := chat.NewHub(testLogger(), testUsers, limits)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return hub
}

// startTCP runs a TCP acceptor for hub on a loopback port.
func startTCP(t *testing.T, hub *chat.Hub, cfg Config) *TCPServer {
	t.Helper()
	srv := NewTCPServer(testLogger(), hub, cfg)
	require.NoError(t, srv.Listen())

	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

type tcpClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTCP(t *testing.T, addr net.Addr) *tcpClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), ioTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &tcpClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// expectPrompt reads an unterminated prompt.
func (c *tcpClient) expectPrompt(prompt string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	buf := make([]byte, len(prompt))
	_, err := io.ReadFull(c.r, buf)
	require.NoError(c.t, err)
	require.Equal(c.t, prompt, string(buf))
}

func (c *tcpClient) expect(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	got, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	require.Equal(c.t, line, strings.TrimSuffix(got, "\n"))
}

func (c *tcpClient) send(line string) {
	c.sendRaw(line + "\n")
}

func (c *tcpClient) sendRaw(data string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(data))
	require.NoError(c.t, err)
}

func (c *tcpClient) expectEOF() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, err := c.r.ReadByte()
	require.ErrorIs(c.t, err, io.EOF)
}

// login completes the handshake and consumes the welcome line.
func (c *tcpClient) login(username, password string) {
	c.t.Helper()
	c.expectPrompt(chat.PromptUsername)
	c.send(username)
	c.expectPrompt(chat.PromptPassword)
	c.send(password)
	c.expect(chat.MsgWelcome)
}

// startHTTP serves the routes for hub on an httptest server that is allowed
// as its own origin.
func startHTTP(t *testing.T, hub *chat.Hub, cfg Config) *httptest.Server {
	t.Helper()
	ts := httptest.NewUnstartedServer(nil)
	cfg.AllowedOrigins = "http://" + ts.Listener.Addr().String()
	ts.Config.Handler = SetupRoutes(testLogger(), hub, cfg)
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, ts *httptest.Server, origin string) (*wsClient, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, resp, err
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}, resp, nil
}

func (c *wsClient) expect(text string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, payload, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	require.Equal(c.t, text, string(payload))
}

func (c *wsClient) send(text string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func (c *wsClient) login(username, password string) {
	c.t.Helper()
	c.expect(chat.PromptUsername)
	c.send(username)
	c.expect(chat.PromptPassword)
	c.send(password)
	c.expect(chat.MsgWelcome)
}
