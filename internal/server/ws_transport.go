package server

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConn carries the line protocol over WebSocket text frames. Every write
// becomes one frame without its trailing terminator; every received frame
// is one or more lines.
type wsConn struct {
	conn         *websocket.Conn
	addr         string
	writeTimeout time.Duration

	lines []string

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, addr string, maxLine int, writeTimeout time.Duration) *wsConn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	conn.SetReadLimit(int64(maxLine))
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &wsConn{
		conn:         conn,
		addr:         addr,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go c.keepAlive()
	return c
}

func (c *wsConn) ReadLine() (string, error) {
	for len(c.lines) == 0 {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		text := strings.TrimSuffix(strings.TrimSuffix(string(payload), "\n"), "\r")
		for _, line := range strings.Split(text, "\n") {
			c.lines = append(c.lines, strings.TrimSuffix(line, "\r"))
		}
	}

	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}

// WriteString is serialized by the caller; gorilla allows one concurrent
// writer plus control frames.
func (c *wsConn) WriteString(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimSuffix(s, "\n")))
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string {
	return c.addr
}

func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		}
	}
}
