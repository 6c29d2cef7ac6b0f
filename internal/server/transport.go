package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// lineConn frames a TCP stream into lines.
//
// Complete lines are split on '\n' with a trailing '\r' dropped. Until the
// client sends its first terminator, a read shorter than the buffer that
// carries none is taken as one whole command, so clients that write one
// unterminated command per send keep working. After that the connection is
// framed on terminators only and fragments wait for the rest of their line.
// Lines longer than maxLine bytes are dropped up to their terminator.
type lineConn struct {
	conn         net.Conn
	writeTimeout time.Duration
	maxLine      int

	buf     []byte
	pending []byte
	lines   []string
	framed  bool
	skip    bool
	err     error
}

func newLineConn(conn net.Conn, maxLine int, writeTimeout time.Duration) *lineConn {
	if maxLine <= 0 {
		maxLine = defaultMaxLineLength
	}
	return &lineConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		maxLine:      maxLine,
		buf:          make([]byte, maxLine),
	}
}

// ReadLine returns the next framed line. Once the stream has failed, queued
// lines are still handed out before the error.
func (c *lineConn) ReadLine() (string, error) {
	for len(c.lines) == 0 {
		if c.err != nil {
			return "", c.err
		}

		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.split(c.buf[:n], n == len(c.buf))
		}
		if err != nil {
			c.fail(err)
		}
	}

	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}

func (c *lineConn) split(chunk []byte, full bool) {
	for {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			break
		}
		c.framed = true
		c.hold(chunk[:i])
		c.emit()
		chunk = chunk[i+1:]
	}
	c.hold(chunk)

	// A full buffer may be cut mid-command, so it waits for the next read.
	if !c.framed && !full {
		c.emit()
	}
}

// hold appends b to the pending line, switching to skip mode once the line
// outgrows maxLine.
func (c *lineConn) hold(b []byte) {
	if c.skip {
		return
	}
	if len(c.pending)+len(b) > c.maxLine {
		c.skip = true
		c.pending = c.pending[:0]
		return
	}
	c.pending = append(c.pending, b...)
}

func (c *lineConn) emit() {
	if !c.skip {
		c.lines = append(c.lines, strings.TrimSuffix(string(c.pending), "\r"))
	}
	c.pending = c.pending[:0]
	c.skip = false
}

// fail records a read error. A fragment still pending at end of stream is
// delivered as a final line.
func (c *lineConn) fail(err error) {
	if errors.Is(err, io.EOF) && len(c.pending) > 0 {
		c.emit()
	}
	c.err = err
}

func (c *lineConn) WriteString(s string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, s)
	return err
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}

func (c *lineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
