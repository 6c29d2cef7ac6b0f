package server

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Tyrowin/linechat/internal/chat"
)

// TCPServer accepts raw TCP connections and hands each one to the hub.
type TCPServer struct {
	log *slog.Logger
	hub *chat.Hub
	cfg Config

	mu       sync.Mutex
	listener net.Listener
	serving  bool
	stopping atomic.Bool
	quit     chan struct{}
	done     chan struct{}
}

// NewTCPServer creates a TCP acceptor for hub using cfg's address, line
// length and write timeout.
func NewTCPServer(log *slog.Logger, hub *chat.Hub, cfg Config) *TCPServer {
	return &TCPServer{
		log:  log,
		hub:  hub,
		cfg:  sanitizeConfig(cfg),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Listen binds the configured address.
func (s *TCPServer) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until Close is called. It returns nil after a
// requested stop and the accept error otherwise.
func (s *TCPServer) Serve() error {
	s.mu.Lock()
	ln := s.listener
	if ln == nil {
		s.mu.Unlock()
		return errors.New("tcp server: Serve called before Listen")
	}
	if s.stopping.Load() || s.serving {
		s.mu.Unlock()
		return nil
	}
	s.serving = true
	s.mu.Unlock()
	defer close(s.done)

	s.log.Info("Chat server listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() {
				return nil
			}
			if isTemporary(err) {
				backoff = nextBackoff(backoff)
				s.log.Warn("Accept failed, retrying", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-s.quit:
					return nil
				}
				continue
			}
			return err
		}
		backoff = 0

		s.log.Debug("Accepted connection", "addr", conn.RemoteAddr().String())
		s.hub.Handle(newLineConn(conn, s.cfg.MaxLineLength, s.cfg.WriteTimeout))
	}
}

// ListenAndServe binds the configured address and runs the accept loop.
func (s *TCPServer) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Close stops accepting new connections. Sessions already running are left
// to the hub.
func (s *TCPServer) Close() error {
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}
	close(s.quit)

	s.mu.Lock()
	ln, serving := s.listener, s.serving
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	s.log.Info("Stopping chat listener...")
	err := ln.Close()
	if serving {
		<-s.done
	}
	return err
}

// isTemporary reports whether an accept error is worth retrying. Running out
// of file descriptors passes once sessions close.
func isTemporary(err error) bool {
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
