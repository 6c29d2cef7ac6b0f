package chat

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ConnID identifies one accepted connection for its whole lifetime.
type ConnID string

// Transport is the raw stream a session talks over. Implementations frame
// input into lines and must allow WriteString and Close to be called from
// goroutines other than the one blocked in ReadLine.
type Transport interface {
	ReadLine() (string, error)
	WriteString(s string) error
	Close() error
	RemoteAddr() string
}

// Peer is the shared handle to a live connection. The owning session holds
// it; registries only keep the pointer. Writes are serialized so concurrent
// deliveries never interleave on the wire.
type Peer struct {
	id        ConnID
	transport Transport

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewPeer wraps a transport with a fresh connection id.
func NewPeer(t Transport) *Peer {
	return &Peer{
		id:        ConnID(uuid.NewString()),
		transport: t,
	}
}

// ID returns the connection id.
func (p *Peer) ID() ConnID {
	return p.id
}

// Addr returns the remote address of the underlying transport.
func (p *Peer) Addr() string {
	return p.transport.RemoteAddr()
}

// Deliver writes text followed by a line terminator. A failed write closes
// the peer and reports false; the owning session notices the closed
// transport on its next read and tears itself down.
func (p *Peer) Deliver(text string) bool {
	return p.write(text + "\n")
}

func (p *Peer) prompt(text string) bool {
	return p.write(text)
}

func (p *Peer) write(s string) bool {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.writeLocked(s)
}

// writeLocked writes with writeMu already held by the caller.
func (p *Peer) writeLocked(s string) bool {
	if p.closed.Load() {
		return false
	}
	if err := p.transport.WriteString(s); err != nil {
		_ = p.Close()
		return false
	}
	return true
}

func (p *Peer) readLine() (string, error) {
	return p.transport.ReadLine()
}

// Close closes the transport once. Later calls are no-ops.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.transport.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (p *Peer) Closed() bool {
	return p.closed.Load()
}

// Fanout delivers text to every peer independently and returns how many
// deliveries succeeded. One failing recipient never stops the others.
func Fanout(peers []*Peer, text string) int {
	delivered := 0
	for _, p := range peers {
		if p.Deliver(text) {
			delivered++
		}
	}
	return delivered
}
