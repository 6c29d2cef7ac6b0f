package chat

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Authenticator checks a username/password pair.
type Authenticator interface {
	Verify(username, password string) error
}

// Hub coordinates every session of the service: it owns the registries,
// runs one session per connection and shuts them down together.
type Hub struct {
	log        *slog.Logger
	auth       Authenticator
	sessions   *SessionRegistry
	groups     *GroupRegistry
	dispatcher *Dispatcher

	mu       sync.Mutex
	live     map[ConnID]*Peer
	stopping bool
	wg       sync.WaitGroup
}

// NewHub creates a hub that authenticates with auth and enforces limits.
func NewHub(log *slog.Logger, auth Authenticator, limits Limits) *Hub {
	sessions := NewSessionRegistry(limits)
	groups := NewGroupRegistry(limits)

	return &Hub{
		log:        log,
		auth:       auth,
		sessions:   sessions,
		groups:     groups,
		dispatcher: NewDispatcher(log, sessions, groups),
		live:       make(map[ConnID]*Peer),
	}
}

// Sessions exposes the session registry.
func (h *Hub) Sessions() *SessionRegistry {
	return h.sessions
}

// Groups exposes the group registry.
func (h *Hub) Groups() *GroupRegistry {
	return h.groups
}

// Handle starts a session for t in its own goroutine and returns at once.
func (h *Hub) Handle(t Transport) {
	peer := NewPeer(t)
	if !h.track(peer) {
		_ = peer.Close()
		return
	}

	go func() {
		defer h.untrack(peer)
		newSession(h, peer).run()
	}()
}

// Serve runs a session for t on the calling goroutine until it terminates.
func (h *Hub) Serve(t Transport) {
	peer := NewPeer(t)
	if !h.track(peer) {
		_ = peer.Close()
		return
	}
	defer h.untrack(peer)

	newSession(h, peer).run()
}

func (h *Hub) track(peer *Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping {
		return false
	}
	h.live[peer.ID()] = peer
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(peer *Peer) {
	h.mu.Lock()
	delete(h.live, peer.ID())
	h.mu.Unlock()

	h.wg.Done()
}

func (h *Hub) isStopping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.stopping
}

// admit verifies credentials and registers the session, returning the
// sessions that were already active.
func (h *Hub) admit(peer *Peer, username, password string) ([]Session, error) {
	if h.isStopping() {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, ErrStopping)
	}
	if err := h.auth.Verify(username, password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	others, err := h.sessions.Register(peer, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	return others, nil
}

// detach removes the connection from the session registry and, under the
// same lock, from every group.
func (h *Hub) detach(id ConnID) []string {
	var removed []string
	h.sessions.Unregister(id, func(id ConnID) {
		removed = h.groups.RemoveMember(id)
	})
	return removed
}

// Shutdown stops admitting sessions, closes every live connection and waits
// for the sessions to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info("Initiating hub shutdown...")

	h.mu.Lock()
	h.stopping = true
	peers := lo.Values(h.live)
	h.mu.Unlock()

	for _, p := range peers {
		if err := p.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("Error closing connection", "conn", p.ID(), "error", err)
		}
	}
	h.log.Info("Closed client connections", "count", len(peers))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-ctx.Done():
		h.log.Warn("Hub shutdown timeout reached, some sessions may still be running")
		return ctx.Err()
	}
}

// GroupStats describes one group in a Stats snapshot.
type GroupStats struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Stats is a point-in-time view of the registries.
type Stats struct {
	Sessions int          `json:"sessions"`
	Users    []string     `json:"users"`
	Groups   []GroupStats `json:"groups"`
}

// Stats returns a snapshot of the registries.
func (h *Hub) Stats() Stats {
	sessions := h.sessions.Snapshot()
	groups := lo.MapToSlice(h.groups.Sizes(), func(name string, members int) GroupStats {
		return GroupStats{Name: name, Members: members}
	})
	slices.SortFunc(groups, func(a, b GroupStats) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return Stats{
		Sessions: len(sessions),
		Users:    usernamesOf(sessions),
		Groups:   groups,
	}
}
