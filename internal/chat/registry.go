package chat

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Limits caps the shared registries. Zero values mean unbounded.
type Limits struct {
	MaxSessions     int
	MaxGroups       int
	MaxGroupSize    int
	UniqueUsernames bool
}

// Session is the authenticated association between one connection and one
// username.
type Session struct {
	Peer     *Peer
	Username string

	seq uint64
}

// SessionRegistry maps live connections to their authenticated usernames.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[ConnID]Session
	nextSeq  uint64
	limits   Limits
}

// NewSessionRegistry creates an empty registry enforcing limits.
func NewSessionRegistry(limits Limits) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[ConnID]Session),
		limits:   limits,
	}
}

// Register adds peer under username and returns, from the same critical
// section, the sessions that were already registered in registration order.
func (r *SessionRegistry) Register(peer *Peer, username string) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[peer.ID()]; exists {
		return nil, ErrAlreadyRegistered
	}
	if r.limits.MaxSessions > 0 && len(r.sessions) >= r.limits.MaxSessions {
		return nil, ErrSessionLimit
	}
	if r.limits.UniqueUsernames {
		taken := lo.SomeBy(lo.Values(r.sessions), func(s Session) bool {
			return s.Username == username
		})
		if taken {
			return nil, ErrUsernameTaken
		}
	}

	others := r.orderedLocked()

	r.nextSeq++
	r.sessions[peer.ID()] = Session{Peer: peer, Username: username, seq: r.nextSeq}

	return others, nil
}

// Unregister removes the session for id. cleanup, when non-nil, runs while
// the session lock is still held so that dependent state (group
// memberships) disappears in the same step.
func (r *SessionRegistry) Unregister(id ConnID, cleanup func(ConnID)) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)

	if cleanup != nil {
		cleanup(id)
	}
	return s, true
}

// Find returns the session registered under username. Usernames are not
// unique unless Limits.UniqueUsernames is set; the earliest registered
// session wins.
func (r *SessionRegistry) Find(username string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := lo.Filter(lo.Values(r.sessions), func(s Session, _ int) bool {
		return s.Username == username
	})
	if len(matches) == 0 {
		return Session{}, false
	}
	return lo.MinBy(matches, func(a, b Session) bool { return a.seq < b.seq }), true
}

// Contains reports whether id is registered.
func (r *SessionRegistry) Contains(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[id]
	return ok
}

// Snapshot returns every session in registration order.
func (r *SessionRegistry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.orderedLocked()
}

// Peers returns every registered connection.
func (r *SessionRegistry) Peers() []*Peer {
	return peersOf(r.Snapshot())
}

// Others returns every registered connection except id.
func (r *SessionRegistry) Others(id ConnID) []*Peer {
	others := lo.Reject(r.Snapshot(), func(s Session, _ int) bool {
		return s.Peer.ID() == id
	})
	return peersOf(others)
}

// Len returns the number of registered sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *SessionRegistry) orderedLocked() []Session {
	ordered := lo.Values(r.sessions)
	slices.SortFunc(ordered, func(a, b Session) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return ordered
}

func peersOf(sessions []Session) []*Peer {
	return lo.Map(sessions, func(s Session, _ int) *Peer { return s.Peer })
}

func usernamesOf(sessions []Session) []string {
	return lo.Map(sessions, func(s Session, _ int) string { return s.Username })
}

type memberSet map[ConnID]*Peer

// GroupRegistry maps group names to their member connections. Groups are
// never deleted, even when their last member leaves.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[string]memberSet
	limits Limits
}

// NewGroupRegistry creates an empty registry enforcing limits.
func NewGroupRegistry(limits Limits) *GroupRegistry {
	return &GroupRegistry{
		groups: make(map[string]memberSet),
		limits: limits,
	}
}

// Create adds a group whose only member is owner.
func (g *GroupRegistry) Create(name string, owner *Peer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.groups[name]; exists {
		return ErrGroupExists
	}
	if g.limits.MaxGroups > 0 && len(g.groups) >= g.limits.MaxGroups {
		return ErrTooManyGroups
	}

	g.groups[name] = memberSet{owner.ID(): owner}
	return nil
}

// Join adds peer to the group and returns the members that were already in
// it.
func (g *GroupRegistry) Join(name string, peer *Peer) ([]*Peer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, exists := g.groups[name]
	if !exists {
		return nil, ErrGroupNotFound
	}
	if _, ok := members[peer.ID()]; ok {
		return nil, ErrAlreadyMember
	}
	if g.limits.MaxGroupSize > 0 && len(members) >= g.limits.MaxGroupSize {
		return nil, ErrGroupFull
	}

	existing := lo.Values(members)
	members[peer.ID()] = peer
	return existing, nil
}

// Leave removes id from the group and returns the remaining members. It
// mutates nothing when the group is missing or id is not a member.
func (g *GroupRegistry) Leave(name string, id ConnID) ([]*Peer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, exists := g.groups[name]
	if !exists {
		return nil, ErrGroupNotFound
	}
	if _, ok := members[id]; !ok {
		return nil, ErrNotMember
	}

	delete(members, id)
	return lo.Values(members), nil
}

// Recipients returns all members of the group, provided id is one of them.
// The membership check and the snapshot happen under one lock.
func (g *GroupRegistry) Recipients(name string, id ConnID) ([]*Peer, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members, exists := g.groups[name]
	if !exists {
		return nil, ErrGroupNotFound
	}
	if _, ok := members[id]; !ok {
		return nil, ErrNotMember
	}
	return lo.Values(members), nil
}

// RemoveMember drops id from every group and returns the names of the groups
// it was removed from.
func (g *GroupRegistry) RemoveMember(id ConnID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []string
	for name, members := range g.groups {
		if _, ok := members[id]; ok {
			delete(members, id)
			removed = append(removed, name)
		}
	}
	slices.Sort(removed)
	return removed
}

// Members returns the member ids of a group.
func (g *GroupRegistry) Members(name string) ([]ConnID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members, exists := g.groups[name]
	if !exists {
		return nil, false
	}
	return lo.Keys(members), true
}

// IsMember reports whether id belongs to the group.
func (g *GroupRegistry) IsMember(name string, id ConnID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.groups[name][id]
	return ok
}

// Sizes returns the member count of every group.
func (g *GroupRegistry) Sizes() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return lo.MapValues(g.groups, func(members memberSet, _ string) int {
		return len(members)
	})
}

// Len returns the number of groups.
func (g *GroupRegistry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.groups)
}
