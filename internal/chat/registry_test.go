package chat

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_Register_ReturnsOthersInOrder(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(Limits{})
	alice, _ := memPeer("alice")
	bob, _ := memPeer("bob")
	carol, _ := memPeer("carol")

	// Given no one is registered
	others, err := registry.Register(alice, "alice")
	req.NoError(err)
	req.Empty(others)

	// When two more users register
	_, err = registry.Register(bob, "bob")
	req.NoError(err)
	others, err = registry.Register(carol, "carol")
	req.NoError(err)

	// Then the last one sees the others in registration order
	req.Equal([]string{"alice", "bob"}, usernamesOf(others))
	req.Equal(3, registry.Len())
	req.Equal([]*Peer{alice, carol}, registry.Others(bob.ID()))
}

func TestSessionRegistry_Register_Twice(t *testing.T) {
	registry := NewSessionRegistry(Limits{})
	alice, _ := memPeer("alice")

	_, err := registry.Register(alice, "alice")
	require.NoError(t, err)
	_, err = registry.Register(alice, "alice")
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestSessionRegistry_SessionLimit(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(Limits{MaxSessions: 2})

	for i := 0; i < 2; i++ {
		p, _ := memPeer(fmt.Sprintf("p%d", i))
		_, err := registry.Register(p, "alice")
		req.NoError(err)
	}

	extra, _ := memPeer("extra")
	_, err := registry.Register(extra, "alice")
	req.ErrorIs(err, ErrSessionLimit)
	req.Equal(2, registry.Len())
	req.False(registry.Contains(extra.ID()))
}

func TestSessionRegistry_UniqueUsernames(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(Limits{UniqueUsernames: true})
	first, _ := memPeer("first")
	second, _ := memPeer("second")

	_, err := registry.Register(first, "alice")
	req.NoError(err)
	_, err = registry.Register(second, "alice")
	req.ErrorIs(err, ErrUsernameTaken)
}

func TestSessionRegistry_Find_FirstRegisteredWins(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(Limits{})
	first, _ := memPeer("first")
	second, _ := memPeer("second")

	_, err := registry.Register(first, "alice")
	req.NoError(err)
	_, err = registry.Register(second, "alice")
	req.NoError(err)

	found, ok := registry.Find("alice")
	req.True(ok)
	req.Same(first, found.Peer)

	// When the first session leaves, the second one becomes addressable
	registry.Unregister(first.ID(), nil)
	found, ok = registry.Find("alice")
	req.True(ok)
	req.Same(second, found.Peer)

	_, ok = registry.Find("bob")
	req.False(ok)
}

func TestSessionRegistry_Unregister_RunsCleanupUnderLock(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry(Limits{})
	alice, _ := memPeer("alice")
	_, err := registry.Register(alice, "alice")
	req.NoError(err)

	var sawRemoved bool
	session, ok := registry.Unregister(alice.ID(), func(id ConnID) {
		req.Equal(alice.ID(), id)
		// The entry is already gone when cleanup runs.
		_, stillThere := registry.sessions[id]
		sawRemoved = !stillThere
	})
	req.True(ok)
	req.Equal("alice", session.Username)
	req.True(sawRemoved)

	_, ok = registry.Unregister(alice.ID(), func(ConnID) { t.Fatal("cleanup must not run twice") })
	req.False(ok)
}

func TestGroupRegistry_CreateJoinLeave(t *testing.T) {
	req := require.New(t)
	groups := NewGroupRegistry(Limits{})
	bob, _ := memPeer("bob")
	alice, _ := memPeer("alice")

	// Given bob created a group
	req.NoError(groups.Create("study", bob))
	req.ErrorIs(groups.Create("study", alice), ErrGroupExists)

	// When alice joins
	existing, err := groups.Join("study", alice)
	req.NoError(err)
	req.Equal([]*Peer{bob}, existing)

	// Then both are members
	members, ok := groups.Members("study")
	req.True(ok)
	req.ElementsMatch([]ConnID{bob.ID(), alice.ID()}, members)

	_, err = groups.Join("study", alice)
	req.ErrorIs(err, ErrAlreadyMember)

	// When bob leaves, alice remains
	remaining, err := groups.Leave("study", bob.ID())
	req.NoError(err)
	req.Equal([]*Peer{alice}, remaining)

	// When the last member leaves the group is retained
	_, err = groups.Leave("study", alice.ID())
	req.NoError(err)
	req.Equal(map[string]int{"study": 0}, groups.Sizes())
}

func TestGroupRegistry_Leave_DoesNotMutateOnError(t *testing.T) {
	req := require.New(t)
	groups := NewGroupRegistry(Limits{})
	bob, _ := memPeer("bob")
	alice, _ := memPeer("alice")
	req.NoError(groups.Create("study", bob))
	before := groups.Sizes()

	_, err := groups.Leave("missing", bob.ID())
	req.ErrorIs(err, ErrGroupNotFound)

	_, err = groups.Leave("study", alice.ID())
	req.ErrorIs(err, ErrNotMember)

	req.Equal(before, groups.Sizes())
	req.True(groups.IsMember("study", bob.ID()))
}

func TestGroupRegistry_Limits(t *testing.T) {
	req := require.New(t)
	groups := NewGroupRegistry(Limits{MaxGroups: 1, MaxGroupSize: 2})
	a, _ := memPeer("a")
	b, _ := memPeer("b")
	c, _ := memPeer("c")

	req.NoError(groups.Create("one", a))
	req.ErrorIs(groups.Create("two", a), ErrTooManyGroups)

	_, err := groups.Join("one", b)
	req.NoError(err)
	_, err = groups.Join("one", c)
	req.ErrorIs(err, ErrGroupFull)
	req.False(groups.IsMember("one", c.ID()))
}

func TestGroupRegistry_Recipients(t *testing.T) {
	req := require.New(t)
	groups := NewGroupRegistry(Limits{})
	bob, _ := memPeer("bob")
	alice, _ := memPeer("alice")
	req.NoError(groups.Create("study", bob))

	_, err := groups.Recipients("study", alice.ID())
	req.ErrorIs(err, ErrNotMember)

	_, err = groups.Recipients("missing", bob.ID())
	req.ErrorIs(err, ErrGroupNotFound)

	recipients, err := groups.Recipients("study", bob.ID())
	req.NoError(err)
	req.Equal([]*Peer{bob}, recipients)
}

func TestGroupRegistry_RemoveMember(t *testing.T) {
	req := require.New(t)
	groups := NewGroupRegistry(Limits{})
	bob, _ := memPeer("bob")
	alice, _ := memPeer("alice")
	req.NoError(groups.Create("b", bob))
	req.NoError(groups.Create("a", alice))
	_, err := groups.Join("a", bob)
	req.NoError(err)

	req.Equal([]string{"a", "b"}, groups.RemoveMember(bob.ID()))
	req.Equal(map[string]int{"a": 1, "b": 0}, groups.Sizes())
	req.Empty(groups.RemoveMember(bob.ID()))
}

// Two concurrent creates for one name yield exactly one group and one
// success.
func TestGroupRegistry_ConcurrentCreate(t *testing.T) {
	req := require.New(t)

	for round := 0; round < 50; round++ {
		groups := NewGroupRegistry(Limits{})
		var successes, conflicts atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 2; i++ {
			p, _ := memPeer(fmt.Sprintf("p%d", i))
			wg.Add(1)
			go func() {
				defer wg.Done()
				switch err := groups.Create("X", p); {
				case err == nil:
					successes.Add(1)
				case err == ErrGroupExists:
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		req.Equal(int32(1), successes.Load())
		req.Equal(int32(1), conflicts.Load())
		req.Equal(1, groups.Len())
		members, _ := groups.Members("X")
		req.Len(members, 1)
	}
}

// At every quiescent point each group member is also a registered session.
func TestRegistries_NoDanglingMembersAfterConcurrentChurn(t *testing.T) {
	req := require.New(t)
	hub := NewHub(discardLogger(), testUsers, Limits{})
	groupNames := []string{"g0", "g1", "g2", "g3"}

	for _, name := range groupNames {
		owner, _ := memPeer("owner-" + name)
		_, err := hub.sessions.Register(owner, "owner")
		req.NoError(err)
		req.NoError(hub.groups.Create(name, owner))
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _ := memPeer(fmt.Sprintf("worker-%d", i))
			if _, err := hub.sessions.Register(p, fmt.Sprintf("user%d", i)); err != nil {
				t.Errorf("register: %v", err)
				return
			}
			for j, name := range groupNames {
				if (i+j)%2 == 0 {
					_, _ = hub.groups.Join(name, p)
				}
			}
			if i%3 == 0 {
				_, _ = hub.groups.Leave(groupNames[i%len(groupNames)], p.ID())
			}
			if i%2 == 0 {
				hub.detach(p.ID())
			}
		}(i)
	}
	wg.Wait()

	for _, name := range groupNames {
		members, ok := hub.groups.Members(name)
		req.True(ok)
		for _, id := range members {
			req.True(hub.sessions.Contains(id), "dangling member %s in %s", id, name)
		}
	}
	req.Equal(len(groupNames)+32, hub.sessions.Len())
}
