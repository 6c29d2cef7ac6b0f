package chat

import "log/slog"

// State is a position in the per-connection lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// session drives one connection from accept to teardown. It is only ever
// touched by the goroutine running it.
type session struct {
	hub   *Hub
	peer  *Peer
	log   *slog.Logger
	state State

	username string
}

func newSession(hub *Hub, peer *Peer) *session {
	return &session{
		hub:   hub,
		peer:  peer,
		log:   hub.log.With("conn", peer.ID(), "addr", peer.Addr()),
		state: StateConnecting,
	}
}

func (s *session) run() {
	s.transition(StateAuthenticating)

	others, err := s.authenticate()
	if err != nil {
		s.log.Info("Authentication rejected", "user", s.username, "reason", err)
		s.transition(StateTerminated)
		_ = s.peer.Close()
		return
	}

	s.transition(StateActive)
	s.activate(others)
	s.loop()

	s.transition(StateTerminated)
	s.terminate()
}

func (s *session) transition(next State) {
	s.log.Debug("Session state change", "from", s.state, "to", next)
	s.state = next
}

// authenticate runs the two-step handshake and registers the session.
// Read failures end the session without a reply.
func (s *session) authenticate() ([]Session, error) {
	s.peer.prompt(PromptUsername)
	username, err := s.peer.readLine()
	if err != nil {
		return nil, err
	}
	s.username = username

	s.peer.prompt(PromptPassword)
	password, err := s.peer.readLine()
	if err != nil {
		return nil, err
	}

	// Once registered the peer is visible to other sessions, so their writes
	// wait until the greeting is out.
	s.peer.writeMu.Lock()
	others, err := s.hub.admit(s.peer, username, password)
	if err == nil {
		s.peer.writeLocked(MsgWelcome + "\n")
		s.peer.writeLocked(activeUsersLine(usernamesOf(others)) + "\n")
	}
	s.peer.writeMu.Unlock()

	if err != nil {
		s.peer.Deliver(MsgAuthFailed)
		return nil, err
	}
	return others, nil
}

func (s *session) activate(others []Session) {
	s.log.Info("User joined", "user", s.username, "others", len(others))
	Fanout(peersOf(others), joinedChat(s.username))
}

func (s *session) loop() {
	sender := Session{Peer: s.peer, Username: s.username}
	for {
		line, err := s.peer.readLine()
		if err != nil {
			if !isExpectedCloseError(err) {
				s.log.Warn("Read failed", "user", s.username, "error", err)
			}
			return
		}
		if !s.hub.dispatcher.Dispatch(sender, line) {
			s.log.Debug("Session exit requested", "user", s.username)
			return
		}
	}
}

func (s *session) terminate() {
	groups := s.hub.detach(s.peer.ID())
	_ = s.peer.Close()

	s.log.Info("User left", "user", s.username, "groups", groups)
	Fanout(s.hub.sessions.Peers(), leftChat(s.username))
}
