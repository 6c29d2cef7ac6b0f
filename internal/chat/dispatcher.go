package chat

import "log/slog"

// Dispatcher executes parsed commands against the shared registries on
// behalf of one sender. Every error is turned into a reply to the sender;
// nothing is returned to the caller except whether the session should keep
// reading.
type Dispatcher struct {
	log      *slog.Logger
	sessions *SessionRegistry
	groups   *GroupRegistry
}

// NewDispatcher creates a dispatcher over the given registries.
func NewDispatcher(log *slog.Logger, sessions *SessionRegistry, groups *GroupRegistry) *Dispatcher {
	return &Dispatcher{
		log:      log,
		sessions: sessions,
		groups:   groups,
	}
}

// Dispatch parses line and executes it for sender. It returns false when
// the sender asked to end the session.
func (d *Dispatcher) Dispatch(sender Session, line string) bool {
	cmd := Parse(line)
	d.log.Debug("Dispatching command", "user", sender.Username, "conn", sender.Peer.ID(), "command", cmd.Kind)

	switch cmd.Kind {
	case KindBroadcast:
		d.broadcast(sender, cmd.Text)
	case KindPrivate:
		d.private(sender, cmd.Target, cmd.Text)
	case KindCreateGroup:
		d.createGroup(sender, cmd.Target)
	case KindJoinGroup:
		d.joinGroup(sender, cmd.Target)
	case KindGroupMessage:
		d.groupMessage(sender, cmd.Target, cmd.Text)
	case KindLeaveGroup:
		d.leaveGroup(sender, cmd.Target)
	case KindExit:
		return false
	case KindHelp:
		sender.Peer.Deliver(helpText)
	default:
		sender.Peer.Deliver(replyFor(ErrInvalidCommand, ""))
	}
	return true
}

func (d *Dispatcher) broadcast(sender Session, text string) {
	if text == "" {
		return
	}
	recipients := d.sessions.Peers()
	delivered := Fanout(recipients, broadcastLine(sender.Username, text))
	d.logPartialDelivery("broadcast", sender, len(recipients), delivered)
}

func (d *Dispatcher) private(sender Session, target, text string) {
	if text == "" {
		return
	}
	recipient, ok := d.sessions.Find(target)
	if !ok {
		sender.Peer.Deliver(replyFor(ErrUserNotFound, ""))
		return
	}
	if !recipient.Peer.Deliver(privateLine(sender.Username, text)) {
		d.log.Debug("Private message not delivered", "from", sender.Username, "to", target)
	}
}

func (d *Dispatcher) createGroup(sender Session, group string) {
	if err := d.groups.Create(group, sender.Peer); err != nil {
		sender.Peer.Deliver(replyFor(err, group))
		return
	}
	d.log.Info("Group created", "group", group, "user", sender.Username)

	sender.Peer.Deliver(groupCreated(group))
	Fanout(d.sessions.Others(sender.Peer.ID()), groupCreatedBy(sender.Username, group))
}

func (d *Dispatcher) joinGroup(sender Session, group string) {
	existing, err := d.groups.Join(group, sender.Peer)
	if err != nil {
		sender.Peer.Deliver(replyFor(err, group))
		return
	}
	d.log.Debug("Group joined", "group", group, "user", sender.Username)

	sender.Peer.Deliver(youJoined(group))
	Fanout(existing, joinedGroup(sender.Username, group))
}

func (d *Dispatcher) groupMessage(sender Session, group, text string) {
	if text == "" {
		return
	}
	members, err := d.groups.Recipients(group, sender.Peer.ID())
	if err != nil {
		sender.Peer.Deliver(MsgGroupMsgDenied)
		return
	}
	delivered := Fanout(members, groupLine(group, sender.Username, text))
	d.logPartialDelivery("group_msg", sender, len(members), delivered)
}

func (d *Dispatcher) leaveGroup(sender Session, group string) {
	remaining, err := d.groups.Leave(group, sender.Peer.ID())
	if err != nil {
		sender.Peer.Deliver(replyFor(err, group))
		return
	}
	d.log.Debug("Group left", "group", group, "user", sender.Username)

	sender.Peer.Deliver(youLeft(group))
	Fanout(remaining, leftGroup(sender.Username, group))
}

func (d *Dispatcher) logPartialDelivery(kind string, sender Session, targets, delivered int) {
	if delivered < targets {
		d.log.Debug("Some recipients unreachable", "command", kind, "user", sender.Username,
			"targets", targets, "delivered", delivered)
	}
}
