package chat

import "strings"

// Kind identifies a parsed command.
type Kind int

const (
	KindInvalid Kind = iota
	KindBroadcast
	KindPrivate
	KindCreateGroup
	KindJoinGroup
	KindGroupMessage
	KindLeaveGroup
	KindExit
	KindHelp
)

var kindNames = map[Kind]string{
	KindInvalid:      "invalid",
	KindBroadcast:    "broadcast",
	KindPrivate:      "msg",
	KindCreateGroup:  "create_group",
	KindJoinGroup:    "join_group",
	KindGroupMessage: "group_msg",
	KindLeaveGroup:   "leave_group",
	KindExit:         "exit",
	KindHelp:         "help",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command prefixes. Matching is literal and case-sensitive; the trailing
// space is part of the prefix.
const (
	PrefixBroadcast    = "/broadcast "
	PrefixPrivate      = "/msg "
	PrefixCreateGroup  = "/create_group "
	PrefixJoinGroup    = "/join_group "
	PrefixGroupMessage = "/group_msg "
	PrefixLeaveGroup   = "/leave_group "

	CommandExit = "/exit"
	CommandHelp = "/help"
)

// Command is one parsed input line. Target is the user or group name the
// command addresses; Text is the free-form message part.
type Command struct {
	Kind   Kind
	Target string
	Text   string
}

// Parse maps a raw line to a Command. It never fails: anything it does not
// recognise, or a recognised prefix with a malformed argument, yields
// KindInvalid.
func Parse(line string) Command {
	switch {
	case strings.HasPrefix(line, PrefixBroadcast):
		return Command{Kind: KindBroadcast, Text: line[len(PrefixBroadcast):]}

	case strings.HasPrefix(line, PrefixPrivate):
		return addressed(KindPrivate, line[len(PrefixPrivate):])

	case strings.HasPrefix(line, PrefixCreateGroup):
		return named(KindCreateGroup, line[len(PrefixCreateGroup):])

	case strings.HasPrefix(line, PrefixJoinGroup):
		return named(KindJoinGroup, line[len(PrefixJoinGroup):])

	case strings.HasPrefix(line, PrefixGroupMessage):
		return addressed(KindGroupMessage, line[len(PrefixGroupMessage):])

	case strings.HasPrefix(line, PrefixLeaveGroup):
		return named(KindLeaveGroup, line[len(PrefixLeaveGroup):])

	case line == CommandExit:
		return Command{Kind: KindExit}

	case line == CommandHelp:
		return Command{Kind: KindHelp}
	}
	return Command{Kind: KindInvalid}
}

// named takes the whole argument as the target name.
func named(kind Kind, arg string) Command {
	if arg == "" {
		return Command{Kind: KindInvalid}
	}
	return Command{Kind: kind, Target: arg}
}

// addressed splits "<target> <text>" on the first space only.
func addressed(kind Kind, arg string) Command {
	target, text, found := strings.Cut(arg, " ")
	if !found || target == "" {
		return Command{Kind: KindInvalid}
	}
	return Command{Kind: kind, Target: target, Text: text}
}
