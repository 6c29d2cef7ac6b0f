package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Server -> client texts. Prompts are written without a line terminator.
const (
	PromptUsername = "Enter username: "
	PromptPassword = "Enter password: "

	MsgAuthFailed     = "Authentication failed."
	MsgWelcome        = "Welcome to the chat server!"
	MsgNoOtherUsers   = "No other users are currently active."
	MsgInvalidCommand = "Invalid command."
	MsgUserNotFound   = "User not found."
	MsgGroupExists    = "Group already exists."
	MsgGroupNotFound  = "Group not found."
	MsgTooManyGroups  = "Maximum number of groups reached."
	MsgGroupFull      = "Maximum number of members reached in the group."
	MsgGroupMsgDenied = "Either Group not found Or you are not in the group."
)

const helpText = `Available commands:
/broadcast <message> - Send a message to every connected user.
/msg <user> <message> - Send a private message.
/create_group <group> - Create a group and join it.
/join_group <group> - Join an existing group.
/group_msg <group> <message> - Send a message to a group you belong to.
/leave_group <group> - Leave a group.
/exit - Disconnect.`

func activeUsersLine(usernames []string) string {
	if len(usernames) == 0 {
		return MsgNoOtherUsers
	}
	return "Active users: " + strings.Join(usernames, ", ")
}

func joinedChat(user string) string { return user + " has joined the chat." }
func leftChat(user string) string { return user + " has left the chat." }

func broadcastLine(sender, text string) string { return sender + ": " + text }
func privateLine(sender, text string) string { return "[Private] " + sender + ": " + text }

func groupLine(group, sender, text string) string {
	return fmt.Sprintf("[Group %s] %s: %s", group, sender, text)
}

func groupCreated(group string) string { return "Group " + group + " has been created." }
func groupCreatedBy(user, group string) string { return user + " created the group " + group + "." }
func youJoined(group string) string { return "You joined the group " + group + "." }
func joinedGroup(user, group string) string { return user + " joined the group " + group + "." }
func youLeft(group string) string { return "You left the group " + group + "." }
func leftGroup(user, group string) string { return user + " left the group " + group + "." }

// replyFor maps a command error to the text reported to the issuing session.
func replyFor(err error, group string) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return MsgUserNotFound
	case errors.Is(err, ErrGroupExists):
		return MsgGroupExists
	case errors.Is(err, ErrGroupNotFound):
		return MsgGroupNotFound
	case errors.Is(err, ErrTooManyGroups):
		return MsgTooManyGroups
	case errors.Is(err, ErrGroupFull):
		return MsgGroupFull
	case errors.Is(err, ErrAlreadyMember):
		return "You are already in the group " + group + "."
	case errors.Is(err, ErrNotMember):
		return "You are not in the group " + group + "."
	case errors.Is(err, ErrInvalidCommand):
		return MsgInvalidCommand
	default:
		return MsgInvalidCommand
	}
}
