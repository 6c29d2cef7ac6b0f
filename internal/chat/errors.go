package chat

import (
	"errors"
	"io"
	"net"
	"strings"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSessionLimit         = errors.New("session limit reached")
	ErrUsernameTaken        = errors.New("username already in use")
	ErrAlreadyRegistered    = errors.New("connection already registered")
	ErrStopping             = errors.New("service is shutting down")
	ErrUserNotFound         = errors.New("user not found")
	ErrGroupExists          = errors.New("group already exists")
	ErrGroupNotFound        = errors.New("group not found")
	ErrNotMember            = errors.New("not a member of the group")
	ErrAlreadyMember        = errors.New("already a member of the group")
	ErrGroupFull            = errors.New("group is full")
	ErrTooManyGroups        = errors.New("maximum number of groups reached")
	ErrInvalidCommand       = errors.New("invalid command")
)

// isExpectedCloseError reports whether err is the normal way a peer or the
// server ends a connection.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
