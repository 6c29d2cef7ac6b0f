// Package credentials loads the flat-file username:password table that the
// chat service authenticates against. The table is read once at startup and
// never mutated afterwards, so lookups need no locking.
package credentials

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	ErrUnknownUser = errors.New("unknown user")
	ErrBadPassword = errors.New("wrong password")
)

// User is a single credential record.
type User struct {
	Username string
	Password string
}

// Store is an immutable username -> password mapping.
type Store struct {
	users   map[string]string
	skipped int
}

// Load reads one username:password record per line. The record is split on
// the first colon, so passwords may contain colons. Lines without a colon or
// with an empty username are skipped.
func Load(r io.Reader) (*Store, error) {
	s := &Store{users: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		user, ok := parseLine(scanner.Text())
		if !ok {
			s.skipped++
			continue
		}
		s.users[user.Username] = user.Password
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return s, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// FromUsers builds a store from in-memory records.
func FromUsers(users ...User) *Store {
	s := &Store{users: make(map[string]string, len(users))}
	for _, u := range users {
		s.users[u.Username] = u.Password
	}
	return s
}

func parseLine(line string) (User, bool) {
	line = strings.TrimSuffix(line, "\r")
	username, password, found := strings.Cut(line, ":")
	if !found || username == "" {
		return User{}, false
	}
	return User{Username: username, Password: password}, true
}

// Lookup returns the stored password (or hash) for username.
func (s *Store) Lookup(username string) (string, bool) {
	password, ok := s.users[username]
	return password, ok
}

// Verify checks a username/password pair. Stored argon2id hashes are
// verified by rehashing; anything else must match exactly.
func (s *Store) Verify(username, password string) error {
	stored, ok := s.Lookup(username)
	if !ok {
		return ErrUnknownUser
	}

	if isHash(stored) {
		match, err := ComparePassword(password, stored)
		if err != nil {
			return fmt.Errorf("verify %s: %w", username, err)
		}
		if !match {
			return ErrBadPassword
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) != 1 {
		return ErrBadPassword
	}
	return nil
}

// Len reports how many users were loaded.
func (s *Store) Len() int {
	return len(s.users)
}

// Skipped reports how many malformed lines Load ignored.
func (s *Store) Skipped() int {
	return s.skipped
}
