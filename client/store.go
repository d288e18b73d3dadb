package client

import (
	"os"
	"strings"
)

// SessionStore persists the session identifier between runs. The client never
// touches the storage medium directly, so callers can back it with a file, a
// keychain, or anything else.
type SessionStore interface {
	Load() (string, error)
	Save(id string) error
}

type fileSessionStore struct {
	path string
}

// NewFileSessionStore stores the session id as plain text at path.
func NewFileSessionStore(path string) SessionStore {
	return &fileSessionStore{path: path}
}

func (s *fileSessionStore) Load() (string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *fileSessionStore) Save(id string) error {
	return os.WriteFile(s.path, []byte(id+"\n"), 0o600)
}

// memorySessionStore holds the id for the lifetime of the process.
type memorySessionStore struct {
	id string
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{}
}

func (s *memorySessionStore) Load() (string, error) { return s.id, nil }

func (s *memorySessionStore) Save(id string) error {
	s.id = id
	return nil
}
