package apiclient

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// TokenSource yields the bearer token of the signed in user, or "" when
// there is none
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token
type StaticToken string

// Token returns the token itself
func (s StaticToken) Token() (string, error) { return string(s), nil }

// FileTokenStore keeps the token in a file so it survives restarts
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore creates a store backed by path
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Token reads the stored token. A missing file means signed out.
func (s *FileTokenStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to read token file %s", s.path)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save persists token with owner-only permissions
func (s *FileTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create token directory")
	}
	return errors.Wrap(os.WriteFile(s.path, []byte(token), 0o600), "failed to write token file")
}

// Clear signs out by removing the token file
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "failed to remove token file")
	}
	return nil
}
