// Package credentials stores the four OAuth1 secrets used to open the stream.
package credentials

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownAttribute is returned by Store.Set for names that are not one of the four secrets.
var ErrUnknownAttribute = errors.New("unknown credential attribute")

// Credentials is an immutable snapshot of the OAuth1 secrets.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Complete reports whether every secret is non-empty.
func (c Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// Redacted returns a log-safe rendering that only reveals which secrets are set.
func (c Credentials) Redacted() string {
	return fmt.Sprintf(
		"consumer_key=%s consumer_secret=%s access_token=%s access_secret=%s",
		mask(c.ConsumerKey), mask(c.ConsumerSecret), mask(c.AccessToken), mask(c.AccessSecret),
	)
}

func mask(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

// Store holds the secrets set by the host before a session starts.
type Store struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewStore returns a store seeded with creds.
func NewStore(creds Credentials) *Store {
	return &Store{creds: creds}
}

func (s *Store) SetConsumerKey(v string) {
	s.mu.Lock()
	s.creds.ConsumerKey = v
	s.mu.Unlock()
}

func (s *Store) SetConsumerSecret(v string) {
	s.mu.Lock()
	s.creds.ConsumerSecret = v
	s.mu.Unlock()
}

func (s *Store) SetAccessToken(v string) {
	s.mu.Lock()
	s.creds.AccessToken = v
	s.mu.Unlock()
}

func (s *Store) SetAccessSecret(v string) {
	s.mu.Lock()
	s.creds.AccessSecret = v
	s.mu.Unlock()
}

// Set assigns one secret by attribute name. Both config style names
// ("consumer_key") and host attribute names ("OAuthConsumerKey") are accepted.
func (s *Store) Set(name, value string) error {
	switch normalizeAttribute(name) {
	case "consumerkey":
		s.SetConsumerKey(value)
	case "consumersecret":
		s.SetConsumerSecret(value)
	case "accesstoken":
		s.SetAccessToken(value)
	case "accesssecret", "accesstokensecret":
		s.SetAccessSecret(value)
	default:
		return fmt.Errorf("%w %q", ErrUnknownAttribute, name)
	}
	return nil
}

// IsAttribute reports whether name addresses one of the secrets.
func IsAttribute(name string) bool {
	switch normalizeAttribute(name) {
	case "consumerkey", "consumersecret", "accesstoken", "accesssecret", "accesstokensecret":
		return true
	default:
		return false
	}
}

// Snapshot returns the current secrets.
func (s *Store) Snapshot() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func normalizeAttribute(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "oauth")
	n = strings.NewReplacer("_", "", "-", "").Replace(n)
	return n
}
