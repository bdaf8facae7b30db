package watch

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

var ErrNoToken = errors.New("no stored access token")

// TokenStore keeps one access token per reliefdesk server in the OS keyring.
type TokenStore struct {
	ring keyring.Keyring
}

func NewTokenStore(ring keyring.Keyring) *TokenStore {
	return &TokenStore{ring: ring}
}

// OpenTokenStore opens the platform keyring. RELIEFDESK_KEYRING_BACKEND
// pins one backend (keychain, secret-service, wincred, pass, file); the
// file backend lives under the user config dir and prompts for its password.
func OpenTokenStore() (*TokenStore, error) {
	cfg := keyring.Config{
		ServiceName:      "reliefdesk",
		FilePasswordFunc: keyring.TerminalPrompt,
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.FileDir = filepath.Join(dir, "reliefdesk", "keyring")
	}
	if b := strings.TrimSpace(os.Getenv("RELIEFDESK_KEYRING_BACKEND")); b != "" {
		cfg.AllowedBackends = []keyring.BackendType{keyring.BackendType(b)}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return NewTokenStore(ring), nil
}

func (s *TokenStore) Load(server string) (string, error) {
	item, err := s.ring.Get(tokenKey(server))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(item.Data), nil
}

func (s *TokenStore) Save(server, token string) error {
	item := keyring.Item{
		Key:   tokenKey(server),
		Data:  []byte(token),
		Label: "reliefdesk token for " + serverHost(server),
	}
	if err := s.ring.Set(item); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *TokenStore) Forget(server string) error {
	err := s.ring.Remove(tokenKey(server))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

func tokenKey(server string) string {
	return "token@" + serverHost(server)
}

// serverHost reduces a base URL to host[:port] so trailing paths and
// scheme changes map to the same entry.
func serverHost(server string) string {
	server = strings.TrimSpace(server)
	if u, err := url.Parse(server); err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	return strings.ToLower(strings.TrimRight(server, "/"))
}
