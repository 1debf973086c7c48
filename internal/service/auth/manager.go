// Package auth drives the OAuth 2.0 authorization code flow that creates
// relay sessions.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/zhouzirui/driverelay/internal/service/credential"
)

// DriveFileScope grants access to files created by this application.
const DriveFileScope = "https://www.googleapis.com/auth/drive.file"

var (
	// ErrNotConfigured is returned when no OAuth client is configured.
	ErrNotConfigured = errors.New("oauth client not configured")
	// ErrStateInvalid is returned when the state parameter is missing or expired.
	ErrStateInvalid = errors.New("oauth state invalid or expired")
	// ErrCodeMissing is returned when the callback carries no authorization code.
	ErrCodeMissing = errors.New("authorization code is required")
)

// Config describes the OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint overrides google.Endpoint when its URLs are set.
	Endpoint oauth2.Endpoint
}

// Option customises the manager.
type Option func(*Manager)

// WithStateStore injects a custom state store.
func WithStateStore(store StateStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.state = store
		}
	}
}

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithStateTTL adjusts how long state parameters remain valid.
func WithStateTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.stateTTL = ttl
		}
	}
}

// Manager issues authorization URLs and turns callbacks into stored sessions.
type Manager struct {
	oauth    *oauth2.Config
	sessions credential.Store
	state    StateStore
	client   *http.Client
	stateTTL time.Duration
}

// NewManager builds a manager. An empty client id leaves it disabled; Begin
// and Complete then return ErrNotConfigured.
func NewManager(cfg Config, sessions credential.Store, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		state:    NewMemoryStateStore(),
		client:   &http.Client{Timeout: 10 * time.Second},
		stateTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return m
	}
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{DriveFileScope}
	}
	m.oauth = &oauth2.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
	return m
}

// Enabled reports whether an OAuth client is configured.
func (m *Manager) Enabled() bool {
	return m.oauth != nil
}

// Begin records a fresh state value and returns the consent URL.
func (m *Manager) Begin() (string, error) {
	if m.oauth == nil {
		return "", ErrNotConfigured
	}
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	if err := m.state.Put(state, m.stateTTL); err != nil {
		return "", err
	}
	return m.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Complete redeems state, exchanges code for a token and stores it as a new
// session. The returned handle authorizes later relay requests.
func (m *Manager) Complete(ctx context.Context, state, code string) (string, error) {
	if m.oauth == nil {
		return "", ErrNotConfigured
	}
	state = strings.TrimSpace(state)
	if state == "" || !m.state.Take(state) {
		return "", ErrStateInvalid
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrCodeMissing
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	blob, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	handle, err := m.sessions.Put(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return handle, nil
}
