package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/zhouzirui/driverelay/internal/service/credential"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, store credential.Store) *Manager {
	t.Helper()
	srv := newTokenServer(t)
	return NewManager(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/oauth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, store, WithHTTPClient(srv.Client()))
}

func TestBeginBuildsConsentURL(t *testing.T) {
	m := newTestManager(t, credential.NewMemoryStore())

	raw, err := m.Begin()
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, DriveFileScope, q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.NotEmpty(t, q.Get("state"))
}

func TestCompleteStoresSession(t *testing.T) {
	store := credential.NewMemoryStore()
	m := newTestManager(t, store)

	raw, err := m.Begin()
	require.NoError(t, err)
	u, _ := url.Parse(raw)
	state := u.Query().Get("state")

	handle, err := m.Complete(context.Background(), state, "good-code")
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	blob, err := store.Get(context.Background(), handle)
	require.NoError(t, err)
	var token oauth2.Token
	require.NoError(t, json.Unmarshal(blob, &token))
	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, "refresh-1", token.RefreshToken)

	_, err = m.Complete(context.Background(), state, "good-code")
	assert.ErrorIs(t, err, ErrStateInvalid)
}

func TestCompleteRejectsBadInput(t *testing.T) {
	store := credential.NewMemoryStore()
	m := newTestManager(t, store)

	_, err := m.Complete(context.Background(), "", "good-code")
	assert.ErrorIs(t, err, ErrStateInvalid)

	_, err = m.Complete(context.Background(), "forged", "good-code")
	assert.ErrorIs(t, err, ErrStateInvalid)

	raw, _ := m.Begin()
	u, _ := url.Parse(raw)
	_, err = m.Complete(context.Background(), u.Query().Get("state"), "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange authorization code")

	assert.Equal(t, 0, store.Len())
}

func TestDisabledManager(t *testing.T) {
	m := NewManager(Config{}, credential.NewMemoryStore())
	assert.False(t, m.Enabled())

	_, err := m.Begin()
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = m.Complete(context.Background(), "s", "c")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memoryStateStore{items: map[string]time.Time{}, now: func() time.Time { return now }}

	require.NoError(t, store.Put("a", time.Minute))
	require.NoError(t, store.Put("b", time.Minute))
	assert.Error(t, store.Put("", time.Minute))

	assert.True(t, store.Take("a"))
	assert.False(t, store.Take("a"))

	now = now.Add(2 * time.Minute)
	assert.False(t, store.Take("b"))
}

func TestDefaultEndpointIsGoogle(t *testing.T) {
	m := NewManager(Config{ClientID: "client", ClientSecret: "secret"}, credential.NewMemoryStore())

	raw, err := m.Begin()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, google.Endpoint.AuthURL+"?"), raw)
	assert.Equal(t, google.Endpoint.TokenURL, m.oauth.Endpoint.TokenURL)
}
