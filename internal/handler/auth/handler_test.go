package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/driverelay/internal/logging"
	authservice "github.com/zhouzirui/driverelay/internal/service/auth"
)

type stubFlow struct {
	beginErr    error
	completeErr error
	state, code string
}

func (f *stubFlow) Begin() (string, error) {
	if f.beginErr != nil {
		return "", f.beginErr
	}
	return "https://accounts.example/auth?state=xyz", nil
}

func (f *stubFlow) Complete(_ context.Context, state, code string) (string, error) {
	f.state, f.code = state, code
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return "session-1", nil
}

func setupRouter(flow Flow) *chi.Mux {
	r := chi.NewRouter()
	New(flow, logging.Discard()).RegisterRoutes(r)
	return r
}

func TestLogin(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter(&stubFlow{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"auth_url":"https://accounts.example/auth?state=xyz"}`, resp.Body.String())
}

func TestLoginNotConfigured(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter(&stubFlow{beginErr: authservice.ErrNotConfigured}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestCallback(t *testing.T) {
	flow := &stubFlow{}
	resp := httptest.NewRecorder()
	setupRouter(flow).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/oauth/callback?state=xyz&code=abc", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"message":"Login successful","session_id":"session-1"}`, resp.Body.String())
	assert.Equal(t, "xyz", flow.state)
	assert.Equal(t, "abc", flow.code)
}

func TestCallbackErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{name: "denied", target: "/oauth/callback?error=access_denied", status: http.StatusBadRequest},
		{name: "bad state", target: "/oauth/callback?state=x&code=y", err: authservice.ErrStateInvalid, status: http.StatusBadRequest},
		{name: "exchange", target: "/oauth/callback?state=x&code=y", err: errors.New("exchange authorization code: boom"), status: http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			setupRouter(&stubFlow{completeErr: tc.err}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tc.target, nil))
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}
