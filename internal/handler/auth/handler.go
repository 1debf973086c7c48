package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authservice "github.com/zhouzirui/driverelay/internal/service/auth"
	"github.com/zhouzirui/driverelay/pkg/utils"
)

// Flow 授权码流程
type Flow interface {
	Begin() (string, error)
	Complete(ctx context.Context, state, code string) (string, error)
}

// Handler 登录相关的HTTP处理器
type Handler struct {
	flow   Flow
	logger *slog.Logger
}

// New 创建登录处理器
func New(flow Flow, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{flow: flow, logger: logger}
}

// RegisterRoutes 注册登录路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/login", h.handleLogin)
	r.Get("/oauth/callback", h.handleCallback)
}

// handleLogin 返回授权地址
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.flow.Begin()
	if err != nil {
		h.respondFlowError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// handleCallback 兑换授权码并创建会话
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		utils.RespondError(w, http.StatusBadRequest, "authorization denied: "+reason)
		return
	}

	sessionID, err := h.flow.Complete(r.Context(), query.Get("state"), query.Get("code"))
	if err != nil {
		h.respondFlowError(w, err)
		return
	}

	h.logger.Info("session created")
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message":    "Login successful",
		"session_id": sessionID,
	})
}

func (h *Handler) respondFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authservice.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, "login unavailable")
	case errors.Is(err, authservice.ErrStateInvalid), errors.Is(err, authservice.ErrCodeMissing):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("oauth flow failed", "error", err)
		utils.RespondError(w, http.StatusBadGateway, "login failed")
	}
}
