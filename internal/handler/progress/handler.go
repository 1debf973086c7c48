// Package progress pushes task snapshots to observers over SSE and WebSocket.
package progress

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	relaymodel "github.com/zhouzirui/driverelay/internal/model/relay"
	"github.com/zhouzirui/driverelay/pkg/utils"
)

// Watcher 按任务句柄订阅进度快照
type Watcher interface {
	Watch(ctx context.Context, handle string) <-chan relaymodel.Progress
}

// Handler 进度推送处理器
type Handler struct {
	watcher Watcher
	logger  *slog.Logger
	ws      *websocketHandler
}

// New 创建进度处理器
func New(watcher Watcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		watcher: watcher,
		logger:  logger,
		ws:      newWebSocketHandler(watcher, logger),
	}
}

// RegisterRoutes 注册进度相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/progress/{taskID}", h.handleSSE)
	r.Get("/ws/progress/{taskID}", h.ws.handle)
}

// handleSSE 以Server-Sent Events推送进度，终态后关闭
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	taskID := chi.URLParam(r, "taskID")
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With("task_id", taskID, "channel", "sse")
	logger.Debug("progress stream opened")

	for snapshot := range h.watcher.Watch(r.Context(), taskID) {
		if err := utils.SendSSEChunk(w, flusher, snapshot); err != nil {
			logger.Debug("progress stream write failed", "error", err)
			return
		}
	}
	logger.Debug("progress stream closed")
}
