package progress

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 54 * time.Second
)

// websocketHandler WebSocket进度推送
type websocketHandler struct {
	watcher  Watcher
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newWebSocketHandler(watcher Watcher, logger *slog.Logger) *websocketHandler {
	return &websocketHandler{
		watcher: watcher,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// handle 处理WebSocket连接，每次轮询发送一帧JSON，终态后正常关闭
func (h *websocketHandler) handle(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	logger := h.logger.With("task_id", taskID, "channel", "websocket")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 客户端断开时取消订阅
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go h.pingLoop(ctx, conn)

	for snapshot := range h.watcher.Watch(ctx, taskID) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snapshot); err != nil {
			logger.Debug("websocket write failed", "error", err)
			return
		}
	}
	if ctx.Err() != nil {
		logger.Debug("websocket observer disconnected")
		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		logger.Debug("websocket close failed", "error", err)
	}
}

// pingLoop 定期发送ping消息
func (h *websocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
