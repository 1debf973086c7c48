package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	relaymodel "github.com/zhouzirui/driverelay/internal/model/relay"
	"github.com/zhouzirui/driverelay/internal/service/credential"
	"github.com/zhouzirui/driverelay/internal/service/orchestrator"
	"github.com/zhouzirui/driverelay/pkg/utils"
)

const maxFormBytes = 1 << 20

// Starter 启动后台转存任务
type Starter interface {
	Start(ctx context.Context, session, locator string) (string, error)
}

// TaskReader 读取任务进度快照
type TaskReader interface {
	Read(handle string) relaymodel.Progress
}

// Handler 转存任务的HTTP处理器
type Handler struct {
	starter  Starter
	sessions credential.Store
	tasks    TaskReader
	validate *validator.Validate
	logger   *slog.Logger
}

// New 创建转存处理器
func New(starter Starter, sessions credential.Store, tasks TaskReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		starter:  starter,
		sessions: sessions,
		tasks:    tasks,
		validate: validate,
		logger:   logger,
	}
}

// RegisterRoutes 注册转存相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.handleUpload)
	r.Get("/tasks/{taskID}", h.handleTask)
	r.Get("/session/{sessionID}", h.handleSession)
}

type uploadRequest struct {
	VideoURL  string `json:"video_url" validate:"required,url"`
	SessionID string `json:"session_id" validate:"required"`
}

type uploadResponse struct {
	TaskID string            `json:"task_id"`
	Status relaymodel.Status `json:"status"`
}

// handleUpload 校验会话并启动转存任务
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeUploadRequest(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	taskID, err := h.starter.Start(r.Context(), payload.SessionID, payload.VideoURL)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnauthorized) {
			utils.RespondError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		h.logger.Error("failed to start relay", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to start upload")
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, uploadResponse{TaskID: taskID, Status: relaymodel.StatusInitializing})
}

// handleTask 返回单次进度快照
func (h *Handler) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	utils.RespondJSON(w, http.StatusOK, h.tasks.Read(taskID))
}

// handleSession 检查会话是否仍然有效
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		if !errors.Is(err, credential.ErrSessionNotFound) &&
			!errors.Is(err, credential.ErrCredentialMissing) &&
			!errors.Is(err, credential.ErrSealedBlobInvalid) {
			h.logger.Error("failed to look up session", "error", err)
		}
		utils.RespondStatus(w, http.StatusUnauthorized, "expired")
		return
	}
	utils.RespondStatus(w, http.StatusOK, "ok")
}

// decodeUploadRequest 同时支持JSON和表单提交
func decodeUploadRequest(r *http.Request) (uploadRequest, error) {
	var payload uploadRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxFormBytes)).Decode(&payload); err != nil {
			return payload, err
		}
		payload.VideoURL = strings.TrimSpace(payload.VideoURL)
		payload.SessionID = strings.TrimSpace(payload.SessionID)
		return payload, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormBytes); err != nil {
			return payload, err
		}
	default:
		if err := r.ParseForm(); err != nil {
			return payload, err
		}
	}
	payload.VideoURL = strings.TrimSpace(r.FormValue("video_url"))
	payload.SessionID = strings.TrimSpace(r.FormValue("session_id"))
	return payload, nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fe.Field() + " must be a valid URL"
	default:
		return fe.Field() + " is invalid"
	}
}
