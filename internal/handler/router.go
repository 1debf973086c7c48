package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authhandler "github.com/zhouzirui/driverelay/internal/handler/auth"
	"github.com/zhouzirui/driverelay/internal/handler/progress"
	relayhandler "github.com/zhouzirui/driverelay/internal/handler/relay"
	"github.com/zhouzirui/driverelay/internal/logging"
	"github.com/zhouzirui/driverelay/internal/service/credential"
	"github.com/zhouzirui/driverelay/pkg/utils"
)

// ActiveCounter 报告正在运行的转存数量
type ActiveCounter interface {
	Active() int
}

// Services 路由依赖的核心服务
type Services struct {
	Starter  relayhandler.Starter
	Active   ActiveCounter
	Sessions credential.Store
	Tasks    relayhandler.TaskReader
	Watcher  progress.Watcher
	Auth     authhandler.Flow
	Logger   *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	relayHandler := relayhandler.New(svc.Starter, svc.Sessions, svc.Tasks, logging.WithComponent(logger, "relay-http"))
	progressHandler := progress.New(svc.Watcher, logging.WithComponent(logger, "progress"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		active := 0
		if svc.Active != nil {
			active = svc.Active.Active()
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "active_relays": active})
	})

	if svc.Auth != nil {
		authhandler.New(svc.Auth, logging.WithComponent(logger, "auth")).RegisterRoutes(r)
	}

	r.Route("/api", func(api chi.Router) {
		relayHandler.RegisterRoutes(api)
		progressHandler.RegisterRoutes(api)
	})

	return r
}
