package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/handler/chat"
	"github.com/zhouzirui/wingchat/backend/internal/handler/health"
	"github.com/zhouzirui/wingchat/backend/internal/handler/persona"
	"github.com/zhouzirui/wingchat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/wingchat/backend/internal/middleware"
	personaModel "github.com/zhouzirui/wingchat/backend/internal/model/persona"
)

// Deps are the services mounted by NewRouter.
type Deps struct {
	Flows          chat.Flows
	Personas       personaModel.Store
	Health         health.Info
	ModelLister    health.ModelLister
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	chatHandler := chat.New(deps.Flows, logger)
	personaHandler := persona.New(deps.Personas)
	healthHandler := health.New(deps.Health, deps.ModelLister, logger)
	wsHandler := ws.New(chatHandler, deps.AllowedOrigins, logger)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		personaHandler.RegisterRoutes(api)
		healthHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
