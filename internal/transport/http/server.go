package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/core"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Hub      *core.Hub
	Resolver auth.Resolver
	Groups   GroupManager
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewServer builds an HTTP server with the WebSocket, REST and ops routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts /ws on a plain mux and everything else on gin. The
// WebSocket upgrade must own the response writer; gin refuses to hijack a
// connection whose headers were already written.
func NewHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Resolver, cfg, logger))
	mux.Handle("/", NewRouter(deps, logger))
	return mux
}

// NewRouter wires the REST and ops routes onto a gin engine.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	history := NewHistoryHandlers(deps.Hub.Router(), logger)
	groups := NewGroupHandlers(deps.Groups, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(deps.Resolver, logger))
	{
		api.GET("/groups/:id/messages", history.GroupMessages)
		api.GET("/direct/:peer_id/messages", history.DirectMessages)
		api.GET("/groups/:id/members", groups.ListMembers)

		manage := api.Group("", RequireGroupManager())
		manage.POST("/groups", groups.CreateGroup)
		manage.POST("/groups/:id/members", groups.AddMember)
		manage.DELETE("/groups/:id/members/:user_id", groups.RemoveMember)
	}

	return router
}
