package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"reliefdesk/internal/config"
	"reliefdesk/internal/domain/directory"
	"reliefdesk/internal/domain/notification"
	"reliefdesk/internal/middleware"
	"reliefdesk/internal/pkg/jwt"
	"reliefdesk/internal/pkg/response"
	"reliefdesk/internal/realtime"
)

// Deps are the long-lived objects built by main and shared by the router.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	JWT      *jwt.Service
	Registry *realtime.Registry
	Broker   realtime.Broker
	Log      logrus.FieldLogger
}

// Server owns the HTTP surface: REST under /api/v1, push under /ws.
type Server struct {
	Engine        *gin.Engine
	Notifications *notification.Service

	registry *realtime.Registry
}

func New(d Deps) *Server {
	if config.IsProdLike(d.Config.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}

	resolver := directory.NewResolver(directory.NewUserRepository(d.DB))
	dispatcher := realtime.NewDispatcher(d.Broker, d.Log)
	svc := notification.NewService(notification.NewStore(d.DB), resolver, dispatcher, d.Log)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(d.Log), middleware.CORS(d.Config.CORSOrigins))

	s := &Server{Engine: r, Notifications: svc, registry: d.Registry}
	r.GET("/healthz", s.health)

	ws := realtime.NewHandler(d.Registry, d.JWT, realtime.HandlerConfig{
		HandshakeTimeout: d.Config.WSHandshakeTimeout,
		SendBuffer:       d.Config.WSSendBuffer,
		AllowedOrigins:   d.Config.CORSOrigins,
	}, d.Log)
	ws.RegisterRoutes(r)

	v1 := r.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(d.JWT))
	{
		notification.RegisterRoutes(protected, notification.NewHandler(svc), middleware.RequireAnyRole(d.Config.BroadcastRoles...))
	}
	return s
}

func (s *Server) health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.registry.Count(),
	})
}

// HTTPServer wraps the engine with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
