package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditservice "github.com/lk2023060901/blog-backend/internal/audit/service"
	"github.com/lk2023060901/blog-backend/internal/auth"
	"github.com/lk2023060901/blog-backend/internal/auth/middleware"
	authservice "github.com/lk2023060901/blog-backend/internal/auth/service"
	"github.com/lk2023060901/blog-backend/internal/conf"
	mediaservice "github.com/lk2023060901/blog-backend/internal/media/service"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/redis"
	"github.com/lk2023060901/blog-backend/internal/pkg/response"
	postservice "github.com/lk2023060901/blog-backend/internal/post/service"
	"go.uber.org/zap"
)

// Pinger reports whether a backing store answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups the HTTP services mounted by the router
type Handlers struct {
	Auth  *authservice.AuthService
	Post  *postservice.PostService
	Media *mediaservice.MediaService
	Audit *auditservice.AuditService
}

// Options carries the infrastructure the router needs besides handlers
type Options struct {
	JWT         *auth.JWTManager
	Redis       *redis.Client // optional, enables login rate limiting
	Health      Pinger
	Metrics     http.Handler // optional, mounted at /metrics
	MediaRoot   string
	MediaPrefix string
	LoginLimit  conf.LoginRateLimit
}

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(config *conf.Config, log *logger.Logger, h Handlers, opts Options) *HTTPServer {
	gin.SetMode(config.Server.Mode)

	router := NewRouter(log, h, opts)

	return &HTTPServer{
		server: &http.Server{
			Addr:         config.Server.Addr(),
			Handler:      router,
			ReadTimeout:  config.Server.ReadTimeout,
			WriteTimeout: config.Server.WriteTimeout,
		},
		logger: log,
	}
}

// NewRouter builds the gin engine with every route
func NewRouter(log *logger.Logger, h Handlers, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, "/health", "/metrics"))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := opts.Health.Ping(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err))
			response.ErrorWithCode(c, apperrors.ErrServiceUnavail, "database unreachable")
			return
		}
		response.Success(c, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	if opts.MediaRoot != "" && opts.MediaPrefix != "" {
		router.Static(opts.MediaPrefix, opts.MediaRoot)
	}

	api := router.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.POST("/login",
		middleware.LoginRateLimiter(opts.Redis, opts.LoginLimit.MaxAttempts, opts.LoginLimit.Window, log),
		h.Auth.Login,
	)
	authGroup.GET("/me", middleware.JWTAuth(opts.JWT, log), h.Auth.Me)

	api.GET("/posts", h.Post.ListPosts)
	api.GET("/posts/:slug", h.Post.GetPost)
	api.GET("/categories", h.Post.ListCategories)

	admin := api.Group("/admin", middleware.JWTAuth(opts.JWT, log))

	viewer := admin.Group("", middleware.RequireRole(auth.RoleViewer))
	viewer.GET("/posts", h.Post.ListPosts)
	viewer.GET("/posts/:id", h.Post.AdminGetPost)

	editor := admin.Group("", middleware.RequireRole(auth.RoleEditor))
	editor.POST("/posts", h.Post.CreatePost)
	editor.PUT("/posts/:id", h.Post.UpdatePost)
	editor.DELETE("/posts/:id", h.Post.DeletePost)
	editor.GET("/media", h.Media.ListMedia)
	editor.POST("/media", h.Media.UploadMedia)
	editor.GET("/media/:id", h.Media.GetMedia)
	editor.DELETE("/media/:id", h.Media.DeleteMedia)

	owner := admin.Group("", middleware.RequireRole(auth.RoleAdmin))
	owner.POST("/media/cleanup", h.Media.CleanupMedia)
	owner.GET("/admins", h.Auth.ListAdmins)
	owner.PUT("/admins/:id/role", h.Auth.UpdateRole)
	owner.GET("/audit", h.Audit.ListAuditLogs)

	return router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
