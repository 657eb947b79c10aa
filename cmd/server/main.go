package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	auditdata "github.com/lk2023060901/blog-backend/internal/audit/data"
	auditservice "github.com/lk2023060901/blog-backend/internal/audit/service"
	"github.com/lk2023060901/blog-backend/internal/auth"
	authbiz "github.com/lk2023060901/blog-backend/internal/auth/biz"
	authdata "github.com/lk2023060901/blog-backend/internal/auth/data"
	authservice "github.com/lk2023060901/blog-backend/internal/auth/service"
	"github.com/lk2023060901/blog-backend/internal/conf"
	"github.com/lk2023060901/blog-backend/internal/data"
	mediabiz "github.com/lk2023060901/blog-backend/internal/media/biz"
	mediadata "github.com/lk2023060901/blog-backend/internal/media/data"
	mediaservice "github.com/lk2023060901/blog-backend/internal/media/service"
	"github.com/lk2023060901/blog-backend/internal/media/storage"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/markdown"
	"github.com/lk2023060901/blog-backend/internal/pkg/metrics"
	postbiz "github.com/lk2023060901/blog-backend/internal/post/biz"
	postdata "github.com/lk2023060901/blog-backend/internal/post/data"
	postservice "github.com/lk2023060901/blog-backend/internal/post/service"
	"github.com/lk2023060901/blog-backend/internal/server"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("config loaded successfully", zap.String("path", *configFile))

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	store, err := storage.NewLocal(config.Media.StorageRoot, config.Media.LockFile, log)
	if err != nil {
		log.Fatal("failed to initialize media storage", zap.Error(err))
	}
	if err := store.Lock(); err != nil {
		log.Fatal("media storage is in use by another process", zap.Error(err))
	}
	defer func() {
		if err := store.Unlock(); err != nil {
			log.Warn("failed to release storage lock", zap.Error(err))
		}
	}()

	var observer mediabiz.Observer
	var metricsHandler http.Handler
	if config.Metrics.Enabled {
		mo, err := metrics.NewMediaObserver(config.Metrics.Namespace, nil)
		if err != nil {
			log.Fatal("failed to register metrics", zap.Error(err))
		}
		observer = mo
		metricsHandler = metrics.Handler(nil)
	}

	location, err := config.Blog.Location()
	if err != nil {
		log.Fatal("invalid blog timezone", zap.Error(err))
	}
	renderer, err := markdown.NewRenderer(config.Blog.RenderCacheSize)
	if err != nil {
		log.Fatal("failed to initialize markdown renderer", zap.Error(err))
	}

	// Initialize repositories
	auditRepo := auditdata.NewAuditRepo(d.DB)
	adminRepo := authdata.NewAdminRepo(d.DB)
	postRepo := postdata.NewPostRepo(d.DB)
	mediaRepo := mediadata.NewMediaRepo(d.DB)

	// Initialize use cases
	recorder := auditbiz.NewRecorder(auditRepo, log)
	jwtManager := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer, config.Auth.TokenTTL)
	authUseCase := authbiz.NewAuthUseCase(adminRepo, jwtManager, recorder, log)

	seed := authbiz.SeedConfig{
		Username: config.Auth.DefaultAdmin.Username,
		Password: config.Auth.DefaultAdmin.Password,
		Role:     auth.Role(config.Auth.DefaultAdmin.Role),
	}
	if err := authUseCase.EnsureDefaultAdmin(context.Background(), seed); err != nil {
		log.Fatal("failed to seed default admin", zap.Error(err))
	}

	reserved := append(append([]string{}, postbiz.DefaultReservedSlugs...), config.Blog.ReservedSlugs...)
	postUseCase := postbiz.NewPostUseCase(postRepo, renderer, recorder, reserved, log)

	ingestor := mediabiz.NewIngestor(mediabiz.IngestConfig{
		MaxUploadBytes:   config.Media.MaxUploadBytes,
		AllowedMimeTypes: config.Media.AllowedMimeTypes,
		VerifyContent:    config.Media.VerifyContent,
	}, mediaRepo, store, observer, log)
	reconciler := mediabiz.NewReconciler(mediabiz.ReconcileConfig{
		OrphanGracePeriod: config.Media.OrphanGracePeriod,
	}, mediaRepo, store, observer, log)
	mediaUseCase := mediabiz.NewMediaUseCase(mediaRepo, store, ingestor, reconciler, recorder, observer, config.Media.CleanupAfterUpload, log)

	// Initialize services
	handlers := server.Handlers{
		Auth: authservice.NewAuthService(authUseCase, log),
		Post: postservice.NewPostService(postUseCase, postservice.Config{
			BaseURL:  config.Blog.BaseURL,
			Location: location,
		}, log),
		Media: mediaservice.NewMediaService(mediaUseCase, mediaservice.Config{
			PublicPrefix:   config.Media.PublicPrefix,
			TempDir:        config.Media.TempDir,
			MaxUploadBytes: config.Media.MaxUploadBytes,
		}, log),
		Audit: auditservice.NewAuditService(recorder, log),
	}

	httpServer := server.NewHTTPServer(config, log, handlers, server.Options{
		JWT:         jwtManager,
		Redis:       d.Redis,
		Health:      d,
		Metrics:     metricsHandler,
		MediaRoot:   store.Root(),
		MediaPrefix: config.Media.PublicPrefix,
		LoginLimit:  config.Auth.LoginRateLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
