package app

import (
	"context"
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackmate/server/internal/backup"
	"github.com/trackmate/server/internal/module/auth"
	"github.com/trackmate/server/internal/module/document"
	"github.com/trackmate/server/internal/module/team"
	"github.com/trackmate/server/internal/remotestore"
	"github.com/trackmate/server/internal/shared/cache"
	"github.com/trackmate/server/internal/shared/config"
	"github.com/trackmate/server/internal/shared/database"
	"github.com/trackmate/server/internal/shared/logger"
	"github.com/trackmate/server/internal/shared/metrics"
	"github.com/trackmate/server/internal/shared/middleware"
)

// App wires the server's components together and owns their lifecycles.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	rdb    redis.UniversalClient
	router *gin.Engine

	stopWorker remotestore.Unsubscribe
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	zl, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	rdb, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	m := metrics.New("trackmate")

	store, err := remotestore.New(db, rdb, zl, m)
	if err != nil {
		return nil, fmt.Errorf("init remote store: %w", err)
	}

	teamRepo, err := team.NewRepository(db)
	if err != nil {
		return nil, fmt.Errorf("init team repository: %w", err)
	}
	teamService := team.NewService(teamRepo, store, store, zl, m)

	archiver, err := backup.New(context.Background(), cfg.Storage, zl)
	if err != nil {
		return nil, fmt.Errorf("init archiver: %w", err)
	}
	var docArchiver document.Archiver
	if archiver != nil {
		docArchiver = archiver
	}
	docService := document.NewService(store, docArchiver, zl)

	authn := auth.NewManager(cfg.Auth)

	router := buildRouter(zl, m)
	v1 := router.Group("/v1")
	team.NewHandler(teamService).RegisterRoutes(v1, authn)
	document.NewHandler(docService).RegisterRoutes(v1, authn)

	// Every document write feeds the summary worker, keeping teammates'
	// balances current without the client doing anything.
	worker := team.NewWorker(teamRepo, store, store, zl, m)
	stop := store.SubscribeAllDocuments(context.Background(), func(event remotestore.ChangeEvent) {
		worker.HandleDocumentChange(context.Background(), event)
	})

	return &App{
		cfg:        cfg,
		logger:     zl,
		db:         db,
		rdb:        rdb,
		router:     router,
		stopWorker: stop,
	}, nil
}

func buildRouter(zl *zap.Logger, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(zl))
	router.Use(middleware.Metrics(m))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		AllowCredentials: false,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop tears down background work and connections.
func (a *App) Stop() {
	if a.stopWorker != nil {
		a.stopWorker()
	}
	if err := cache.Close(a.rdb); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
