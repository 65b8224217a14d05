package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bridgeml/bridge/cmd/api-gateway/middleware"
	"github.com/bridgeml/bridge/internal/common"
	"github.com/bridgeml/bridge/internal/notify"
	"github.com/bridgeml/bridge/internal/pipeline"
	"github.com/bridgeml/bridge/internal/results"
	"github.com/bridgeml/bridge/internal/session"
	"github.com/bridgeml/bridge/internal/storage"
	"github.com/bridgeml/bridge/internal/upload"
	"github.com/bridgeml/bridge/pkg/config"
	"github.com/bridgeml/bridge/pkg/types"
)

func main() {
	// Load configuration
	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	log.Info().Msg("Starting Bridge API Gateway")

	// Initialize database
	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize cache / live push channel
	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cache.Close()

	// Initialize object storage
	storageFactory := storage.NewStorageFactory(&cfg.Storage)
	objectStore, err := storageFactory.CreateStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object storage")
	}

	// Initialize services
	notifier := notify.NewService(db.DB, cache)
	assembler := upload.NewAssembler(cfg.Upload.ScratchDir, cfg.Upload.CleanupAttempts, cfg.Upload.CleanupDelay)

	uploadSessions := session.NewStore[types.UploadSession]()
	pipelineSessions := session.NewStore[types.PipelineSession]()

	uploadService := upload.NewService(uploadSessions, assembler, objectStore, notifier, cfg.Storage.DataBucket)
	pipelineService := pipeline.NewService(pipelineSessions, pipeline.NewClient(&cfg.ModelOPS), notifier,
		cfg.Storage.DataBucket, cfg.Storage.ResultsBucket)
	resultsService := results.NewService(objectStore, cfg.Storage.DataBucket, cfg.Storage.ResultsBucket)

	// Setup HTTP server
	router := setupRouter(cfg, uploadService, pipelineService, resultsService, uploadSessions, pipelineSessions)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}

func setupRouter(
	cfg *config.Config,
	uploadService *upload.Service,
	pipelineService *pipeline.Service,
	resultsService *results.Service,
	uploadSessions *session.Store[types.UploadSession],
	pipelineSessions *session.Store[types.PipelineSession],
) *gin.Engine {
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"service":           "bridge-api-gateway",
			"upload_sessions":   uploadSessions.Len(),
			"pipeline_sessions": pipelineSessions.Len(),
			"time":              time.Now().UTC(),
		})
	})

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		uploads := api.Group("/uploads")
		{
			uploads.POST("", handleStartUpload(uploadService))
			uploads.GET("/:sessionId", handleUploadStatus(uploadService))
			uploads.POST("/:sessionId/chunks", handleSubmitChunk(uploadService))
		}

		sessions := api.Group("/pipeline/sessions")
		{
			sessions.POST("", handleStartPipeline(pipelineService))
			sessions.GET("/:sessionId", handlePipelineStatus(pipelineService))
			sessions.POST("/:sessionId/download", handleDownloadFiles(pipelineService))
			sessions.POST("/:sessionId/clean", handleCleanFiles(pipelineService))
			sessions.POST("/:sessionId/train", handleTrainModel(pipelineService))
		}

		resultsGroup := api.Group("/results")
		{
			resultsGroup.GET("/features/:label", handleFeatures(resultsService))
			resultsGroup.GET("/graphics/:label", handleImages(func(c *gin.Context, userID, label string, start, count int) ([]string, error) {
				return resultsService.Graphics(c.Request.Context(), userID, label, start, count)
			}))
			resultsGroup.GET("/stats/:label", handleImages(func(c *gin.Context, userID, label string, start, count int) ([]string, error) {
				return resultsService.Stats(c.Request.Context(), userID, label, start, count)
			}))
		}

		labels := api.Group("/labels")
		{
			labels.GET("", handleListLabels(resultsService))
			labels.GET("/:label/files", handleListFiles(resultsService))
			labels.DELETE("/:label", handleRemoveLabel(resultsService))
			labels.DELETE("/:label/files/:fileName", handleRemoveFile(resultsService))
		}
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
