package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PaIIermo/DIP-compass-gamification/config"
	"github.com/PaIIermo/DIP-compass-gamification/services"
	"github.com/PaIIermo/DIP-compass-gamification/storage"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	var exporter services.SnapshotExporter
	if cfg.ExportEnabled {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		exporter = storage.NewExporter(db, s3Client, cfg.S3Bucket, cfg.ExportKeep, logging.With(zap.String("component", "export")))
	}

	pipeline := services.BuildPipeline(cfg, db, logging, exporter)

	logging.Info("Running database auto-migration...")
	if err := pipeline.Store.Migrate(); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}
	seedCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := pipeline.Store.SeedDecayLookup(seedCtx); err != nil {
		logging.Fatal("Decay lookup seeding failed", zap.Error(err))
	}
	cancel()

	scheduler := services.NewScheduler(pipeline, cfg.RetryBackoff, logging.With(zap.String("component", "scheduler")))
	if cfg.AutoStart {
		if err := scheduler.Start(services.DefaultTrigger(cfg)); err != nil {
			logging.Fatal("Scheduler start failed", zap.Error(err))
		}
	}
	defer scheduler.Stop()

	router := newRouter(cfg, db, pipeline, scheduler, logging)

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, db *gorm.DB, pipeline *services.Pipeline, scheduler *services.Scheduler, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupPipelineRoutes(router, pipeline, scheduler, services.DefaultTrigger(cfg), log)
	setupSeriesRoutes(router, db, log)
	return router
}
