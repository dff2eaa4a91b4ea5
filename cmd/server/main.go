package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"propertyhub/server/config"
	"propertyhub/server/internal/api"
	"propertyhub/server/internal/database"
	"propertyhub/server/internal/dedup"
	"propertyhub/server/internal/metrics"
	"propertyhub/server/internal/processor"
	"propertyhub/server/internal/queue"
	"propertyhub/server/internal/ranking"
	"propertyhub/server/internal/scheduler"
	"propertyhub/server/internal/search"
)

func main() {
	writeCalibration := flag.String("write-calibration", "", "Write the active calibration to this JSON or YAML file and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	calibration, err := config.LoadCalibration(cfg.CalibrationFile)
	if err != nil {
		logger.WithError(err).WithField("file", cfg.CalibrationFile).Warn("Failed to load calibration, using defaults")
	}
	logger.WithField("version", calibration.Version).Info("Loaded engine calibration")

	if *writeCalibration != "" {
		if err := config.SaveCalibration(*writeCalibration, calibration); err != nil {
			logger.WithError(err).Fatal("Failed to write calibration")
		}
		logger.WithField("file", *writeCalibration).Info("Wrote calibration")
		return
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics()
	if err := m.Register(registry); err != nil {
		logger.WithError(err).Fatal("Failed to register metrics")
	}

	dedupEngine := dedup.NewEngine(calibration.Dedup)
	rankingEngine := ranking.NewEngine(calibration.Ranking)

	listingQueue := queue.NewListingQueue(cfg.BatchProcessing.QueueSize, logger)
	dedupProcessor := processor.NewDedupProcessor(db, listingQueue, dedupEngine, cfg, m, logger)
	dedupProcessor.Start()

	var sweeps *scheduler.Scheduler
	if cfg.Sweep.Enabled {
		sweeps = scheduler.NewScheduler(dedupProcessor, db, cfg.Sweep.Interval, logger)
		sweeps.Start()
	}

	searchService := search.NewService(db, rankingEngine, m, logger)
	handler := api.NewHandler(db, dedupProcessor, listingQueue, searchService, dedupEngine, cfg.BatchProcessing.MaxBatchSize, logger)

	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, handler, registry, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if sweeps != nil {
		sweeps.Stop()
	}
	// drain queued batches before aborting retries
	if err := listingQueue.Close(); err != nil {
		logger.WithError(err).Error("Failed to close listing queue")
	}
	dedupProcessor.Stop()

	logger.Info("Server exited")
}
