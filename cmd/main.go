package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mural_service/internal/api"
	"mural_service/internal/config"
	"mural_service/internal/core"
	"mural_service/internal/domain/model"
	"mural_service/internal/domain/repository"
	"mural_service/internal/infrastructure/visionclient"
	"mural_service/internal/logging"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(healthCheck())
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.GetString("LOG_LEVEL", "info"),
		Format:      cfg.GetString("LOG_FORMAT", "json"),
		OutputPath:  cfg.GetString("LOG_OUTPUT", ""),
		Development: cfg.GetBool("LOG_DEVELOPMENT", false),
		Fields:      map[string]string{"service": "mural_service"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	catalog, err := repository.LoadCatalog()
	if err != nil {
		logger.Fatal("Failed to load color catalog", zap.Error(err))
	}
	logger.Info("Color catalog loaded", zap.Strings("vendors", catalog.Vendors()))

	images, err := newImageStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create image store", zap.Error(err))
	}

	snapshots, closeSnapshots, err := newSnapshotStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create snapshot store", zap.Error(err))
	}
	defer closeSnapshots()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(registry)

	classifier := visionclient.NewHTTPClient(
		cfg.GetString("VISION_SERVICE_URL", ""),
		cfg.GetDuration("VISION_TIMEOUT", 30*time.Second),
		logger,
	)
	aggregator := core.NewAggregator(
		classifier,
		images,
		cfg.GetFloat("COVERAGE_PER_UNIT", core.DefaultCoveragePerUnit),
		metrics,
		logger,
	)
	service := core.NewEstimationService(catalog, aggregator, snapshots, metrics, logger)

	mux := http.NewServeMux()
	api.NewHandler(service, catalog, logger).Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	port := cfg.GetInt("PORT", 8080)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	healthPort := cfg.GetInt("GRPC_HEALTH_PORT", 9090)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", healthPort))
	if err != nil {
		logger.Fatal("Failed to listen", zap.Int("port", healthPort), zap.Error(err))
	}

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			logger.Fatal("Failed to serve health checks", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting server", zap.Int("port", port), zap.Int("health_port", healthPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("Server stopped")
}

func newImageStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (model.ImageStore, error) {
	switch cfg.GetString("IMAGE_STORE", "file") {
	case "s3":
		return repository.NewS3ImageStore(ctx, repository.S3Config{
			Endpoint:        cfg.GetString("S3_ENDPOINT", ""),
			Region:          cfg.GetString("S3_REGION", ""),
			Bucket:          cfg.GetString("S3_BUCKET", ""),
			AccessKeyID:     cfg.GetString("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: cfg.GetString("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    cfg.GetBool("S3_USE_PATH_STYLE", false),
		}, logger)
	default:
		return repository.NewFileImageStore(cfg.GetString("IMAGE_DIR", ".")), nil
	}
}

// newSnapshotStore uses Postgres when POSTGRES_URL is set and keeps snapshots
// in memory otherwise.
func newSnapshotStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (model.SnapshotStore, func(), error) {
	connStr := cfg.GetString("POSTGRES_URL", "")
	if connStr == "" {
		logger.Warn("POSTGRES_URL not set, snapshots are kept in memory")
		return repository.NewMemorySnapshotRepository(), func() {}, nil
	}

	repo, err := repository.NewPostgresSnapshotRepository(ctx, connStr, logger)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { repo.Close() }, nil
}

func healthCheck() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return 1
	}

	connStr := cfg.GetString("POSTGRES_URL", "")
	if connStr == "" {
		return 0
	}

	logger := logging.NewDefaultLogger()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := repository.NewPostgresSnapshotRepository(ctx, connStr, logger)
	if err != nil {
		logger.Error("Health check failed", zap.Error(err))
		return 1
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		logger.Error("Health check failed", zap.Error(err))
		return 1
	}
	return 0
}
