package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/patient-progress-api/api/swagger"
	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/repository"
	"github.com/noah-isme/patient-progress-api/internal/service"
	"github.com/noah-isme/patient-progress-api/pkg/cache"
	"github.com/noah-isme/patient-progress-api/pkg/config"
	"github.com/noah-isme/patient-progress-api/pkg/database"
	"github.com/noah-isme/patient-progress-api/pkg/jobs"
	"github.com/noah-isme/patient-progress-api/pkg/logger"
	"github.com/noah-isme/patient-progress-api/pkg/storage"
)

// @title Patient Progress API
// @version 1.0.0
// @description Compares assessment periods of a patient item by item and classifies the progress.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	catalogs := catalog.NewHolder(cat)
	logr.Info("catalog loaded", zap.String("version", cat.Version), zap.Int("items", len(cat.Items)))

	var db *sqlx.DB
	if cfg.NeedsDatabase() {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc, closeCache := newCacheService(ctx, cfg, metricsSvc, logr)
	defer closeCache()

	source, err := repository.OpenSource(ctx, cfg, db, catalogs, logr)
	if err != nil {
		return fmt.Errorf("open dataset source: %w", err)
	}
	datasetSvc := service.NewDatasetService(source, cacheSvc, metricsSvc, logr, cfg.Dataset.ID, cfg.Dataset.CacheTTL)

	validate := validator.New()
	patientSvc := service.NewPatientService(datasetSvc, validate, logr)
	comparisonSvc := service.NewComparisonService(datasetSvc, cat, validate, metricsSvc, logr)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(comparisonSvc, files, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil)

	var authSvc *service.AuthService
	if cfg.Auth.Enabled {
		authSvc = service.NewAuthService(repository.NewUserRepository(db), validate, logr, service.AuthConfig{
			Secret: cfg.Auth.Secret,
			Expiry: cfg.Auth.Expiration,
			Issuer: cfg.Auth.Issuer,
		})
	}

	queue := jobs.NewQueue("dataset", datasetSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	go func() {
		if _, _, err := datasetSvc.Dataset(ctx); err != nil {
			logr.Warn("initial dataset load failed", zap.Error(err))
		}
	}()

	if cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		go func() {
			err := catalog.Watch(ctx, cfg.Catalog.Path, logr, func(next *catalog.Catalog) {
				catalogs.Swap(next)
				comparisonSvc.UseCatalog(next)
				// Sheet values are normalized with the catalog, so reload them.
				if err := datasetSvc.Invalidate(ctx); err != nil {
					logr.Warn("dataset invalidation after catalog reload failed", zap.Error(err))
				}
			})
			if err != nil {
				logr.Error("catalog watcher stopped", zap.Error(err))
			}
		}()
	}

	go cleanupExports(ctx, exportSvc, cfg.Exports.CleanupInterval, logr)

	router := newRouter(cfg, logr, services{
		auth:        authSvc,
		patients:    patientSvc,
		comparisons: comparisonSvc,
		exports:     exportSvc,
		datasets:    datasetSvc,
		metrics:     metricsSvc,
		queue:       queue,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("source", source.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCacheService(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (*service.CacheService, func()) {
	noop := func() {}
	if !cfg.Redis.Enabled {
		return service.NewCacheService(nil, metrics, cfg.Dataset.CacheTTL, logr, false), noop
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-memory dataset cache only", zap.Error(err))
		return service.NewCacheService(nil, metrics, cfg.Dataset.CacheTTL, logr, false), noop
	}
	repo := repository.NewCacheRepository(client, "progress", logr)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logr.Warn("close redis", zap.Error(err))
		}
	}
	return service.NewCacheService(repo, metrics, cfg.Dataset.CacheTTL, logr, true), closeFn
}

func cleanupExports(ctx context.Context, exports *service.ExportService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := exports.Cleanup(); err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
			}
		}
	}
}
