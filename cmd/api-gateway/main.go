package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/admission-portal-api/api/swagger"
	"github.com/noah-isme/admission-portal-api/internal/catalog"
	"github.com/noah-isme/admission-portal-api/internal/handler"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
	mongostore "github.com/noah-isme/admission-portal-api/internal/repository/mongo"
	"github.com/noah-isme/admission-portal-api/internal/service"
	"github.com/noah-isme/admission-portal-api/pkg/cache"
	"github.com/noah-isme/admission-portal-api/pkg/config"
	"github.com/noah-isme/admission-portal-api/pkg/database"
	"github.com/noah-isme/admission-portal-api/pkg/jobs"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
	"github.com/noah-isme/admission-portal-api/pkg/pdf"
	"github.com/noah-isme/admission-portal-api/pkg/storage"
)

// @title Admission Portal API
// @version 1.0.0
// @description Application and document review workflow for student admissions
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	var (
		store service.ApplicationStore
		inbox notificationInbox
		err   error
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, mdb, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer database.DisconnectMongo(client) //nolint:errcheck
		appStore := mongostore.NewApplicationStore(mdb, metrics)
		if err := appStore.EnsureIndexes(ctx); err != nil {
			return err
		}
		store = appStore
		notificationStore := mongostore.NewNotificationStore(mdb)
		if err := notificationStore.EnsureIndexes(ctx); err != nil {
			return err
		}
		inbox = notificationStore
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := database.EnsureSchema(ctx, db); err != nil {
				return err
			}
		}
		store = repository.NewApplicationRepository(db, metrics)
		inbox = repository.NewNotificationRepository(db)
		checks["postgres"] = db.PingContext
	}

	redisClient := connectRedis(cfg, logr)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	artifactStore, fetcherOpts, cleanup, err := buildStorage(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer cleanup()

	cat := catalog.Default()
	if cfg.Workflow.CatalogVersion != "" && cfg.Workflow.CatalogVersion != cat.Version() {
		cat, err = catalog.New(cfg.Workflow.CatalogVersion, cat.Entries())
		if err != nil {
			return fmt.Errorf("build document catalog: %w", err)
		}
	}

	notifications, stopQueue := buildNotifications(ctx, cfg, inbox, metrics, logr)
	defer stopQueue()

	applications := service.NewApplicationService(store, cat, validator.New(), logr,
		service.WithApplicationCache(cacheSvc),
		service.WithApplicationNotifier(notifications),
		service.WithApplicationMetrics(metrics),
		service.WithMaxWriteAttempts(cfg.Workflow.MaxWriteAttempts),
	)

	fetcherOpts = append(fetcherOpts,
		storage.WithFetchTimeout(cfg.Artifacts.FetchTimeout),
		storage.WithMaxBytes(largestDocument(cat)),
	)
	artifacts := service.NewArtifactService(
		applications,
		storage.NewFetcher(cfg.Storage.DocumentBaseURL, fetcherOpts...),
		artifactStore,
		storage.NewSignedURLSigner(cfg.Artifacts.SignedURLSecret, cfg.Artifacts.SignedURLTTL),
		pdf.NewMerger(pdf.WithMaxImageEdge(cfg.Artifacts.MaxImagePixels)),
		cat,
		metrics,
		logr,
		service.ArtifactConfig{
			FetchConcurrency: cfg.Artifacts.FetchConcurrency,
			DownloadPath:     cfg.APIPrefix + "/artifacts/download",
		},
	)

	router := newRouter(cfg, logr, routerDeps{
		applications:  applications,
		artifacts:     artifacts,
		notifications: notifications,
		catalog:       cat,
		metrics:       metrics,
		tokens:        service.NewTokenValidator(cfg.JWT.Secret, cfg.JWT.Issuer),
		checks:        checks,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver, "storage", cfg.Storage.Driver)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// largestDocument bounds fetched payloads by the biggest size the catalog accepts.
func largestDocument(cat *catalog.Catalog) int64 {
	var largest int64
	for _, entry := range cat.Entries() {
		if entry.MaxSizeBytes > largest {
			largest = entry.MaxSizeBytes
		}
	}
	if largest == 0 {
		return 25 << 20
	}
	return largest
}

func connectRedis(cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Cache.Enabled {
		return nil
	}
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, application cache disabled", zap.Error(err))
		return nil
	}
	return client
}

// buildStorage picks the artifact store and the fetcher options that let document
// locators on the same provider be read without public URLs.
func buildStorage(ctx context.Context, cfg *config.Config, logr *zap.Logger) (storage.ArtifactStorage, []storage.FetcherOption, func(), error) {
	var opts []storage.FetcherOption
	noop := func() {}

	switch cfg.Storage.Driver {
	case config.StorageDriverS3:
		s3Store, err := storage.NewS3Storage(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("init s3 storage: %w", err)
		}
		return s3Store, append(opts, storage.WithPresigner(s3Store)), noop, nil
	case config.StorageDriverGCS:
		gcsStore, err := storage.NewGCSStorage(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("init gcs storage: %w", err)
		}
		closeFn := func() {
			if err := gcsStore.Close(); err != nil {
				logr.Warn("close gcs client", zap.Error(err))
			}
		}
		return gcsStore, append(opts, storage.WithObjectReader(gcsStore)), closeFn, nil
	default:
		local, err := storage.NewLocalStorage(cfg.Storage.LocalDir)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("init local storage: %w", err)
		}
		go sweepArtifacts(ctx, local, cfg.Artifacts.Retention, logr)
		return local, opts, noop, nil
	}
}

func sweepArtifacts(ctx context.Context, local *storage.LocalStorage, retention time.Duration, logr *zap.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := local.CleanupOlderThan(retention)
			if err != nil {
				logr.Warn("artifact cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired artifacts removed", zap.Int("count", len(removed)))
			}
		}
	}
}

type notificationInbox interface {
	service.NotificationSender
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}

// buildNotifications starts the delivery queue in front of the store's inbox.
func buildNotifications(ctx context.Context, cfg *config.Config, inbox notificationInbox, metrics *service.MetricsService, logr *zap.Logger) (*service.NotificationService, func()) {
	if !cfg.Notifications.Enabled {
		return service.NewNotificationService(nil, inbox, metrics, logr), func() {}
	}

	worker := service.NewNotificationWorker(inbox, metrics, logr)
	queue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: -1,
		Logger:     logr,
	})
	queue.Start(ctx)
	return service.NewNotificationService(queue, inbox, metrics, logr), queue.Stop
}
