// Package bootstrap assembles the shared dependencies used by the API and the
// results worker.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"statements-backend/internal/audit"
	"statements-backend/internal/batch"
	"statements-backend/internal/feedback"
	"statements-backend/internal/modelversions"
	"statements-backend/internal/processing"
	"statements-backend/internal/queue"
	"statements-backend/internal/services/health"
	"statements-backend/internal/shared/config"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/server"
	"statements-backend/internal/shared/storage/db"
	"statements-backend/internal/shared/storage/kv"
	"statements-backend/internal/shared/storage/object"
	localstore "statements-backend/internal/shared/storage/object/local"
	s3store "statements-backend/internal/shared/storage/object/s3"
	"statements-backend/internal/shared/telemetry"
	"statements-backend/internal/stats"
	"statements-backend/internal/training"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Redis  *redis.Client
	Store  object.ObjectStore
	Signal queue.Client
	Audit  audit.Recorder

	Queue     *processing.Service
	Batch     *batch.Coordinator
	Stats     *stats.Service
	Refresher *stats.Refresher
	Models    *modelversions.Service
	Training  *training.Service
	Feedback  *feedback.Controller
}

// Build connects the backing stores selected by cfg and wires every service.
// Outside production a database or Redis that cannot be reached falls back to
// the in-memory implementations.
func Build(ctx context.Context, cfg config.Config, pool db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}

	rdb, err := buildRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	signal, err := buildSignal(ctx, cfg, rdb)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Redis:  rdb,
		Store:  store,
		Signal: signal,
		Audit:  buildAudit(sqlDB),
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		Health:          buildHealth(app),
		QueueHandler:    processing.NewHandler(app.Queue),
		BatchHandler:    batch.NewHandler(app.Batch),
		StatsHandler:    stats.NewHandler(app.Stats),
		ModelHandler:    modelversions.NewHandler(app.Models),
		FeedbackHandler: feedback.NewHandler(app.Feedback),
	})

	return app, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}

func buildDB(ctx context.Context, cfg config.Config, pool db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(pool))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_unavailable", map[string]any{"error": err, "fallback": "memory"})
			return nil, nil
		}
		return nil, err
	}

	if err := metrics.RegisterDBStats(sqlDB, "statements"); err != nil {
		telemetry.Warn("bootstrap.db_stats_unregistered", map[string]any{"error": err})
	}
	return sqlDB, nil
}

func buildRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		if cfg.SignalBackend == "redis" {
			return nil, errors.New("SIGNAL_BACKEND=redis requires REDIS_URL")
		}
		return nil, nil
	}
	rdb, err := kv.Connect(ctx, cfg.RedisURL)
	if err != nil {
		if isDevLike(cfg.Env) && cfg.SignalBackend != "redis" {
			telemetry.Warn("bootstrap.redis_unavailable", map[string]any{"error": err, "fallback": "memory"})
			return nil, nil
		}
		return nil, err
	}
	return rdb, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildSignal(ctx context.Context, cfg config.Config, rdb *redis.Client) (queue.Client, error) {
	switch cfg.SignalBackend {
	case "sqs":
		if cfg.SQSReprocessQueueURL == "" {
			return nil, errors.New("SIGNAL_BACKEND=sqs requires SQS_REPROCESS_QUEUE_URL")
		}
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSReprocessQueueURL)
		if err != nil {
			return nil, fmt.Errorf("build sqs signal: %w", err)
		}
		return client, nil
	case "redis":
		return queue.NewRedisClient(rdb, queue.DefaultRedisKey), nil
	default:
		if !isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_signal", map[string]any{"env": cfg.Env})
		}
		return queue.NewMemoryClient(), nil
	}
}

func buildHealth(app *App) *health.Service {
	checks := map[string]health.Checker{}
	if app.DB != nil {
		checks["postgres"] = app.DB.PingContext
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }
	}
	return health.NewService(checks)
}

func buildAudit(sqlDB *sql.DB) audit.Recorder {
	if sqlDB == nil {
		return audit.LogRecorder{}
	}
	return audit.Multi{audit.LogRecorder{}, &audit.PGRecorder{DB: sqlDB}}
}

func buildServices(app *App) error {
	var (
		queueRepo    processing.Repo
		modelRepo    modelversions.Repo
		trainingRepo training.Repo
		feedbackRepo feedback.Repo
	)
	if app.DB != nil {
		queueRepo = &processing.PGRepo{DB: app.DB}
		modelRepo = &modelversions.PGRepo{DB: app.DB}
		trainingRepo = &training.PGRepo{DB: app.DB}
		feedbackRepo = &feedback.PGRepo{DB: app.DB}
	} else {
		queueRepo = processing.NewMemoryRepo()
		modelRepo = modelversions.NewMemoryRepo()
		trainingRepo = training.NewMemoryRepo()
		feedbackRepo = feedback.NewMemoryRepo()
	}

	var snapshots stats.SnapshotCache = stats.NewMemorySnapshotCache()
	if app.Redis != nil {
		snapshots = stats.NewRedisSnapshotCache(app.Redis)
	}

	models, err := modelversions.NewService(modelRepo, app.Audit)
	if err != nil {
		return fmt.Errorf("build model registry: %w", err)
	}

	app.Queue = processing.NewService(queueRepo, app.Signal, app.Audit)
	app.Batch = batch.NewCoordinator(app.Queue, app.Audit)
	app.Stats = stats.NewService(app.Queue, snapshots)
	app.Stats.MaxAge = app.Config.MetricsRefreshInterval
	app.Refresher = stats.NewRefresher(app.Stats, app.Queue, app.Config.MetricsRefreshInterval)
	app.Models = models
	app.Training = training.NewService(trainingRepo, app.Store, app.Audit)
	app.Feedback = feedback.NewController(feedbackRepo, app.Training, models, app.Audit)
	app.Feedback.TrendWindowDays = app.Config.TrendWindowDays

	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
