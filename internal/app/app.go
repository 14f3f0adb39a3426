package app

import (
	"context"
	"time"

	config "github.com/DRSN-tech/metric-embedder/internal/cfg"
	v1Http "github.com/DRSN-tech/metric-embedder/internal/delivery/v1/http"
	"github.com/DRSN-tech/metric-embedder/internal/infrastructure/kafka"
	"github.com/DRSN-tech/metric-embedder/internal/infrastructure/metrics"
	"github.com/DRSN-tech/metric-embedder/internal/infrastructure/ollama"
	s3Repo "github.com/DRSN-tech/metric-embedder/internal/repository/minio"
	"github.com/DRSN-tech/metric-embedder/internal/repository/pgdb"
	qdrantRepo "github.com/DRSN-tech/metric-embedder/internal/repository/qdrant"
	"github.com/DRSN-tech/metric-embedder/internal/repository/redis"
	sqliteRepo "github.com/DRSN-tech/metric-embedder/internal/repository/sqlite"
	"github.com/DRSN-tech/metric-embedder/internal/usecase"
	"github.com/DRSN-tech/metric-embedder/internal/worker"
	"github.com/DRSN-tech/metric-embedder/pkg/clients"
	"github.com/DRSN-tech/metric-embedder/pkg/closer"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/DRSN-tech/metric-embedder/pkg/postgres"
	"github.com/DRSN-tech/metric-embedder/pkg/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App собранный сервис: буфер, клиенты внешних систем, воркер и опциональный HTTP-сервер.
type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	buffer    usecase.BufferRepository
	embRepo   *qdrantRepo.EmbeddingRepo
	captureUC *usecase.CaptureUseCase
}

// NewApp поднимает все зависимости. Недоступность буфера или векторного хранилища
// при старте возвращается ошибкой; уже открытые ресурсы при этом закрываются.
func NewApp(ctx context.Context, cfg *config.Config, logger logger.Logger) (_ *App, err error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
		closer: closer.NewCloser(0),
	}
	defer func() {
		if err != nil {
			_ = a.closer.Close(context.Background())
		}
	}()

	a.buffer, err = initBuffer(ctx, cfg, logger, a.closer)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.AddFunc("qdrant", qdrantClient.Close)

	qdrantCtx, qdrantCancel := context.WithTimeout(ctx, startupTimeout)
	defer qdrantCancel()
	if err := qdrantClient.Ping(qdrantCtx); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.embRepo = qdrantRepo.NewEmbeddingRepo(qdrantClient.Client, cfg.Embedding.Model, cfg.Qdrant.VectorSize)

	opts, err := a.initOptional(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	a.captureUC = usecase.NewCaptureUC(
		a.buffer,
		metrics.NewFetcher(cfg.Capture),
		ollama.NewEmbedder(cfg.Embedding),
		a.embRepo,
		cfg.Qdrant.QdrantCollectionName,
		logger,
		opts...,
	)

	return a, nil
}

// initOptional подключает кэш, архив и события, если они включены в конфигурации.
func (a *App) initOptional(ctx context.Context) ([]usecase.CaptureOption, error) {
	var opts []usecase.CaptureOption

	if a.cfg.Redis != nil {
		redisClient := clients.NewRedisClient(a.cfg.Redis)
		a.closer.AddFunc("redis", redisClient.Close)

		redisCtx, redisCancel := context.WithTimeout(ctx, startupTimeout)
		defer redisCancel()
		if err := redisClient.Ping(redisCtx); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		opts = append(opts, usecase.WithEmbeddingCache(redis.NewCacheRepo(redisClient, a.cfg.Redis, a.logger)))
		a.logger.Infof("embedding cache enabled at %s", a.cfg.Redis.Addr)
	}

	if a.cfg.Minio != nil {
		minioClient, err := clients.NewMinIOClient(a.cfg.Minio)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		minioCtx, minioCancel := context.WithTimeout(ctx, startupTimeout)
		defer minioCancel()
		if err := clients.EnsureBucket(minioCtx, minioClient, a.cfg.Minio.BucketName); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		opts = append(opts, usecase.WithArchive(s3Repo.NewArchiveRepo(minioClient, a.cfg.Minio)))
		a.logger.Infof("batch archive enabled, bucket %s", a.cfg.Minio.BucketName)
	}

	if a.cfg.Kafka != nil {
		producer := kafka.NewProducer(a.logger, a.cfg.Kafka)
		a.closer.AddFunc("kafka", producer.Close)

		if err := producer.EnsureTopic(startupTimeout); err != nil {
			a.logger.Warnf("kafka topic check failed, events may be lost: %v", err)
		}

		opts = append(opts, usecase.WithMessageProducer(producer))
		a.logger.Infof("batch events enabled, topic %s", a.cfg.Kafka.Topic)
	}

	return opts, nil
}

// Run крутит воркер до отмены ctx или падения HTTP-сервера, затем закрывает ресурсы.
func (a *App) Run(ctx context.Context) error {
	w := worker.NewCaptureWorker(a.captureUC, a.cfg.Capture.Interval, a.logger)

	errCh := make(chan error, 1)
	if a.cfg.Http != nil {
		r := chi.NewRouter()
		router := v1Http.NewRouter(r, a.logger)
		router.Init(usecase.NewStatusUC(a.buffer, a.embRepo, w, a.cfg.Qdrant.QdrantCollectionName))

		httpSrv := v1Http.NewServer(r, a.cfg.Http)
		a.closer.Add("http", httpSrv.Stop)

		go func() {
			a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
			if err := httpSrv.Run(); err != nil {
				errCh <- err
			}
		}()
	}

	w.Start(ctx)
	a.closer.AddFunc("worker", func() error {
		w.Stop()
		return nil
	})

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case <-ctx.Done():
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
	}
	a.logger.Infof("Application shutdown complete")

	return appErr
}

// TickOnce выполняет ровно один тик и закрывает ресурсы.
func (a *App) TickOnce(ctx context.Context) *usecase.TickResult {
	res := a.captureUC.Tick(ctx)

	if err := a.closer.Close(context.Background()); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
	}

	return res
}

// Migrate применяет миграции буфера без запуска остального сервиса.
func Migrate(ctx context.Context, cfg *config.Config, logger logger.Logger) error {
	c := closer.NewCloser(0)
	defer c.Close(context.Background())

	if _, err := initBuffer(ctx, cfg, logger, c); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func initBuffer(ctx context.Context, cfg *config.Config, logger logger.Logger, c *closer.Closer) (usecase.BufferRepository, error) {
	switch cfg.Buffer.Driver {
	case config.BufferDriverPostgres:
		db, err := initPGDB(ctx, logger, cfg)
		if err != nil {
			return nil, err
		}
		c.AddFunc("postgres", func() error {
			db.Close()
			return nil
		})
		return pgdb.NewSnapshotRepo(db.Pool), nil

	case config.BufferDriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Buffer.SQLitePath)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		c.AddFunc("sqlite", db.Close)

		if err := db.RunMigrations(logger); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		logger.Infof("sqlite buffer opened at %s", cfg.Buffer.SQLitePath)
		return sqliteRepo.NewSnapshotRepo(db.DB), nil

	default:
		return nil, e.Wrap(cfg.Buffer.Driver, e.ErrUnknownBufferDriver)
	}
}

func initPGDB(ctx context.Context, logger logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(ctx, cfg.Db)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(logger); err != nil {
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
