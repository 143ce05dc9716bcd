package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/internal/repository"
	"github.com/noah-isme/pmb-api/internal/service"
	"github.com/noah-isme/pmb-api/pkg/broker"
	"github.com/noah-isme/pmb-api/pkg/cache"
	"github.com/noah-isme/pmb-api/pkg/config"
	"github.com/noah-isme/pmb-api/pkg/database"
	"github.com/noah-isme/pmb-api/pkg/export"
	"github.com/noah-isme/pmb-api/pkg/jobs"
	"github.com/noah-isme/pmb-api/pkg/storage"
)

// App holds the wired dependencies shared by the HTTP server and the CLI.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics *service.MetricsService
	Users   *repository.UserRepository
	Cache   *repository.CacheRepository

	Auth       *service.AuthService
	Admissions *service.AdmissionService
	Programs   *service.ProgramService
	Counters   *service.CounterService
	Letters    *service.LetterService
	Roster     *service.RosterService

	Queue     *jobs.Queue
	Publisher broker.Publisher
}

// New connects to the stores and wires repositories, services and the job queue.
// The queue is not started.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, status cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	publisher, err := broker.NewPublisher(cfg.Kafka, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init publisher: %w", err)
	}

	a, err := Wire(cfg, logger, db, redisClient, publisher)
	if err != nil {
		_ = publisher.Close()
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Wire builds the object graph over already opened connections.
func Wire(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client, publisher broker.Publisher) (*App, error) {
	if publisher == nil {
		publisher = broker.NopPublisher{}
	}
	metrics := service.NewMetricsService()
	validate := service.NewValidator()

	candidates := repository.NewCandidateRepository(db)
	programs := repository.NewProgramRepository(db)
	counters := repository.NewNIMCounterRepository(db)
	users := repository.NewUserRepository(db)
	audit := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logger)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.CandidateTTL, logger, cfg.Cache.Enabled && redisClient != nil)

	store, err := storage.NewLocalStorage(cfg.Letters.StorageDir)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Letters.SignedURLSecret, cfg.Letters.SignedURLTTL)
	letters := service.NewLetterService(candidates, export.NewLetterRenderer(""), store, signer, audit, logger,
		service.LetterConfig{DownloadPath: cfg.APIPrefix + "/letters/download"})

	events := service.NewAdmissionEventHandler(letters, publisher, logger)
	queue := jobs.NewQueue("admissions", events.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logger,
		OnResult: func(job jobs.Job, err error) {
			metrics.RecordJob(job.Type, err)
		},
	})

	allocator := service.NewNIMAllocator(counters, service.RetryPolicy{
		MaxAttempts: cfg.NIM.MaxAttempts,
		BaseDelay:   cfg.NIM.RetryBackoff,
		MaxDelay:    cfg.NIM.MaxRetryBackoff,
	}, metrics, logger)

	admissions := service.NewAdmissionService(service.AdmissionDeps{
		Tx:         repository.NewTransactor(db),
		Candidates: candidates,
		Programs:   programs,
		Allocator:  allocator,
		Audit:      audit,
		Cache:      cacheSvc,
		Events:     queue,
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logger,
	}, service.AdmissionConfig{ApprovalTimeout: cfg.NIM.ApprovalTimeout, StatusCacheTTL: cfg.Cache.CandidateTTL})

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics,
		Users:   users,
		Cache:   cacheRepo,
		Auth: service.NewAuthService(users, validate, logger, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}),
		Admissions: admissions,
		Programs:   service.NewProgramService(programs, logger),
		Counters:   service.NewCounterService(counters),
		Letters:    letters,
		Roster:     service.NewRosterService(candidates),
		Queue:      queue,
		Publisher:  publisher,
	}, nil
}

// Bootstrap creates the schema, seeds default programs and the bootstrap admin.
func (a *App) Bootstrap(ctx context.Context) error {
	if err := database.EnsureSchema(ctx, a.DB); err != nil {
		return err
	}
	created, err := a.Programs.EnsureDefaults(ctx)
	if err != nil {
		return err
	}
	if created > 0 {
		a.Logger.Info("default programs seeded", zap.Int("created", created), zap.Int("total", len(models.DefaultPrograms)))
	}
	if _, err := a.Auth.EnsureAdmin(ctx, a.Config.Admin.Email, a.Config.Admin.Password, a.Config.Admin.FullName); err != nil {
		return err
	}
	return nil
}

// Close drains the job queue and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Queue.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close postgres: %w", err))
	}
	return errors.Join(errs...)
}
