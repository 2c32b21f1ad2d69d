package server

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/authz"
	"github.com/noah-isme/mute-meter-api/internal/handler"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	"github.com/noah-isme/mute-meter-api/internal/service"
	"github.com/noah-isme/mute-meter-api/pkg/cache"
	"github.com/noah-isme/mute-meter-api/pkg/config"
	"github.com/noah-isme/mute-meter-api/pkg/database"
	"github.com/noah-isme/mute-meter-api/pkg/logger"
)

const (
	analyticsCacheNamespace = "mute-meter:analytics:"
	auditWorkers            = 2
)

// InfraModule provides configuration, logging and the backing stores.
var InfraModule = fx.Module("infra",
	fx.Provide(
		config.Load,
		provideLogger,
		provideDatabase,
		provideRedis,
	),
)

// ServiceModule wires repositories, the page authorizer and domain services.
var ServiceModule = fx.Module("services",
	fx.Provide(
		provideMeterRepository,
		provideUserRepository,
		provideSessionStore,
		provideCacheRepository,
		provideAuditDispatcher,
		provideAccountStore,
		provideValidator,
		authz.NewEnforcer,
		provideAuthorizer,
		service.NewMetricsService,
		provideCacheService,
		provideAuthService,
		provideSessionService,
		provideMuteReasonService,
		provideSearchService,
		provideAnalyticsService,
		provideTransferService,
		provideUserService,
	),
)

func provideLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logr.Sync()
			return nil
		},
	})
	return logr, nil
}

func provideDatabase(lc fx.Lifecycle, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

// provideRedis returns nil when neither the session store nor the analytics cache needs Redis.
func provideRedis(lc fx.Lifecycle, cfg *config.Config, logr *zap.Logger) (*redis.Client, error) {
	needed := cfg.Redis.Enabled || cfg.Session.Store == config.SessionStoreRedis
	if !needed {
		return nil, nil
	}
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.Session.Store == config.SessionStoreRedis {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
		return nil, nil
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func provideMeterRepository(db *sqlx.DB, cfg *config.Config) *repository.MeterRepository {
	return repository.NewMeterRepository(db, cfg.Database.QueryTimeout)
}

func provideUserRepository(db *sqlx.DB, cfg *config.Config) *repository.UserRepository {
	return repository.NewUserRepository(db, cfg.Database.QueryTimeout)
}

func provideSessionStore(cfg *config.Config, client *redis.Client) repository.SessionStore {
	if cfg.Session.Store == config.SessionStoreRedis && client != nil {
		return repository.NewRedisSessionStore(client, cfg.Session.KeyPrefix)
	}
	return repository.NewMemorySessionStore()
}

func provideCacheRepository(client *redis.Client, logr *zap.Logger) *repository.CacheRepository {
	return repository.NewCacheRepository(client, analyticsCacheNamespace, logr)
}

func provideAuditDispatcher(lc fx.Lifecycle, users *repository.UserRepository, logr *zap.Logger) *service.AuditDispatcher {
	dispatcher := service.NewAuditDispatcher(users, auditWorkers, logr)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			dispatcher.Start()
			return nil
		},
		OnStop: dispatcher.Stop,
	})
	return dispatcher
}

// accountStore routes the user repository's audit writes through the dispatcher.
type accountStore struct {
	*repository.UserRepository
	audit *service.AuditDispatcher
}

func (s *accountStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return s.audit.CreateAuditLog(ctx, log)
}

func provideAccountStore(users *repository.UserRepository, audit *service.AuditDispatcher) *accountStore {
	return &accountStore{UserRepository: users, audit: audit}
}

func provideValidator(cfg *config.Config) *validator.Validate {
	return service.NewValidator(cfg.Auth.OrgEmailDomain)
}

func provideAuthorizer(enforcer *casbin.SyncedEnforcer, logr *zap.Logger) *authz.PageAuthorizer {
	return authz.NewPageAuthorizer(enforcer, logr)
}

func provideCacheService(repo *repository.CacheRepository, client *redis.Client, metrics *service.MetricsService, cfg *config.Config, logr *zap.Logger) *service.CacheService {
	enabled := cfg.Analytics.CacheEnabled && client != nil
	return service.NewCacheService(repo, metrics, cfg.Analytics.CacheTTL, logr, enabled)
}

func provideAuthService(users *accountStore, store repository.SessionStore, validate *validator.Validate, cfg *config.Config, logr *zap.Logger) *service.AuthService {
	return service.NewAuthService(users, store, validate, logr, service.AuthConfig{
		SessionSecret: cfg.Session.Secret,
		SessionTTL:    cfg.Session.TTL,
		Issuer:        cfg.Session.Issuer,
	})
}

func provideSessionService(store repository.SessionStore, authorizer *authz.PageAuthorizer, logr *zap.Logger) *service.SessionService {
	return service.NewSessionService(store, authorizer, logr)
}

func provideMuteReasonService(meters *repository.MeterRepository, audit *service.AuditDispatcher, cacheSvc *service.CacheService, metrics *service.MetricsService, logr *zap.Logger) *service.MuteReasonService {
	return service.NewMuteReasonService(meters, audit, cacheSvc, metrics, logr)
}

func provideSearchService(sessions *service.SessionService, reasons *service.MuteReasonService, logr *zap.Logger) *service.SearchService {
	return service.NewSearchService(sessions, reasons, logr)
}

func provideAnalyticsService(meters *repository.MeterRepository, cacheSvc *service.CacheService, metrics *service.MetricsService, logr *zap.Logger) *service.AnalyticsService {
	return service.NewAnalyticsService(meters, cacheSvc, metrics, logr)
}

func provideTransferService(meters *repository.MeterRepository, analytics *service.AnalyticsService, sessions *service.SessionService, audit *service.AuditDispatcher, cacheSvc *service.CacheService, metrics *service.MetricsService, logr *zap.Logger) *service.TransferService {
	return service.NewTransferService(meters, analytics, sessions, audit, cacheSvc, metrics, logr)
}

func provideUserService(users *accountStore, store repository.SessionStore, validate *validator.Validate, cfg *config.Config, logr *zap.Logger) *service.UserService {
	return service.NewUserService(users, store, validate, logr, cfg.Auth.BcryptCost)
}

func provideRoutes(
	cfg *config.Config,
	db *sqlx.DB,
	auth *service.AuthService,
	sessions *service.SessionService,
	search *service.SearchService,
	analytics *service.AnalyticsService,
	transfer *service.TransferService,
	reasons *service.MuteReasonService,
	users *service.UserService,
	audit *service.AuditDispatcher,
	metrics *service.MetricsService,
) Routes {
	return Routes{
		Auth:      handler.NewAuthHandler(auth, sessions, cfg.Env == config.EnvProduction),
		Search:    handler.NewSearchHandler(search),
		Analytics: handler.NewAnalyticsHandler(analytics),
		Transfer:  handler.NewTransferHandler(transfer, cfg.Transfer.MaxUploadBytes),
		Meters:    handler.NewMeterHandler(reasons),
		Users:     handler.NewUserHandler(users),
		Ops:       handler.NewMetricsHandler(metrics, db),
		Sessions:  auth,
		Pages:     sessions,
		Audit:     audit,
	}
}
